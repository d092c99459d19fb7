package errors

import (
	"fmt"
)

// HarnessError is the structured error type for the RAG harness.
// It provides context for error handling, logging, and user presentation.
type HarnessError struct {
	// Code is the unique error code (e.g., "ERR_102_CONFIG_VALIDATION").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Service, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *HarnessError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *HarnessError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with HarnessError.
func (e *HarnessError) Is(target error) bool {
	if t, ok := target.(*HarnessError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *HarnessError) WithDetail(key, value string) *HarnessError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *HarnessError) WithSuggestion(suggestion string) *HarnessError {
	e.Suggestion = suggestion
	return e
}

// New creates a new HarnessError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *HarnessError {
	return &HarnessError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf creates a new HarnessError with a formatted message and no cause.
func Newf(code string, format string, args ...any) *HarnessError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a HarnessError from an existing error.
// The error's message becomes the HarnessError message.
func Wrap(code string, err error) *HarnessError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration validation error.
func ConfigError(message string, cause error) *HarnessError {
	return New(ErrCodeConfigValidation, message, cause)
}

// ArtifactError creates a fatal artifact write error.
func ArtifactError(message string, cause error) *HarnessError {
	return New(ErrCodeArtifactWrite, message, cause)
}

// ServiceError creates an external service error.
// Service errors are retryable.
func ServiceError(code string, message string, cause error) *HarnessError {
	return New(code, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *HarnessError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *HarnessError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a HarnessError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if he, ok := err.(*HarnessError); ok {
		return he.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if he, ok := err.(*HarnessError); ok {
		return he.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a HarnessError.
// Returns empty string if not a HarnessError.
func GetCode(err error) string {
	if he, ok := err.(*HarnessError); ok {
		return he.Code
	}
	return ""
}

// GetCategory extracts the category from a HarnessError.
// Returns empty string if not a HarnessError.
func GetCategory(err error) Category {
	if he, ok := err.(*HarnessError); ok {
		return he.Category
	}
	return ""
}
