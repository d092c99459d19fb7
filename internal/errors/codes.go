// Package errors provides structured error handling for the RAG harness.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage and artifact errors
//   - 3XX: External service errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index, artifact, and disk errors.
	CategoryStorage Category = "STORAGE"
	// CategoryService indicates external service errors.
	CategoryService Category = "SERVICE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound     = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigValidation   = "ERR_102_CONFIG_VALIDATION"
	ErrCodeConfigOverrideType = "ERR_103_CONFIG_OVERRIDE_TYPE"

	// Storage and artifact errors (200-299)
	ErrCodeArtifactWrite = "ERR_201_ARTIFACT_WRITE"
	ErrCodeIndexPersist  = "ERR_202_INDEX_PERSIST"
	ErrCodeIndexCorrupt  = "ERR_203_INDEX_CORRUPT"
	ErrCodeRunLockHeld   = "ERR_204_RUN_LOCK_HELD"

	// External service errors (300-399)
	ErrCodeEmbeddingService = "ERR_301_EMBEDDING_SERVICE"
	ErrCodeRerankerService  = "ERR_302_RERANKER_SERVICE"
	ErrCodeServiceTimeout   = "ERR_303_SERVICE_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeSplitterParams  = "ERR_401_INVALID_SPLITTER_PARAMS"
	ErrCodeEvaluationQuery = "ERR_402_EVALUATION_QUERY"
	ErrCodeQueryFile       = "ERR_403_INVALID_QUERY_FILE"
	ErrCodeInvalidInput    = "ERR_404_INVALID_INPUT"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeIndexBuild   = "ERR_502_INDEX_BUILD"
	ErrCodeTuningFailed = "ERR_503_TUNING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "101" from "ERR_101_CONFIG_NOT_FOUND".
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryService
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	// Artifact writes and index corruption abort the run.
	switch code {
	case ErrCodeArtifactWrite, ErrCodeIndexCorrupt:
		return SeverityFatal
	}

	// Retryable service errors get warning severity.
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingService, ErrCodeRerankerService, ErrCodeServiceTimeout:
		return true
	default:
		return false
	}
}
