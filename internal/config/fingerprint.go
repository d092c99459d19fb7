package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Fingerprint returns the SHA-256 of the canonicalized configuration,
// as lowercase hex.
//
// The config is serialized to JSON, decoded into generic maps, and
// re-serialized; encoding/json emits map keys sorted, so two configs with
// identical key-value content fingerprint identically regardless of key
// order in the source file. Every persisted artifact carries this value
// for provenance.
func (c *Config) Fingerprint() string {
	structured, err := json.Marshal(c)
	if err != nil {
		// Config contains only plain values; Marshal cannot fail for it.
		return ""
	}

	var generic map[string]any
	if err := json.Unmarshal(structured, &generic); err != nil {
		return ""
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return ""
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// ShortFingerprint returns the first 12 hex characters, used in logs and
// report headers.
func (c *Config) ShortFingerprint() string {
	fp := c.Fingerprint()
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
