package store

import (
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// Vector store backend names accepted in configuration.
const (
	// BackendHNSW is the approximate nearest-neighbour graph (default).
	BackendHNSW = "hnsw"

	// BackendMemory is the exact brute-force store.
	BackendMemory = "memory"
)

// NewVectorStore creates a vector store for the configured backend type.
func NewVectorStore(backend string, cfg VectorStoreConfig) (VectorStore, error) {
	switch backend {
	case BackendHNSW, "":
		return NewHNSWStore(cfg)
	case BackendMemory:
		return NewMemoryStore(cfg)
	default:
		return nil, herrors.Newf(herrors.ErrCodeConfigValidation, "unknown vector store type %q (valid options: hnsw, memory)", backend)
	}
}
