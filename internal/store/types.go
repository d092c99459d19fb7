// Package store provides the persistence layer for built indexes: vector
// stores for nearest-neighbour search, a keyword index for hybrid retrieval,
// and a SQLite chunk store that keeps chunk text and build metadata alongside
// the vectors.
package store

import (
	"context"
	"fmt"
	"math"
)

// VectorStore indexes embedding vectors by chunk ID and answers
// nearest-neighbour queries with cosine similarity scores.
type VectorStore interface {
	// Add inserts vectors with their IDs. Re-adding an existing ID
	// replaces its vector.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search returns the k nearest neighbours of query, best first.
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)

	// Count returns the number of stored vectors.
	Count() int

	// Dimensions returns the vector dimensionality the store accepts.
	Dimensions() int

	// Save persists the store to path. Save writes a temp file and
	// renames it so a crash never leaves a half-written index behind.
	Save(path string) error

	// Load replaces the store contents with a previously saved index.
	Load(path string) error

	Close() error
}

// SearchResult is a single nearest-neighbour hit.
type SearchResult struct {
	// ID is the chunk ID the vector was stored under.
	ID string

	// Score is the cosine similarity between the query and the stored
	// vector, in [-1, 1]. Higher is closer.
	Score float64
}

// VectorStoreConfig holds construction parameters shared by vector store
// implementations.
type VectorStoreConfig struct {
	// Dimensions is the required vector dimensionality. Must be > 0.
	Dimensions int

	// M is the HNSW graph connectivity. Zero selects the default.
	M int

	// EfSearch is the HNSW search expansion factor. Zero selects the
	// default.
	EfSearch int
}

// ErrDimensionMismatch reports a vector whose dimensionality does not match
// the store.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// KeywordIndex ranks chunks by lexical match for hybrid retrieval.
type KeywordIndex interface {
	// Index adds documents. Re-indexing an existing ID replaces it.
	Index(ctx context.Context, docs []Document) error

	// Search returns up to limit documents matching query, best first.
	// An empty query matches nothing.
	Search(ctx context.Context, query string, limit int) ([]KeywordResult, error)

	// Count returns the number of indexed documents.
	Count() (uint64, error)

	Close() error
}

// Document is a unit of text for keyword indexing.
type Document struct {
	ID      string
	Content string
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64
}

// normalizeVectorInPlace scales v to unit length. Zero vectors are left
// unchanged.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// dotSimilarity returns the dot product of two equal-length vectors.
// For unit vectors this is the cosine similarity.
func dotSimilarity(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
