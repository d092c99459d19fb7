package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// MemoryStore implements VectorStore with exact brute-force search.
// Results are fully deterministic: equal scores rank in insertion order.
// Suited to small corpora and to runs where approximate recall would
// muddy a comparison between configurations.
type MemoryStore struct {
	mu      sync.RWMutex
	dims    int
	ids     []string    // insertion order
	vectors [][]float32 // unit vectors, parallel to ids
	index   map[string]int
	closed  bool
}

var _ VectorStore = (*MemoryStore)(nil)

// memorySnapshot is the on-disk form of a MemoryStore.
type memorySnapshot struct {
	Dimensions int
	IDs        []string
	Vectors    [][]float32
}

// NewMemoryStore creates an empty brute-force vector store.
func NewMemoryStore(cfg VectorStoreConfig) (*MemoryStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("memory store requires positive dimensions, got %d", cfg.Dimensions)
	}
	return &MemoryStore{
		dims:  cfg.Dimensions,
		index: make(map[string]int),
	}, nil
}

// Add inserts vectors with their IDs. Re-adding an existing ID replaces its
// vector in place, keeping the original insertion position.
func (s *MemoryStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(v)}
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		if pos, exists := s.index[id]; exists {
			s.vectors[pos] = vec
			continue
		}
		s.index[id] = len(s.ids)
		s.ids = append(s.ids, id)
		s.vectors = append(s.vectors, vec)
	}

	return nil
}

// Search scores every stored vector against query and returns the top k.
func (s *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if len(query) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(query)}
	}
	if len(s.ids) == 0 || k <= 0 {
		return []SearchResult{}, nil
	}

	normalizedQuery := make([]float32, len(query))
	copy(normalizedQuery, query)
	normalizeVectorInPlace(normalizedQuery)

	results := make([]SearchResult, len(s.ids))
	for i, id := range s.ids {
		results[i] = SearchResult{
			ID:    id,
			Score: dotSimilarity(normalizedQuery, s.vectors[i]),
		}
	}

	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored vectors.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.ids)
}

// Dimensions returns the vector dimensionality the store accepts.
func (s *MemoryStore) Dimensions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dims
}

// Save writes a gob snapshot of the store to path via temp file and rename.
func (s *MemoryStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return herrors.New(herrors.ErrCodeIndexPersist, "create index directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return herrors.New(herrors.ErrCodeIndexPersist, "create snapshot file", err)
	}

	snap := memorySnapshot{
		Dimensions: s.dims,
		IDs:        s.ids,
		Vectors:    s.vectors,
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return herrors.New(herrors.ErrCodeIndexPersist, "encode snapshot", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return herrors.New(herrors.ErrCodeIndexPersist, "close snapshot file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return herrors.New(herrors.ErrCodeIndexPersist, "rename snapshot file", err)
	}
	return nil
}

// Load replaces the store contents with a previously saved snapshot.
// Any failure reports the index as corrupt so callers can rebuild.
func (s *MemoryStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return herrors.New(herrors.ErrCodeIndexCorrupt, "open snapshot file", err)
	}
	defer file.Close()

	var snap memorySnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return herrors.New(herrors.ErrCodeIndexCorrupt, "decode snapshot", err)
	}
	if snap.Dimensions <= 0 || len(snap.IDs) != len(snap.Vectors) {
		return herrors.Newf(herrors.ErrCodeIndexCorrupt, "snapshot is inconsistent: %d ids, %d vectors", len(snap.IDs), len(snap.Vectors))
	}

	s.dims = snap.Dimensions
	s.ids = snap.IDs
	s.vectors = snap.Vectors
	s.index = make(map[string]int, len(snap.IDs))
	for i, id := range snap.IDs {
		s.index[id] = i
	}
	return nil
}

// Close releases the store. The store is unusable afterwards.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.ids = nil
	s.vectors = nil
	s.index = nil
	return nil
}
