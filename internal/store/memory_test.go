package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

func newTestMemory(t *testing.T, dims int) *MemoryStore {
	t.Helper()
	s, err := NewMemoryStore(VectorStoreConfig{Dimensions: dims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ==== Exact search ====

func TestMemoryStore_TiesBreakByInsertionOrder(t *testing.T) {
	// Given: two identical vectors inserted in a known order
	s := newTestMemory(t, 3)
	ids := []string{"first", "second", "other"}
	vectors := [][]float32{
		{0, 1, 0},
		{0, 1, 0},
		{1, 0, 0},
	}
	require.NoError(t, s.Add(context.Background(), ids, vectors))

	// When: searching with a query that ties the identical pair
	results, err := s.Search(context.Background(), []float32{0, 1, 0}, 3)

	// Then: equal scores rank in insertion order
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].ID)
	assert.Equal(t, "second", results[1].ID)
	assert.Equal(t, "other", results[2].ID)
	assert.Equal(t, results[0].Score, results[1].Score)
}

func TestMemoryStore_NormalizesOnAdd(t *testing.T) {
	s := newTestMemory(t, 2)
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{3, 4}}))

	// A scaled copy of the same direction scores as an exact match.
	results, err := s.Search(context.Background(), []float32{30, 40}, 1)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestMemoryStore_ReplaceKeepsInsertionPosition(t *testing.T) {
	// Given: "a" then "b", with "a" later replaced to tie "b"
	s := newTestMemory(t, 2)
	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{0, 1}}))

	results, err := s.Search(context.Background(), []float32{0, 1}, 2)

	// Then: "a" keeps its earlier position and wins the tie
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.Equal(t, 2, s.Count())
}

func TestMemoryStore_KLargerThanCount(t *testing.T) {
	s := newTestMemory(t, 2)
	require.NoError(t, s.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

	results, err := s.Search(context.Background(), []float32{1, 0}, 10)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryStore_DimensionMismatch(t *testing.T) {
	s := newTestMemory(t, 3)

	err := s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)

	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	require.ErrorAs(t, err, &dimErr)
}

// ==== Persistence ====

func TestMemoryStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.mem")

	s := newTestMemory(t, 3)
	ids := []string{"first", "second"}
	vectors := [][]float32{{0, 1, 0}, {0, 1, 0}}
	require.NoError(t, s.Add(context.Background(), ids, vectors))
	require.NoError(t, s.Save(path))

	loaded, err := NewMemoryStore(VectorStoreConfig{Dimensions: 3})
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	assert.Equal(t, 3, loaded.Dimensions())

	// Insertion order, and therefore tie-breaking, survives the round trip.
	results, err := loaded.Search(context.Background(), []float32{0, 1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].ID)
	assert.Equal(t, "second", results[1].ID)
}

func TestMemoryStore_LoadGarbageIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.mem")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot"), 0o644))

	s := newTestMemory(t, 3)
	err := s.Load(path)

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeIndexCorrupt, herrors.GetCode(err))
}

// ==== Lifecycle ====

func TestMemoryStore_ClosedRejectsCalls(t *testing.T) {
	s, err := NewMemoryStore(VectorStoreConfig{Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Error(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}}))
	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	assert.Error(t, err)
	assert.Equal(t, 0, s.Count())
}
