package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

func newTestHNSW(t *testing.T, dims int) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(VectorStoreConfig{Dimensions: dims})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// ==== Construction ====

func TestNewHNSWStore_RequiresDimensions(t *testing.T) {
	_, err := NewHNSWStore(VectorStoreConfig{Dimensions: 0})
	require.Error(t, err)
}

// ==== Add and Search ====

func TestHNSWStore_SearchRanksByCosine(t *testing.T) {
	// Given: three orthogonal vectors and one near the first axis
	s := newTestHNSW(t, 3)
	ids := []string{"a", "b", "c", "d"}
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.9, 0.1, 0},
	}
	require.NoError(t, s.Add(context.Background(), ids, vectors))

	// When: searching along the first axis
	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 4)

	// Then: the exact match leads, the near match follows
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	assert.Equal(t, "d", results[1].ID)
	assert.InDelta(t, 0.9939, results[1].Score, 1e-3)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Score, results[i-1].Score)
	}
}

func TestHNSWStore_NormalizesOnAdd(t *testing.T) {
	s := newTestHNSW(t, 2)
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{3, 4}}))

	// A scaled copy of the same direction scores as an exact match.
	results, err := s.Search(context.Background(), []float32{30, 40}, 1)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	s := newTestHNSW(t, 3)

	err := s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}})
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	require.ErrorAs(t, err, &dimErr)
}

func TestHNSWStore_ReplaceExistingID(t *testing.T) {
	s := newTestHNSW(t, 2)
	require.NoError(t, s.Add(context.Background(), []string{"x"}, [][]float32{{1, 0}}))

	require.NoError(t, s.Add(context.Background(), []string{"x"}, [][]float32{{0, 1}}))

	assert.Equal(t, 1, s.Count())
	results, err := s.Search(context.Background(), []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
}

func TestHNSWStore_EmptyStore(t *testing.T) {
	s := newTestHNSW(t, 3)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, s.Count())
}

// ==== Persistence ====

func TestHNSWStore_SaveLoadRoundTrip(t *testing.T) {
	// Given: a populated store saved to disk
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	s := newTestHNSW(t, 3)
	ids := []string{"a", "b", "c"}
	vectors := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	require.NoError(t, s.Add(context.Background(), ids, vectors))
	require.NoError(t, s.Save(path))

	// When: loading into a fresh store
	loaded, err := NewHNSWStore(VectorStoreConfig{Dimensions: 3})
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	// Then: contents and configuration survive
	assert.Equal(t, 3, loaded.Count())
	assert.Equal(t, 3, loaded.Dimensions())
	results, err := loaded.Search(context.Background(), []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestHNSWStore_SaveWritesMetaSidecar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	s := newTestHNSW(t, 2)
	require.NoError(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, s.Save(path))

	assert.FileExists(t, path)
	assert.FileExists(t, path+".meta")
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should not survive a save")
}

func TestHNSWStore_LoadMissingIndexIsCorrupt(t *testing.T) {
	s := newTestHNSW(t, 3)

	err := s.Load(filepath.Join(t.TempDir(), "absent.hnsw"))

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeIndexCorrupt, herrors.GetCode(err))
}

func TestHNSWStore_LoadGarbageIsCorrupt(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")
	require.NoError(t, os.WriteFile(path, []byte("not a graph"), 0o644))
	require.NoError(t, os.WriteFile(path+".meta", []byte("not gob"), 0o644))

	s := newTestHNSW(t, 3)
	err := s.Load(path)

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeIndexCorrupt, herrors.GetCode(err))
}

// ==== Lifecycle ====

func TestHNSWStore_ClosedRejectsCalls(t *testing.T) {
	s, err := NewHNSWStore(VectorStoreConfig{Dimensions: 2})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is harmless")

	assert.Error(t, s.Add(context.Background(), []string{"a"}, [][]float32{{1, 0}}))
	_, err = s.Search(context.Background(), []float32{1, 0}, 1)
	assert.Error(t, err)
	assert.Error(t, s.Save(filepath.Join(t.TempDir(), "v.hnsw")))
	assert.Equal(t, 0, s.Count())
}

func TestHNSWStore_LengthMismatchRejected(t *testing.T) {
	s := newTestHNSW(t, 2)

	err := s.Add(context.Background(), []string{"a", "b"}, [][]float32{{1, 0}})

	require.Error(t, err)
	assert.False(t, errors.As(err, &ErrDimensionMismatch{}), "length mismatch is not a dimension error")
}
