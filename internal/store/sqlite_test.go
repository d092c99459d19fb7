package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-access-policies/policy-crew/internal/chunk"
)

func newTestChunkStore(t *testing.T, path string) *ChunkStore {
	t.Helper()
	s, err := NewChunkStore(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleChunks() []chunk.Chunk {
	return []chunk.Chunk{
		{ID: "c1", DocPath: "guide/setup.md", Ordinal: 0, Start: 0, End: 12, Content: "install deps"},
		{ID: "c2", DocPath: "guide/setup.md", Ordinal: 1, Start: 10, End: 22, Content: "run the tool"},
		{ID: "c3", DocPath: "intro.md", Ordinal: 0, Start: 0, End: 8, Content: "welcome!"},
	}
}

// ==== Chunk round trips ====

func TestChunkStore_PutGetRoundTrip(t *testing.T) {
	s := newTestChunkStore(t, "")
	require.NoError(t, s.Put(context.Background(), sampleChunks()))

	got, ok, err := s.Get(context.Background(), "c2")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "guide/setup.md", got.DocPath)
	assert.Equal(t, 1, got.Ordinal)
	assert.Equal(t, 10, got.Start)
	assert.Equal(t, 22, got.End)
	assert.Equal(t, "run the tool", got.Content)
}

func TestChunkStore_GetMissingChunk(t *testing.T) {
	s := newTestChunkStore(t, "")

	_, ok, err := s.Get(context.Background(), "absent")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChunkStore_AllReturnsBuildOrder(t *testing.T) {
	// Given: chunks inserted out of order
	s := newTestChunkStore(t, "")
	shuffled := []chunk.Chunk{
		sampleChunks()[2],
		sampleChunks()[1],
		sampleChunks()[0],
	}
	require.NoError(t, s.Put(context.Background(), shuffled))

	all, err := s.All(context.Background())

	// Then: rows come back ordered by path, then ordinal
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c1", all[0].ID)
	assert.Equal(t, "c2", all[1].ID)
	assert.Equal(t, "c3", all[2].ID)
}

func TestChunkStore_UpsertReplaces(t *testing.T) {
	s := newTestChunkStore(t, "")
	require.NoError(t, s.Put(context.Background(), []chunk.Chunk{
		{ID: "c1", DocPath: "a.md", Ordinal: 0, Start: 0, End: 3, Content: "old"},
	}))

	require.NoError(t, s.Put(context.Background(), []chunk.Chunk{
		{ID: "c1", DocPath: "a.md", Ordinal: 0, Start: 0, End: 3, Content: "new"},
	}))

	got, ok, err := s.Get(context.Background(), "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new", got.Content)

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// ==== Build metadata ====

func TestChunkStore_MetaRoundTrip(t *testing.T) {
	s := newTestChunkStore(t, "")

	require.NoError(t, s.SetMeta(context.Background(), "corpus_fingerprint", "abc123"))
	require.NoError(t, s.SetMeta(context.Background(), "corpus_fingerprint", "def456"))

	value, ok, err := s.GetMeta(context.Background(), "corpus_fingerprint")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "def456", value)

	_, ok, err = s.GetMeta(context.Background(), "absent_key")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ==== Persistence and recovery ====

func TestChunkStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chunks.db")

	s, err := NewChunkStore(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), sampleChunks()))
	require.NoError(t, s.SetMeta(context.Background(), "embedder_model", "nomic-embed-text"))
	require.NoError(t, s.Close())

	reopened := newTestChunkStore(t, path)
	all, err := reopened.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	model, ok, err := reopened.GetMeta(context.Background(), "embedder_model")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "nomic-embed-text", model)
}

func TestChunkStore_CorruptFileIsCleared(t *testing.T) {
	// Given: a file that is not a SQLite database
	dir := t.TempDir()
	path := filepath.Join(dir, "chunks.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite"), 0o644))

	// When: opening the store
	s := newTestChunkStore(t, path)

	// Then: the corrupt file was replaced with an empty database
	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, ok, err := s.GetMeta(context.Background(), "corpus_fingerprint")
	require.NoError(t, err)
	assert.False(t, ok, "a cleared store has no build metadata")
}

func TestChunkStore_Clear(t *testing.T) {
	s := newTestChunkStore(t, "")
	require.NoError(t, s.Put(context.Background(), sampleChunks()))
	require.NoError(t, s.SetMeta(context.Background(), "k", "v"))

	require.NoError(t, s.Clear(context.Background()))

	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	_, ok, err := s.GetMeta(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

// ==== Lifecycle ====

func TestChunkStore_ClosedRejectsCalls(t *testing.T) {
	s, err := NewChunkStore("", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "double close is harmless")

	assert.Error(t, s.Put(context.Background(), sampleChunks()))
	_, _, err = s.Get(context.Background(), "c1")
	assert.Error(t, err)
	_, err = s.All(context.Background())
	assert.Error(t, err)
	_, err = s.Count(context.Background())
	assert.Error(t, err)
}
