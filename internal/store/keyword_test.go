package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKeywordIndex(t *testing.T, docs []Document) *BleveKeywordIndex {
	t.Helper()
	idx, err := NewKeywordIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	if len(docs) > 0 {
		require.NoError(t, idx.Index(context.Background(), docs))
	}
	return idx
}

// ==== Indexing and search ====

func TestKeywordIndex_RanksLexicalMatches(t *testing.T) {
	// Given: three chunks with distinct vocabularies
	idx := newTestKeywordIndex(t, []Document{
		{ID: "rollback", Content: "To roll back a failed deployment, use the rollback command with the release name."},
		{ID: "deploy", Content: "Deployment happens through the release pipeline after the tests pass."},
		{ID: "billing", Content: "Invoices are generated monthly and sent to the billing contact."},
	})

	// When: searching for the rollback procedure
	results, err := idx.Search(context.Background(), "rollback failed deployment", 10)

	// Then: the chunk covering both terms ranks first
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "rollback", results[0].ID)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.NotContains(t, ids, "billing")
}

func TestKeywordIndex_EmptyQueryMatchesNothing(t *testing.T) {
	idx := newTestKeywordIndex(t, []Document{
		{ID: "a", Content: "some indexed content"},
	})

	for _, q := range []string{"", "   ", "\t\n"} {
		results, err := idx.Search(context.Background(), q, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	}
}

func TestKeywordIndex_LimitRespected(t *testing.T) {
	idx := newTestKeywordIndex(t, []Document{
		{ID: "a", Content: "incident response runbook"},
		{ID: "b", Content: "incident postmortem template"},
		{ID: "c", Content: "incident severity levels"},
	})

	results, err := idx.Search(context.Background(), "incident", 2)

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestKeywordIndex_ReindexReplacesDocument(t *testing.T) {
	idx := newTestKeywordIndex(t, []Document{
		{ID: "doc", Content: "kubernetes cluster upgrade"},
	})

	require.NoError(t, idx.Index(context.Background(), []Document{
		{ID: "doc", Content: "terraform state management"},
	}))

	stale, err := idx.Search(context.Background(), "kubernetes", 5)
	require.NoError(t, err)
	assert.Empty(t, stale)

	fresh, err := idx.Search(context.Background(), "terraform", 5)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "doc", fresh[0].ID)

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestKeywordIndex_ScoresDescend(t *testing.T) {
	idx := newTestKeywordIndex(t, []Document{
		{ID: "both", Content: "retention policy retention policy"},
		{ID: "one", Content: "the retention schedule"},
	})

	results, err := idx.Search(context.Background(), "retention policy", 5)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "both", results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

// ==== Lifecycle ====

func TestKeywordIndex_ClosedRejectsCalls(t *testing.T) {
	idx, err := NewKeywordIndex()
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close(), "double close is harmless")

	assert.Error(t, idx.Index(context.Background(), []Document{{ID: "a", Content: "x"}}))
	_, err = idx.Search(context.Background(), "x", 1)
	assert.Error(t, err)
	_, err = idx.Count()
	assert.Error(t, err)
}
