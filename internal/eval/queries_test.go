package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

func writeQueriesFile(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

// ==== Query loading ====

func TestLoadQueries_ParsesLabelsAndNotes(t *testing.T) {
	path := writeQueriesFile(t, `{"query": "What is the retention period?", "label": "positive", "notes": "from kb"}
{"query": "Is pluto a planet?", "label": "negative"}

{"query": "no label on this one"}
{"query": "legacy positive", "label": 1}
{"query": "legacy negative", "label": 0}
`)

	queries, err := LoadQueries(path)
	require.NoError(t, err)
	require.Len(t, queries, 5)

	assert.Equal(t, "What is the retention period?", queries[0].Text)
	assert.Equal(t, LabelPositive, queries[0].Label)
	assert.Equal(t, "from kb", queries[0].Notes)
	assert.True(t, queries[0].Labeled())

	assert.Equal(t, LabelNegative, queries[1].Label)
	assert.Empty(t, queries[1].Notes)

	assert.Empty(t, queries[2].Label)
	assert.False(t, queries[2].Labeled())

	assert.Equal(t, LabelPositive, queries[3].Label)
	assert.Equal(t, LabelNegative, queries[4].Label)
}

func TestLoadQueries_StringNumericLabels(t *testing.T) {
	path := writeQueriesFile(t, `{"query": "a", "label": "1"}
{"query": "b", "label": "0"}
`)

	queries, err := LoadQueries(path)
	require.NoError(t, err)
	require.Len(t, queries, 2)
	assert.Equal(t, LabelPositive, queries[0].Label)
	assert.Equal(t, LabelNegative, queries[1].Label)
}

func TestLoadQueries_MissingFile(t *testing.T) {
	_, err := LoadQueries(filepath.Join(t.TempDir(), "nope.jsonl"))

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeQueryFile, herrors.GetCode(err))
}

func TestLoadQueries_InvalidJSONLine(t *testing.T) {
	path := writeQueriesFile(t, `{"query": "fine"}
{not json}
`)

	_, err := LoadQueries(path)

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeQueryFile, herrors.GetCode(err))
	assert.ErrorContains(t, err, "line 2")
}

func TestLoadQueries_BlankQueryRejected(t *testing.T) {
	path := writeQueriesFile(t, `{"query": "   ", "label": "positive"}
`)

	_, err := LoadQueries(path)

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeQueryFile, herrors.GetCode(err))
	assert.ErrorContains(t, err, "missing query text")
}

func TestLoadQueries_InvalidLabelRejected(t *testing.T) {
	path := writeQueriesFile(t, `{"query": "x", "label": "maybe"}
`)

	_, err := LoadQueries(path)

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeQueryFile, herrors.GetCode(err))
	assert.ErrorContains(t, err, "invalid label")
}

func TestLoadQueries_EmptyFileRejected(t *testing.T) {
	path := writeQueriesFile(t, "\n\n")

	_, err := LoadQueries(path)

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeQueryFile, herrors.GetCode(err))
	assert.ErrorContains(t, err, "contains no queries")
}
