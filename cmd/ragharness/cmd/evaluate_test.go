package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-access-policies/policy-crew/internal/eval"
)

func TestEvaluateCmd_RunsOfflinePipeline(t *testing.T) {
	// Given: an offline project with a labeled query set
	fix := writeHarnessFixture(t)

	// When: running evaluate
	output, err := runCommand(t, "evaluate", "--config", fix.configPath, "--queries", fix.queriesPath, "--no-color")

	// Then: the summary and artifact notice reach stdout
	require.NoError(t, err)
	assert.Contains(t, output, "Evaluation Summary")
	assert.Contains(t, output, "Artifacts written to")

	// And: metrics.json holds one row per query
	data, err := os.ReadFile(filepath.Join(fix.resultsDir, eval.MetricsFileName))
	require.NoError(t, err)
	var result eval.Result
	require.NoError(t, json.Unmarshal(data, &result))
	require.Len(t, result.PerQuery, 3)
	assert.Equal(t, 3, result.Aggregate.NQueries)
	assert.Equal(t, 2, result.Aggregate.NLabeled)

	// And: the effective config is persisted alongside
	_, err = os.Stat(filepath.Join(fix.resultsDir, eval.EffectiveConfigJSONName))
	assert.NoError(t, err)
}

func TestEvaluateCmd_RequiresQueriesFlag(t *testing.T) {
	// Given: a valid config but no --queries
	fix := writeHarnessFixture(t)

	// When: running evaluate without the flag
	_, err := runCommand(t, "evaluate", "--config", fix.configPath)

	// Then: cobra rejects the invocation
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queries")
}

func TestEvaluateCmd_BadQueriesFileFails(t *testing.T) {
	// Given: a queries path that does not exist
	fix := writeHarnessFixture(t)

	// When: running evaluate
	_, err := runCommand(t, "evaluate", "--config", fix.configPath, "--queries", filepath.Join(t.TempDir(), "missing.jsonl"))

	// Then: the load fails before any pipeline work
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queries")
}
