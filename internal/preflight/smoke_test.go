package preflight

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/rerank"
)

func smokeConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Paths.KBDir = t.TempDir()
	cfg.Paths.IndexDir = t.TempDir()
	cfg.Paths.ResultsDir = t.TempDir()
	return cfg
}

func stageByName(t *testing.T, report *SmokeReport, name string) SmokeStage {
	t.Helper()
	for _, s := range report.Stages {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("stage %q not in report", name)
	return SmokeStage{}
}

// ==== Smoketest ====

func TestSmoketest_BuiltinSampleWhenKBEmpty(t *testing.T) {
	// Given an empty knowledge base, the run substitutes the built-in
	// sample document and the canned query is accepted.
	cfg := smokeConfig(t)

	report, err := Smoketest(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, SmokeOK, report.Status)
	require.Len(t, report.Stages, 3)

	corpusStage := stageByName(t, report, "corpus")
	assert.Equal(t, SmokeOK, corpusStage.Status)
	assert.Equal(t, "using built-in sample document", corpusStage.Message)

	pipelineStage := stageByName(t, report, "pipeline")
	assert.Equal(t, SmokeOK, pipelineStage.Status)
	assert.Equal(t, "1 chunks indexed", pipelineStage.Message)

	queryStage := stageByName(t, report, "query")
	assert.Equal(t, SmokeOK, queryStage.Status)
	assert.Equal(t, "gate trigger: "+rerank.TriggerAccepted, queryStage.Message)

	require.NotNil(t, report.Diagnostics)
	assert.True(t, report.Diagnostics.ReturnedAny)
	assert.Equal(t, rerank.TriggerAccepted, report.Diagnostics.GateTrigger)
	assert.Equal(t, 1, report.Diagnostics.NCandidates)
	assert.InDelta(t, 0.3, report.Diagnostics.Top1Score, 1e-9)
	assert.InDelta(t, 1.0, report.Diagnostics.Overlap, 1e-9)
	assert.Len(t, report.Fingerprint, 64)
}

func TestSmoketest_MissingKBDirStillRuns(t *testing.T) {
	cfg := smokeConfig(t)
	cfg.Paths.KBDir = filepath.Join(t.TempDir(), "missing")

	report, err := Smoketest(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, SmokeOK, report.Status)
	assert.Equal(t, "using built-in sample document", stageByName(t, report, "corpus").Message)
}

func TestSmoketest_RealCorpusMayRejectCannedQuery(t *testing.T) {
	// Given a corpus unrelated to the canned query: the gate rejects,
	// but every stage still succeeds.
	cfg := smokeConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.KBDir, "retention.md"),
		[]byte("The data retention schedule keeps records for seven years.\n"), 0o644))

	report, err := Smoketest(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, SmokeOK, report.Status)
	assert.Equal(t, "1 documents", stageByName(t, report, "corpus").Message)
	assert.Equal(t, "gate trigger: "+rerank.TriggerTau, stageByName(t, report, "query").Message)
	require.NotNil(t, report.Diagnostics)
	assert.False(t, report.Diagnostics.ReturnedAny)
}

func TestSmoketest_WritesArtifact(t *testing.T) {
	cfg := smokeConfig(t)

	report, err := Smoketest(context.Background(), cfg, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cfg.Paths.ResultsDir, SmokeFileName))
	require.NoError(t, err)
	var persisted SmokeReport
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, report.Status, persisted.Status)
	assert.Equal(t, report.Fingerprint, persisted.Fingerprint)
	assert.Len(t, persisted.Stages, 3)
}

func TestSmoketest_FingerprintStableAcrossRuns(t *testing.T) {
	cfg := smokeConfig(t)

	first, err := Smoketest(context.Background(), cfg, nil)
	require.NoError(t, err)
	second, err := Smoketest(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint,
		"sample-directory substitution must not leak into the fingerprint")
}
