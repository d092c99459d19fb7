package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/eval"
	"github.com/open-access-policies/policy-crew/internal/rerank"
	"github.com/open-access-policies/policy-crew/internal/tune"
)

func summaryResult() *eval.Result {
	return &eval.Result{
		RunID:       "run-42",
		Timestamp:   "2026-08-25T10:00:00Z",
		Fingerprint: "feedc0de",
		PerQuery: []eval.Row{
			{Query: "a", TTotalMS: 10},
			{Query: "b", TTotalMS: 40},
			{Query: "c", TTotalMS: 25},
		},
		Aggregate: eval.Aggregate{
			NQueries: 20, NLabeled: 18, Accepted: 8, Rejected: 12,
			Precision: 0.875, Recall: 0.7, F1: 0.7777777, FPRate: 0.125,
			LatencyMS: map[string]eval.StageLatency{
				eval.StageTotal: {Mean: 24.9, Median: 24.2},
			},
			GateTriggers: map[string]int{
				rerank.TriggerAccepted:    8,
				rerank.TriggerTau:         9,
				rerank.TriggerMarginRatio: 2,
				rerank.TriggerOverlap:     1,
			},
		},
	}
}

// ==== Evaluation summary ====

func TestResultRenderer_RendersMetricsAndTriggers(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, NewResultRenderer(buf, true).Render(summaryResult()))
	out := buf.String()

	assert.Contains(t, out, "Evaluation Summary")
	assert.Contains(t, out, "Run:       run-42")
	assert.Contains(t, out, "Queries:   20 (18 labeled)")
	assert.Contains(t, out, "Decisions: 8 accepted, 12 rejected")
	assert.Contains(t, out, "Precision: 0.875   Recall:  0.700")
	assert.Contains(t, out, "F1:        0.778   FP rate: 0.125")
	assert.Contains(t, out, "Triggers:  accepted=8 tau=9 margin_ratio=2 overlap=1")
	assert.Contains(t, out, "fingerprint feedc0de")
}

func TestResultRenderer_LatencyStripCoversPerQueryTotals(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, NewResultRenderer(buf, true).Render(summaryResult()))
	out := buf.String()

	assert.Contains(t, out, "24.90 ms mean, 24.20 ms median")
	// Three samples scaled against max 40: low, full, then 25/40.
	assert.Contains(t, out, "▂█▅")
}

func TestResultRenderer_EmptyBatchOmitsLatencyLine(t *testing.T) {
	res := summaryResult()
	res.PerQuery = nil
	res.Aggregate.GateTriggers = map[string]int{}
	buf := &bytes.Buffer{}

	require.NoError(t, NewResultRenderer(buf, true).Render(res))
	out := buf.String()

	assert.NotContains(t, out, "Latency:")
	assert.Contains(t, out, "Triggers:  none")
}

// ==== Tuning summary ====

func TestTuneRenderer_RendersPhasesAndRecommendation(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Retriever.K = 20
	cfg.Gating.Tau = 0.3
	cfg.Gating.Delta = 0.05
	cfg.Gating.Ratio = 1.15
	cfg.Gating.MinOverlap = 0.1
	cfg.Gating.KeepWithin = 0.02
	report := &tune.Report{
		RunID:  "tune-7",
		Status: tune.StatusCompleted,
		Budget: 50,
		PhaseA: tune.PhaseAReport{Summary: tune.PhaseASummary{BestRecall: 0.9, NTrials: 24}},
		PhaseB: tune.PhaseBReport{Summary: tune.PhaseBSummary{BestF1: 0.85, NTrials: 25}},
		Final:  &tune.Recommendation{Config: cfg, F1: 0.85, Recall: 0.9, Precision: 0.81},
	}
	buf := &bytes.Buffer{}

	require.NoError(t, NewTuneRenderer(buf, true).Render(report))
	out := buf.String()

	assert.Contains(t, out, "Tuning Summary")
	assert.Contains(t, out, "Run:     tune-7")
	assert.Contains(t, out, "Status:  completed")
	assert.Contains(t, out, "Budget:  50 trials")
	assert.Contains(t, out, "Phase A: 24 trials, best recall 0.900")
	assert.Contains(t, out, "Phase B: 25 trials, best F1 0.850")
	assert.Contains(t, out, "Recommendation")
	assert.Contains(t, out, "f1 0.850  recall 0.900  precision 0.810")
	assert.Contains(t, out, "tau 0.30  delta 0.05  ratio 1.15  min_overlap 0.10  keep_within 0.02")
	assert.Contains(t, out, "k 20  chunk_size 1000")
}

func TestTuneRenderer_PartialRunWithoutRecommendation(t *testing.T) {
	report := &tune.Report{
		RunID:  "tune-8",
		Status: tune.StatusPartial,
		Budget: 8,
	}
	buf := &bytes.Buffer{}

	require.NoError(t, NewTuneRenderer(buf, true).Render(report))
	out := buf.String()

	assert.Contains(t, out, "Status:  partial")
	assert.Contains(t, out, "no recommendation produced")
	assert.NotContains(t, out, "Recommendation\n")
}
