package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-access-policies/policy-crew/internal/eval"
	"github.com/open-access-policies/policy-crew/internal/preflight"
	"github.com/open-access-policies/policy-crew/internal/rerank"
)

func TestPreflightRenderer_RendersChecksSummaryAndPolicy(t *testing.T) {
	report := &preflight.Report{
		Checks: []preflight.Check{
			{Name: "config", Status: preflight.StatusPass, Message: "loaded and validated", Required: true},
			{Name: "kb_dir", Status: preflight.StatusWarn, Message: "no markdown files matched",
				Details: "Loader globs: [**/*.md]"},
			{Name: "embedding_service", Status: preflight.StatusFail,
				Message: "cannot reach Ollama at http://localhost:11434", Required: true},
		},
		Summary:   preflight.SummaryFailed,
		Timestamp: "2026-08-25T10:00:00Z",
		EffectivePolicy: preflight.Policy{
			EmbeddingsDevice: "cpu",
			RerankerDevice:   "auto",
			EmbeddingBackend: "static",
		},
	}
	buf := &bytes.Buffer{}

	require.NoError(t, NewPreflightRenderer(buf, true).Render(report))
	out := buf.String()

	assert.Contains(t, out, "Preflight Checks")
	assert.Contains(t, out, "✓ config")
	assert.Contains(t, out, "! kb_dir")
	assert.Contains(t, out, "✗ embedding_service")
	assert.Contains(t, out, "Loader globs: [**/*.md]")
	assert.Contains(t, out, "Summary: failed")
	assert.Contains(t, out, "Policy:  embeddings=cpu reranker=auto backend=static")
}

func TestPreflightRenderer_RendersSmokeStages(t *testing.T) {
	report := &preflight.SmokeReport{
		Status: preflight.SmokeOK,
		Stages: []preflight.SmokeStage{
			{Name: "corpus", Status: preflight.SmokeOK, Message: "1 documents", ElapsedMS: 0.52},
			{Name: "pipeline", Status: preflight.SmokeOK, Message: "1 chunks indexed", ElapsedMS: 3.1},
			{Name: "query", Status: preflight.SmokeOK, Message: "gate trigger: accepted", ElapsedMS: 1.4},
		},
		Diagnostics: &eval.Row{GateTrigger: rerank.TriggerAccepted, Top1Score: 0.3, Overlap: 1},
		Fingerprint: "feedc0de",
	}
	buf := &bytes.Buffer{}

	require.NoError(t, NewPreflightRenderer(buf, true).RenderSmoke(report))
	out := buf.String()

	assert.Contains(t, out, "Smoketest")
	assert.Contains(t, out, "✓ corpus")
	assert.Contains(t, out, "1 documents (0.52 ms)")
	assert.Contains(t, out, "✓ pipeline")
	assert.Contains(t, out, "Gate:   accepted  top1 0.300  overlap 1.000")
	assert.Contains(t, out, "Status: ok")
}

func TestPreflightRenderer_FailedSmokeStageGetsCross(t *testing.T) {
	report := &preflight.SmokeReport{
		Status: preflight.SmokeFailed,
		Stages: []preflight.SmokeStage{
			{Name: "corpus", Status: preflight.SmokeOK, Message: "1 documents", ElapsedMS: 0.5},
			{Name: "pipeline", Status: preflight.SmokeFailed, Message: "index build failed", ElapsedMS: 0.9},
		},
	}
	buf := &bytes.Buffer{}

	require.NoError(t, NewPreflightRenderer(buf, true).RenderSmoke(report))
	out := buf.String()

	assert.Contains(t, out, "✗ pipeline")
	assert.Contains(t, out, "Status: failed")
}
