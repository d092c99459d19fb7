package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/corpus"
	"github.com/open-access-policies/policy-crew/internal/eval"
	"github.com/open-access-policies/policy-crew/internal/rerank"
	"github.com/open-access-policies/policy-crew/internal/store"
)

// SmokeFileName is written under paths.results_dir.
const SmokeFileName = "smoketest.json"

// Smoketest statuses.
const (
	SmokeOK     = "ok"
	SmokeFailed = "failed"
)

// smokeQuery overlaps the built-in sample document well past the
// default gate thresholds.
const smokeQuery = "quick brown fox"

const builtinSampleDoc = "# Smoke sample\n\nSmoke test sample document. The quick brown fox jumps over the lazy dog.\n"

// SmokeStage records one pipeline stage outcome.
type SmokeStage struct {
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// SmokeReport is the smoketest.json payload. Diagnostics carries the
// canned query's full evaluation row when the pipeline got that far.
type SmokeReport struct {
	Status      string       `json:"status"`
	Stages      []SmokeStage `json:"stages"`
	Diagnostics *eval.Row    `json:"diagnostics,omitempty"`
	Fingerprint string       `json:"fingerprint"`
}

// Smoketest runs a minimal end-to-end pass with no network dependencies:
// corpus (or the built-in sample document when the knowledge base is
// empty or missing), chunks, static embeddings, an in-memory index, and
// one canned query through retrieval and the gate. The report lands in
// <results_dir>/smoketest.json; a non-nil error means a stage or the
// artifact write failed.
func Smoketest(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*SmokeReport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	smoke := cfg.Clone()
	smoke.Embedder.Backend = "static"
	smoke.VectorStore.Type = store.BackendMemory
	smoke.VectorStore.Persist = false
	smoke.Reranker.Model = rerank.ModelLexical
	smoke.Tuning.Workers = 1

	// Fingerprint before any sample-directory substitution so repeated
	// smoketests over the same config report the same value.
	report := &SmokeReport{
		Status:      SmokeOK,
		Fingerprint: smoke.Fingerprint(),
	}
	fail := func(stage SmokeStage, err error) (*SmokeReport, error) {
		stage.Status = SmokeFailed
		stage.Message = err.Error()
		report.Stages = append(report.Stages, stage)
		report.Status = SmokeFailed
		if writeErr := writeSmokeReport(cfg.Paths.ResultsDir, report); writeErr != nil {
			return report, writeErr
		}
		return report, err
	}

	// Corpus: real knowledge base when it has documents, built-in
	// sample otherwise.
	start := time.Now()
	stage := SmokeStage{Name: "corpus"}
	docs, loadErr := loadSmokeCorpus(ctx, smoke, logger)
	if loadErr == nil && docs > 0 {
		stage.Message = fmt.Sprintf("%d documents", docs)
	} else {
		sampleDir, err := os.MkdirTemp("", "ragharness-smoke-")
		if err != nil {
			stage.ElapsedMS = smokeElapsed(start)
			return fail(stage, err)
		}
		defer func() { _ = os.RemoveAll(sampleDir) }()
		if err := os.WriteFile(filepath.Join(sampleDir, "sample.md"), []byte(builtinSampleDoc), 0o644); err != nil {
			stage.ElapsedMS = smokeElapsed(start)
			return fail(stage, err)
		}
		smoke.Paths.KBDir = sampleDir
		stage.Message = "using built-in sample document"
	}
	stage.Status = SmokeOK
	stage.ElapsedMS = smokeElapsed(start)
	report.Stages = append(report.Stages, stage)

	// Pipeline: chunking, static embeddings, in-memory index, scorer.
	start = time.Now()
	stage = SmokeStage{Name: "pipeline"}
	index, pipeline, err := eval.NewPipeline(ctx, smoke, logger)
	if err != nil {
		stage.ElapsedMS = smokeElapsed(start)
		return fail(stage, err)
	}
	defer func() {
		_ = pipeline.Close()
		_ = index.Close()
	}()
	stage.Status = SmokeOK
	stage.Message = fmt.Sprintf("%d chunks indexed", index.ChunkCount)
	stage.ElapsedMS = smokeElapsed(start)
	report.Stages = append(report.Stages, stage)

	// Query: the canned query through retrieval, scoring, and the gate.
	start = time.Now()
	stage = SmokeStage{Name: "query"}
	result, err := eval.NewHarness(smoke, pipeline, logger).Evaluate(ctx, []eval.Query{{Text: smokeQuery}})
	if err != nil {
		stage.ElapsedMS = smokeElapsed(start)
		return fail(stage, err)
	}
	row := result.PerQuery[0]
	if row.GateTrigger == rerank.TriggerEvaluationError {
		stage.ElapsedMS = smokeElapsed(start)
		return fail(stage, fmt.Errorf("canned query failed evaluation"))
	}
	stage.Status = SmokeOK
	stage.Message = "gate trigger: " + row.GateTrigger
	stage.ElapsedMS = smokeElapsed(start)
	report.Stages = append(report.Stages, stage)
	report.Diagnostics = &row

	logger.Info("smoketest finished",
		slog.String("status", report.Status),
		slog.String("gate_trigger", row.GateTrigger))

	if err := writeSmokeReport(cfg.Paths.ResultsDir, report); err != nil {
		return report, err
	}
	return report, nil
}

// loadSmokeCorpus counts loadable documents in the configured knowledge
// base.
func loadSmokeCorpus(ctx context.Context, cfg *config.Config, logger *slog.Logger) (int, error) {
	if _, err := os.Stat(cfg.Paths.KBDir); err != nil {
		return 0, err
	}
	docs, err := corpus.NewLoader(cfg.Paths.KBDir, cfg.Loader, logger).Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func writeSmokeReport(resultsDir string, report *SmokeReport) error {
	return eval.WriteJSON(filepath.Join(resultsDir, SmokeFileName), report)
}

func smokeElapsed(start time.Time) float64 {
	return math.Round(float64(time.Since(start))/float64(time.Millisecond)*100) / 100
}
