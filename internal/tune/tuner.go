// Package tune searches retrieval and gating parameters in two budgeted
// phases. Phase A sweeps the structural grid (chunking and retrieval
// shape) for the best recall, Phase B fixes the Phase A winner and
// sweeps the gate thresholds for the best F1. Every trial runs a real
// evaluation over the labeled query set; the full trial history, the
// recommended configuration, and its actual metrics are persisted under
// the results directory.
package tune

import (
	"context"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/open-access-policies/policy-crew/internal/config"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
	"github.com/open-access-policies/policy-crew/internal/eval"
)

// Artifact file names written under paths.results_dir.
const (
	TuningReportFileName    = "tuning_report.json"
	ParamsFileName          = "params.json"
	EffectiveConfigYAMLName = "effective_config.yaml"
)

// Tuning run statuses.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
)

// TrialMetrics are the evaluation results of one parameter combination.
type TrialMetrics struct {
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Precision float64 `json:"precision"`
	NQueries  int     `json:"n_queries"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// StructuralTrial is one evaluated Phase A combination.
type StructuralTrial struct {
	Params StructuralParams `json:"params"`
	TrialMetrics
}

// GateTrial is one evaluated Phase B combination.
type GateTrial struct {
	Params GateParams `json:"params"`
	TrialMetrics
}

// PhaseASummary condenses the structural sweep.
type PhaseASummary struct {
	BestRecall float64 `json:"best_recall"`
	NTrials    int     `json:"n_trials"`
}

// PhaseBSummary condenses the threshold sweep.
type PhaseBSummary struct {
	BestF1  float64 `json:"best_f1"`
	NTrials int     `json:"n_trials"`
}

// PhaseAReport holds the structural sweep history and winner.
type PhaseAReport struct {
	Trials  []StructuralTrial `json:"trials"`
	Best    *StructuralTrial  `json:"best,omitempty"`
	Summary PhaseASummary     `json:"summary"`
}

// PhaseBReport holds the threshold sweep history and winner.
type PhaseBReport struct {
	Trials  []GateTrial   `json:"trials"`
	Best    *GateTrial    `json:"best,omitempty"`
	Summary PhaseBSummary `json:"summary"`
}

// Recommendation is the merged winning configuration with the metrics
// the winning trial actually measured.
type Recommendation struct {
	Config    *config.Config `json:"config"`
	F1        float64        `json:"f1"`
	Recall    float64        `json:"recall"`
	Precision float64        `json:"precision"`
}

// Report is the tuning_report.json payload.
type Report struct {
	RunID     string          `json:"run_id"`
	Timestamp string          `json:"timestamp"`
	Status    string          `json:"status"`
	Budget    int             `json:"budget"`
	PhaseA    PhaseAReport    `json:"phase_a"`
	PhaseB    PhaseBReport    `json:"phase_b"`
	Final     *Recommendation `json:"final_recommendation,omitempty"`
}

// Params is the params.json payload: the recommended configuration, its
// winning metrics, and the fingerprint a later run can be checked
// against.
type Params struct {
	Config      *config.Config `json:"config"`
	F1          float64        `json:"f1"`
	Recall      float64        `json:"recall"`
	Precision   float64        `json:"precision"`
	Fingerprint string         `json:"fingerprint"`
}

// Evaluator measures one derived configuration against the query set.
// The production evaluator builds a throwaway pipeline per trial; tests
// substitute a scoring function.
type Evaluator func(ctx context.Context, cfg *config.Config, queries []eval.Query) (eval.Aggregate, error)

// Tuner runs the two-phase parameter search over a base configuration.
type Tuner struct {
	base     *config.Config
	evaluate Evaluator
	workers  int
	logger   *slog.Logger
}

// New creates a tuner. A nil evaluate installs the production
// evaluator; a nil logger falls back to slog.Default().
func New(base *config.Config, evaluate Evaluator, logger *slog.Logger) *Tuner {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tuner{
		base:    base,
		workers: base.EffectiveWorkers(),
		logger:  logger,
	}
	if evaluate == nil {
		evaluate = func(ctx context.Context, cfg *config.Config, queries []eval.Query) (eval.Aggregate, error) {
			return EvaluateConfig(ctx, cfg, queries, logger)
		}
	}
	t.evaluate = evaluate
	return t
}

// EvaluateConfig builds a pipeline for cfg, evaluates the queries, and
// tears the pipeline down again, returning only the aggregate.
func EvaluateConfig(ctx context.Context, cfg *config.Config, queries []eval.Query, logger *slog.Logger) (eval.Aggregate, error) {
	index, pipeline, err := eval.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return eval.Aggregate{}, err
	}
	defer func() {
		_ = pipeline.Close()
		_ = index.Close()
	}()

	result, err := eval.NewHarness(cfg, pipeline, logger).Evaluate(ctx, queries)
	if err != nil {
		return eval.Aggregate{}, err
	}
	return result.Aggregate, nil
}

// Run executes Phase A then Phase B within the trial budget, writes
// tuning_report.json plus, when a recommendation exists, params.json
// and effective_config.yaml, and returns the report. Cancellation stops
// scheduling new trials and persists what completed with status
// "partial" and a nil error. A run that finishes with no successful
// trial at all returns the persisted report alongside ERR_503.
func (t *Tuner) Run(ctx context.Context, queries []eval.Query, resultsDir string) (*Report, error) {
	start := time.Now()
	budget := t.base.Tuning.BudgetTrials
	perPhase := budget / 2

	report := &Report{
		RunID:     uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Status:    StatusCompleted,
		Budget:    budget,
		PhaseA:    PhaseAReport{Trials: []StructuralTrial{}},
		PhaseB:    PhaseBReport{Trials: []GateTrial{}},
	}

	grid := StructuralGrid()
	sampled := SampleByStride(grid, perPhase)
	t.logger.Info("phase A: structural sweep",
		slog.String("run_id", report.RunID),
		slog.Int("grid", len(grid)),
		slog.Int("trials", len(sampled)),
		slog.Int("workers", t.workers))

	for _, o := range runTrials(ctx, t, sampled, applyStructural, queries) {
		if !o.ok {
			continue
		}
		report.PhaseA.Trials = append(report.PhaseA.Trials, StructuralTrial{Params: o.params, TrialMetrics: o.metrics})
	}
	report.PhaseA.Best = bestByRecall(report.PhaseA.Trials)
	report.PhaseA.Summary.NTrials = len(report.PhaseA.Trials)
	if report.PhaseA.Best != nil {
		report.PhaseA.Summary.BestRecall = report.PhaseA.Best.Recall
	}

	// Phase B fixes the structural winner. Without one (empty Phase A
	// or all trials failed) the base configuration's shape stands in.
	winner := structuralFromConfig(t.base)
	if report.PhaseA.Best != nil {
		winner = report.PhaseA.Best.Params
	}

	if ctx.Err() == nil {
		gates := GateGrid()
		sampledGates := SampleByStride(gates, perPhase)
		if len(sampledGates) == 0 {
			sampledGates = fallbackGateParams
		}
		t.logger.Info("phase B: threshold sweep",
			slog.String("run_id", report.RunID),
			slog.Int("grid", len(gates)),
			slog.Int("trials", len(sampledGates)))

		applyGateOverWinner := func(cfg *config.Config, p GateParams) {
			applyStructural(cfg, winner)
			applyGate(cfg, p)
		}
		for _, o := range runTrials(ctx, t, sampledGates, applyGateOverWinner, queries) {
			if !o.ok {
				continue
			}
			report.PhaseB.Trials = append(report.PhaseB.Trials, GateTrial{Params: o.params, TrialMetrics: o.metrics})
		}
		report.PhaseB.Best = bestByF1(report.PhaseB.Trials)
		report.PhaseB.Summary.NTrials = len(report.PhaseB.Trials)
		if report.PhaseB.Best != nil {
			report.PhaseB.Summary.BestF1 = report.PhaseB.Best.F1
		}
	}

	if ctx.Err() != nil {
		report.Status = StatusPartial
	}

	if report.PhaseB.Best != nil {
		recommended := t.base.Clone()
		applyStructural(recommended, winner)
		applyGate(recommended, report.PhaseB.Best.Params)
		report.Final = &Recommendation{
			Config:    recommended,
			F1:        report.PhaseB.Best.F1,
			Recall:    report.PhaseB.Best.Recall,
			Precision: report.PhaseB.Best.Precision,
		}
	}

	if err := t.writeArtifacts(resultsDir, report); err != nil {
		return nil, err
	}

	t.logger.Info("tuning run finished",
		slog.String("run_id", report.RunID),
		slog.String("status", report.Status),
		slog.Int("phase_a_trials", report.PhaseA.Summary.NTrials),
		slog.Int("phase_b_trials", report.PhaseB.Summary.NTrials),
		slog.Duration("elapsed", time.Since(start)))

	if report.Status == StatusCompleted && report.Final == nil {
		return report, herrors.Newf(herrors.ErrCodeTuningFailed, "no tuning trial completed successfully")
	}
	return report, nil
}

// outcome is one trial slot. ok is false for failed or never-started
// trials; the slice index preserves grid order for winner selection.
type outcome[P any] struct {
	params  P
	metrics TrialMetrics
	ok      bool
}

// runTrials evaluates every parameter set with up to workers trials in
// flight. Failed trials are logged and skipped; after cancellation the
// remaining slots drain without running.
func runTrials[P any](ctx context.Context, t *Tuner, paramSets []P, apply func(*config.Config, P), queries []eval.Query) []outcome[P] {
	results := make([]outcome[P], len(paramSets))
	g := new(errgroup.Group)
	g.SetLimit(t.workers)
	for i, p := range paramSets {
		i, p := i, p
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			cfg := t.base.Clone()
			apply(cfg, p)
			// Trials never persist their throwaway indexes.
			cfg.VectorStore.Persist = false

			trialStart := time.Now()
			agg, err := t.evaluate(ctx, cfg, queries)
			if err != nil {
				if ctx.Err() == nil {
					t.logger.Warn("tuning trial failed",
						slog.Any("params", p),
						slog.String("error", err.Error()))
				}
				return nil
			}
			results[i] = outcome[P]{
				params: p,
				metrics: TrialMetrics{
					Recall:    agg.Recall,
					F1:        agg.F1,
					Precision: agg.Precision,
					NQueries:  agg.NQueries,
					ElapsedMS: elapsedMS(trialStart),
				},
				ok: true,
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (t *Tuner) writeArtifacts(resultsDir string, report *Report) error {
	if err := eval.WriteJSON(filepath.Join(resultsDir, TuningReportFileName), report); err != nil {
		return err
	}
	if report.Final == nil {
		return nil
	}
	params := Params{
		Config:      report.Final.Config,
		F1:          report.Final.F1,
		Recall:      report.Final.Recall,
		Precision:   report.Final.Precision,
		Fingerprint: report.Final.Config.Fingerprint(),
	}
	if err := eval.WriteJSON(filepath.Join(resultsDir, ParamsFileName), params); err != nil {
		return err
	}
	data, err := yaml.Marshal(report.Final.Config)
	if err != nil {
		return herrors.New(herrors.ErrCodeArtifactWrite, "cannot encode "+EffectiveConfigYAMLName, err)
	}
	return eval.WriteBytes(filepath.Join(resultsDir, EffectiveConfigYAMLName), data)
}

func applyStructural(cfg *config.Config, p StructuralParams) {
	cfg.Retriever.K = p.K
	cfg.Retriever.Strategy = p.Strategy
	cfg.Retriever.MMRLambda = p.MMRLambda
	cfg.Splitter.ChunkSize = p.ChunkSize
	cfg.Splitter.ChunkOverlap = p.ChunkOverlap
}

func applyGate(cfg *config.Config, p GateParams) {
	cfg.Gating.Tau = p.Tau
	cfg.Gating.Delta = p.Delta
	cfg.Gating.Ratio = p.Ratio
	cfg.Gating.MinOverlap = p.MinOverlap
	cfg.Gating.KeepWithin = p.KeepWithin
}

// structuralFromConfig reads the base configuration's shape, the
// stand-in when Phase A produced no usable trial.
func structuralFromConfig(cfg *config.Config) StructuralParams {
	return StructuralParams{
		K:            cfg.Retriever.K,
		ChunkSize:    cfg.Splitter.ChunkSize,
		ChunkOverlap: cfg.Splitter.ChunkOverlap,
		Strategy:     cfg.Retriever.Strategy,
		MMRLambda:    cfg.Retriever.MMRLambda,
	}
}

// bestByRecall returns the first trial holding the highest recall, so
// earlier grid positions win ties.
func bestByRecall(trials []StructuralTrial) *StructuralTrial {
	var best *StructuralTrial
	for i := range trials {
		if best == nil || trials[i].Recall > best.Recall {
			best = &trials[i]
		}
	}
	return best
}

// bestByF1 returns the first trial holding the highest F1.
func bestByF1(trials []GateTrial) *GateTrial {
	var best *GateTrial
	for i := range trials {
		if best == nil || trials[i].F1 > best.F1 {
			best = &trials[i]
		}
	}
	return best
}

func elapsedMS(start time.Time) float64 {
	return math.Round(float64(time.Since(start))/float64(time.Millisecond)*100) / 100
}
