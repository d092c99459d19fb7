// Package eval runs labeled queries through the retrieve, score, and
// gate pipeline and aggregates the decisions into grounding metrics.
// Per-query failures are isolated: a query that cannot be evaluated
// becomes a zero-valued row tagged evaluation_error, and the batch
// carries on. The package also owns the run artifacts: metrics.json
// and the effective config snapshot, written atomically under the
// results directory run lock.
package eval

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/embed"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
	"github.com/open-access-policies/policy-crew/internal/rerank"
	"github.com/open-access-policies/policy-crew/internal/retrieve"
)

// Pipeline bundles the per-query stages the harness drives. Tests
// substitute fakes; production wiring comes from NewPipeline.
type Pipeline struct {
	Embedder  embed.Embedder
	Retriever retrieve.Retriever
	Scorer    rerank.Scorer
	Gate      *rerank.Gate
}

// Close releases the pipeline's service clients.
func (p Pipeline) Close() error {
	var first error
	if p.Scorer != nil {
		if err := p.Scorer.Close(); err != nil {
			first = err
		}
	}
	if p.Embedder != nil {
		if err := p.Embedder.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewPipeline builds the index for the configuration and wires the
// evaluation pipeline against it. The caller owns both returns: the
// index and the pipeline must be closed when the run finishes.
func NewPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*retrieve.Index, Pipeline, error) {
	embedder, err := embed.New(ctx, cfg.Embedder, cfg.Preflight, logger)
	if err != nil {
		return nil, Pipeline{}, err
	}

	index, err := retrieve.NewBuilder(cfg, embedder, logger).Build(ctx)
	if err != nil {
		_ = embedder.Close()
		return nil, Pipeline{}, err
	}

	engine, err := retrieve.NewEngine(retrieve.EngineOptions{
		Embedder:    embedder,
		Vectors:     index.Vectors,
		Chunks:      index.Chunks,
		Keywords:    index.Keywords,
		Config:      cfg.Retriever,
		CosineFloor: cfg.Embedder.CosineFloor,
		Logger:      logger,
	})
	if err != nil {
		_ = index.Close()
		_ = embedder.Close()
		return nil, Pipeline{}, err
	}

	scorer, err := rerank.NewScorer(ctx, cfg.Reranker, cfg.Preflight, logger)
	if err != nil {
		_ = index.Close()
		_ = embedder.Close()
		return nil, Pipeline{}, err
	}

	return index, Pipeline{
		Embedder:  embedder,
		Retriever: engine,
		Scorer:    scorer,
		Gate:      rerank.NewGate(cfg.Gating),
	}, nil
}

// Result is a complete evaluation outcome as persisted to metrics.json.
type Result struct {
	RunID       string    `json:"run_id"`
	Timestamp   string    `json:"timestamp"`
	Fingerprint string    `json:"fingerprint"`
	PerQuery    []Row     `json:"per_query"`
	Aggregate   Aggregate `json:"aggregate"`
}

// Harness evaluates query batches against one built index.
type Harness struct {
	cfg      *config.Config
	pipeline Pipeline
	workers  int
	logger   *slog.Logger
}

// NewHarness creates an evaluation harness over a wired pipeline.
func NewHarness(cfg *config.Config, pipeline Pipeline, logger *slog.Logger) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harness{
		cfg:      cfg,
		pipeline: pipeline,
		workers:  cfg.EffectiveWorkers(),
		logger:   logger,
	}
}

// Evaluate runs every query through the pipeline in parallel and
// aggregates the rows. Individual query failures never abort the
// batch; only context cancellation does.
func (h *Harness) Evaluate(ctx context.Context, queries []Query) (*Result, error) {
	start := time.Now()
	rows := make([]Row, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.workers)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			row, _, err := h.evaluateQuery(gctx, q)
			if err != nil {
				return err
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:       uuid.NewString(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fingerprint: h.cfg.Fingerprint(),
		PerQuery:    rows,
		Aggregate:   BuildAggregate(rows),
	}

	h.logger.Info("evaluation complete",
		slog.String("run_id", result.RunID),
		slog.Int("queries", result.Aggregate.NQueries),
		slog.Int("accepted", result.Aggregate.Accepted),
		slog.Int("rejected", result.Aggregate.Rejected),
		slog.Float64("f1", result.Aggregate.F1),
		slog.Duration("elapsed", time.Since(start)))
	return result, nil
}

// Ask evaluates one ad-hoc query and additionally returns the gate
// decision, so callers can show the kept chunks alongside the row.
func (h *Harness) Ask(ctx context.Context, text string) (Row, rerank.Decision, error) {
	return h.evaluateQuery(ctx, Query{Text: text})
}

// evaluateQuery runs one query through the pipeline, timing each
// stage. The index is built once and shared across the batch, so the
// per-query load stage has no work left and reports zero. A non-nil
// error is returned only for context cancellation; every other failure
// becomes an evaluation_error row.
func (h *Harness) evaluateQuery(ctx context.Context, q Query) (Row, rerank.Decision, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, rerank.Decision{}, err
	}

	row := Row{Query: q.Text, Label: q.Label, Notes: q.Notes}
	total := time.Now()

	// Warms the embedding cache; the retriever's own embed of the same
	// query text is then a cache hit.
	embedStart := time.Now()
	if _, err := h.pipeline.Embedder.Embed(ctx, q.Text); err != nil {
		return h.errorRow(ctx, q, err)
	}
	row.TEmbedMS = msSince(embedStart)

	retrieveStart := time.Now()
	candidates, err := h.pipeline.Retriever.Retrieve(ctx, q.Text)
	if err != nil {
		return h.errorRow(ctx, q, err)
	}
	row.TRetrieveMS = msSince(retrieveStart)

	var scores []float64
	if len(candidates) > 0 {
		documents := make([]string, len(candidates))
		for i, c := range candidates {
			documents[i] = c.Chunk.Content
		}
		rerankStart := time.Now()
		scores, err = h.pipeline.Scorer.Score(ctx, q.Text, documents)
		if err != nil {
			return h.errorRow(ctx, q, err)
		}
		row.TRerankMS = msSince(rerankStart)
		if len(scores) != len(candidates) {
			return h.errorRow(ctx, q, herrors.Newf(herrors.ErrCodeRerankerService,
				"scorer returned %d scores for %d candidates", len(scores), len(candidates)))
		}
	}

	gateStart := time.Now()
	decision := h.pipeline.Gate.Apply(q.Text, candidates, scores)
	row.TGateMS = msSince(gateStart)
	row.TTotalMS = msSince(total)

	d := decision.Diagnostics
	row.ReturnedAny = d.ReturnedAny
	row.NCandidates = d.NCandidates
	row.NAfterRerank = d.NAfterRerank
	row.Top1Score = d.Top1
	row.Top2Score = d.Top2
	row.Margin = d.Margin
	row.Ratio = d.Ratio
	row.Overlap = d.Overlap
	row.ChunkLenChars = d.ChunkLenChars
	row.GateTrigger = decision.GateTrigger
	return row, decision, nil
}

// errorRow records a failed evaluation without aborting the batch,
// unless the failure was the batch being canceled.
func (h *Harness) errorRow(ctx context.Context, q Query, err error) (Row, rerank.Decision, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Row{}, rerank.Decision{}, ctxErr
	}

	h.logger.Warn("query evaluation failed",
		slog.String("query", q.Text),
		slog.String("code", herrors.ErrCodeEvaluationQuery),
		slog.String("error", err.Error()))
	row := Row{
		Query:       q.Text,
		Label:       q.Label,
		Notes:       q.Notes,
		GateTrigger: rerank.TriggerEvaluationError,
		DropReason:  rerank.TriggerEvaluationError,
	}
	return row, rerank.Decision{GateTrigger: rerank.TriggerEvaluationError}, nil
}

// msSince reports elapsed wall time in milliseconds, rounded to two
// decimals.
func msSince(start time.Time) float64 {
	return round2(float64(time.Since(start)) / float64(time.Millisecond))
}
