// Package retrieve selects candidate chunks for a query. It owns the
// retrieval strategies (plain similarity, diversity-oriented mmr, hybrid
// vector+keyword fusion), the cosine-floor prefilter, and the index
// builder that turns a knowledge base into a searchable index.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/open-access-policies/policy-crew/internal/chunk"
	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/embed"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
	"github.com/open-access-policies/policy-crew/internal/store"
)

// Retrieval strategy names as they appear in configuration.
const (
	// StrategySimilarity returns the k nearest chunks by cosine.
	StrategySimilarity = "similarity"

	// StrategyMMR over-fetches 2k, deduplicates exact content repeats,
	// and truncates to k.
	StrategyMMR = "mmr"

	// StrategyHybrid fuses vector and keyword rankings with RRF.
	StrategyHybrid = "hybrid"
)

// Candidate is a retrieved chunk with its embedding-space similarity to
// the query. The score is always a cosine value, never a cross-encoder
// score; the cosine floor compares against it directly.
type Candidate struct {
	Chunk chunk.Chunk
	Score float64
}

// Retriever produces candidate chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]Candidate, error)
}

// ChunkSource resolves chunk IDs from search hits back to chunk content.
type ChunkSource interface {
	Get(ctx context.Context, id string) (chunk.Chunk, bool, error)
}

var _ ChunkSource = (*store.ChunkStore)(nil)

// EngineOptions wires an Engine's dependencies.
type EngineOptions struct {
	Embedder embed.Embedder
	Vectors  store.VectorStore
	Chunks   ChunkSource

	// Keywords is required for the hybrid strategy, ignored otherwise.
	Keywords store.KeywordIndex

	Config config.RetrieverConfig

	// CosineFloor drops candidates below this embedding-space cosine
	// similarity. Zero disables the prefilter.
	CosineFloor float64

	Logger *slog.Logger
}

// Engine implements Retriever against a built index.
type Engine struct {
	embedder    embed.Embedder
	vectors     store.VectorStore
	chunks      ChunkSource
	keywords    store.KeywordIndex
	strategy    string
	k           int
	cosineFloor float64
	logger      *slog.Logger
}

var _ Retriever = (*Engine)(nil)

// NewEngine creates a retrieval engine. The strategy must be one of the
// Strategy constants, and the hybrid strategy requires a keyword index.
func NewEngine(opts EngineOptions) (*Engine, error) {
	switch opts.Config.Strategy {
	case StrategySimilarity, StrategyMMR, StrategyHybrid:
	default:
		return nil, herrors.Newf(herrors.ErrCodeConfigValidation, "unknown retrieval strategy %q (valid options: similarity, mmr, hybrid)", opts.Config.Strategy)
	}
	if opts.Config.Strategy == StrategyHybrid && opts.Keywords == nil {
		return nil, herrors.Newf(herrors.ErrCodeConfigValidation, "hybrid retrieval requires a keyword index")
	}
	if opts.Config.K <= 0 {
		return nil, herrors.Newf(herrors.ErrCodeConfigValidation, "retriever.k must be positive, got %d", opts.Config.K)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Engine{
		embedder:    opts.Embedder,
		vectors:     opts.Vectors,
		chunks:      opts.Chunks,
		keywords:    opts.Keywords,
		strategy:    opts.Config.Strategy,
		k:           opts.Config.K,
		cosineFloor: opts.CosineFloor,
		logger:      opts.Logger,
	}, nil
}

// Retrieve embeds the query, runs the configured strategy, and applies
// the cosine-floor prefilter. An empty corpus or a fully filtered
// candidate set returns an empty slice, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string) ([]Candidate, error) {
	start := time.Now()

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	switch e.strategy {
	case StrategySimilarity:
		candidates, err = e.bySimilarity(ctx, queryVec)
	case StrategyMMR:
		candidates, err = e.byMMR(ctx, queryVec)
	case StrategyHybrid:
		candidates, err = e.byHybrid(ctx, query, queryVec)
	}
	if err != nil {
		return nil, err
	}

	kept := e.applyCosineFloor(candidates)

	e.logger.Debug("retrieval complete",
		slog.String("strategy", e.strategy),
		slog.Int("candidates", len(candidates)),
		slog.Int("after_floor", len(kept)),
		slog.Duration("elapsed", time.Since(start)))
	return kept, nil
}

// bySimilarity returns the k nearest chunks. Ties rank in chunk insertion
// order when the backing store is exact.
func (e *Engine) bySimilarity(ctx context.Context, queryVec []float32) ([]Candidate, error) {
	hits, err := e.vectors.Search(ctx, queryVec, e.k)
	if err != nil {
		return nil, err
	}
	return e.resolve(ctx, hits)
}

// byMMR fetches 2k candidates, drops exact content repeats keeping the
// first occurrence, and truncates to k. Deduplication-then-truncation is
// deliberate: it keeps the strategy deterministic where a marginal
// relevance re-selection would trade that away for diversity.
func (e *Engine) byMMR(ctx context.Context, queryVec []float32) ([]Candidate, error) {
	hits, err := e.vectors.Search(ctx, queryVec, 2*e.k)
	if err != nil {
		return nil, err
	}
	candidates, err := e.resolve(ctx, hits)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(candidates))
	deduped := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.Chunk.Content]; dup {
			continue
		}
		seen[c.Chunk.Content] = struct{}{}
		deduped = append(deduped, c)
	}

	if len(deduped) > e.k {
		deduped = deduped[:e.k]
	}
	return deduped, nil
}

// byHybrid fuses vector and keyword rankings with reciprocal rank fusion
// and keeps the top k fused hits. Keyword-only hits get their cosine
// score by embedding their content, which is a cache hit for any chunk
// embedded during the build.
func (e *Engine) byHybrid(ctx context.Context, query string, queryVec []float32) ([]Candidate, error) {
	fetch := 2 * e.k

	vecHits, err := e.vectors.Search(ctx, queryVec, fetch)
	if err != nil {
		return nil, err
	}
	kwHits, err := e.keywords.Search(ctx, query, fetch)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(vecHits, kwHits)
	if len(fused) > e.k {
		fused = fused[:e.k]
	}

	candidates := make([]Candidate, 0, len(fused))
	for _, hit := range fused {
		c, ok, err := e.chunks.Get(ctx, hit.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, herrors.Newf(herrors.ErrCodeIndexCorrupt, "chunk %s referenced by the index is missing from the chunk store", hit.ID)
		}

		score := hit.VectorScore
		if hit.VectorRank == 0 {
			chunkVec, err := e.embedder.Embed(ctx, c.Content)
			if err != nil {
				return nil, err
			}
			score = embed.Cosine(queryVec, chunkVec)
		}
		candidates = append(candidates, Candidate{Chunk: c, Score: score})
	}
	return candidates, nil
}

// resolve maps vector hits to candidates with chunk content.
func (e *Engine) resolve(ctx context.Context, hits []store.SearchResult) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		c, ok, err := e.chunks.Get(ctx, hit.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve chunk %s: %w", hit.ID, err)
		}
		if !ok {
			return nil, herrors.Newf(herrors.ErrCodeIndexCorrupt, "chunk %s referenced by the index is missing from the chunk store", hit.ID)
		}
		candidates = append(candidates, Candidate{Chunk: c, Score: hit.Score})
	}
	return candidates, nil
}

// applyCosineFloor drops candidates whose embedding-space similarity is
// below the floor. A zero floor keeps everything.
func (e *Engine) applyCosineFloor(candidates []Candidate) []Candidate {
	if e.cosineFloor <= 0 {
		return candidates
	}
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= e.cosineFloor {
			kept = append(kept, c)
		}
	}
	return kept
}
