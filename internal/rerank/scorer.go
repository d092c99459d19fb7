// Package rerank scores retrieval candidates against the query with a
// cross-encoder and decides acceptance through the gate cascade. Scoring
// runs through an external HTTP service or, for offline runs, an
// in-process lexical scorer.
package rerank

import (
	"context"
	"log/slog"

	"github.com/open-access-policies/policy-crew/internal/config"
)

// ModelLexical selects the in-process token-overlap scorer instead of
// the external cross-encoder service.
const ModelLexical = "lexical"

// Scorer assigns a relevance score to every (query, document) pair.
// Scores are returned in document order; the gate owns transformation
// and ranking.
type Scorer interface {
	// Score returns one score per document, aligned with the input.
	Score(ctx context.Context, query string, documents []string) ([]float64, error)

	// ModelName identifies the scoring model.
	ModelName() string

	// Available reports whether the scorer can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NewScorer builds the configured scorer. reranker.model "lexical"
// selects the offline scorer directly; otherwise the HTTP scorer is
// health-checked, and an unreachable service falls back to lexical only
// when preflight.force_cpu_reranker is set.
func NewScorer(ctx context.Context, cfg config.RerankerConfig, pf config.PreflightConfig, logger *slog.Logger) (Scorer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Model == ModelLexical {
		logger.Debug("using lexical scorer")
		return NewLexicalScorer(), nil
	}

	scorer, err := NewHTTPScorer(ctx, cfg, logger)
	if err != nil {
		if pf.ForceCPUReranker {
			logger.Warn("scoring service unreachable, falling back to lexical scorer",
				slog.String("error", err.Error()))
			return NewLexicalScorer(), nil
		}
		return nil, err
	}
	return scorer, nil
}
