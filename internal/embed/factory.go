package embed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/open-access-policies/policy-crew/internal/config"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// New creates the embedder selected by the configuration, wrapped in an
// LRU cache. The preflight policy can force the offline backend:
// skip_ollama swaps any configured backend for the static embedder so
// runs complete without a service.
func New(ctx context.Context, cfg config.EmbedderConfig, policy config.PreflightConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend := strings.ToLower(cfg.Backend)
	if policy.SkipOllama && backend == "ollama" {
		logger.Warn("skip_ollama is set, using the offline static embedder",
			slog.String("configured_backend", cfg.Backend))
		backend = "static"
	}

	var inner Embedder
	switch backend {
	case "static":
		inner = NewStaticEmbedder()

	case "ollama":
		if policy.ForceCPUEmbeddings || !cfg.UseGPU {
			// Device selection happens inside the service; record the
			// intent so the effective policy is visible in logs.
			logger.Info("embedding on CPU", slog.Bool("use_gpu", false))
		}
		embedder, err := NewOllamaEmbedder(ctx, OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}, logger)
		if err != nil {
			return nil, err
		}
		inner = embedder

	default:
		return nil, herrors.Newf(herrors.ErrCodeConfigValidation,
			"unknown embedder backend %q", cfg.Backend)
	}

	return NewCachedEmbedder(inner, DefaultCacheSize), nil
}
