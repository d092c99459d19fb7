package config

import (
	"fmt"
	"strconv"
	"strings"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// envOverride binds one environment variable to one dotted config path.
type envOverride struct {
	env   string
	path  string
	apply func(c *Config, value string) error
}

// envOverrides is the fixed override table. RAG_CONFIG is handled in
// resolvePath and intentionally absent here.
var envOverrides = []envOverride{
	{"RAG_KB_DIR", "paths.kb_dir", setString(func(c *Config) *string { return &c.Paths.KBDir })},
	{"RAG_INDEX_DIR", "paths.index_dir", setString(func(c *Config) *string { return &c.Paths.IndexDir })},
	{"RAG_RESULTS_DIR", "paths.results_dir", setString(func(c *Config) *string { return &c.Paths.ResultsDir })},
	{"RAG_MAX_FILES", "loader.max_files", setInt(func(c *Config) *int { return &c.Loader.MaxFiles })},
	{"RAG_CHUNK_SIZE", "splitter.chunk_size", setInt(func(c *Config) *int { return &c.Splitter.ChunkSize })},
	{"RAG_CHUNK_OVERLAP", "splitter.chunk_overlap", setInt(func(c *Config) *int { return &c.Splitter.ChunkOverlap })},
	{"RAG_EMBED_BACKEND", "embedder.backend", setString(func(c *Config) *string { return &c.Embedder.Backend })},
	{"RAG_EMBED_MODEL", "embedder.model", setString(func(c *Config) *string { return &c.Embedder.Model })},
	{"RAG_EMBED_BASE_URL", "embedder.base_url", setString(func(c *Config) *string { return &c.Embedder.BaseURL })},
	{"RAG_EMBED_USE_GPU", "embedder.use_gpu", setBool(func(c *Config) *bool { return &c.Embedder.UseGPU })},
	{"RAG_EMBED_BATCH_SIZE", "embedder.batch_size", setInt(func(c *Config) *int { return &c.Embedder.BatchSize })},
	{"RAG_COSINE_FLOOR", "embedder.cosine_floor", setFloat(func(c *Config) *float64 { return &c.Embedder.CosineFloor })},
	{"RAG_VECTOR_STORE", "vector_store.type", setString(func(c *Config) *string { return &c.VectorStore.Type })},
	{"RAG_VECTOR_PERSIST", "vector_store.persist", setBool(func(c *Config) *bool { return &c.VectorStore.Persist })},
	{"RAG_RETRIEVAL_STRATEGY", "retriever.strategy", setString(func(c *Config) *string { return &c.Retriever.Strategy })},
	{"RAG_RETRIEVAL_K", "retriever.k", setInt(func(c *Config) *int { return &c.Retriever.K })},
	{"RAG_MMR_LAMBDA", "retriever.mmr_lambda", setFloat(func(c *Config) *float64 { return &c.Retriever.MMRLambda })},
	{"RAG_RERANKER_MODEL", "reranker.model", setString(func(c *Config) *string { return &c.Reranker.Model })},
	{"RAG_RERANKER_DEVICE", "reranker.device", setString(func(c *Config) *string { return &c.Reranker.Device })},
	{"RAG_RERANKER_BASE_URL", "reranker.base_url", setString(func(c *Config) *string { return &c.Reranker.BaseURL })},
	{"RAG_RERANK_MAX_LENGTH", "reranker.max_length", setInt(func(c *Config) *int { return &c.Reranker.MaxLength })},
	{"RAG_RERANK_BATCH_SIZE", "reranker.batch_size", setInt(func(c *Config) *int { return &c.Reranker.BatchSize })},
	{"RAG_GATE_TAU", "gating.tau", setFloat(func(c *Config) *float64 { return &c.Gating.Tau })},
	{"RAG_GATE_DELTA", "gating.delta", setFloat(func(c *Config) *float64 { return &c.Gating.Delta })},
	{"RAG_GATE_RATIO", "gating.ratio", setFloat(func(c *Config) *float64 { return &c.Gating.Ratio })},
	{"RAG_GATE_MIN_OVERLAP", "gating.min_overlap", setFloat(func(c *Config) *float64 { return &c.Gating.MinOverlap })},
	{"RAG_GATE_KEEP_WITHIN", "gating.keep_within", setFloat(func(c *Config) *float64 { return &c.Gating.KeepWithin })},
	{"RAG_TOP_K_RETURN", "gating.top_k_return", setInt(func(c *Config) *int { return &c.Gating.TopKReturn })},
	{"RAG_FORCE_CPU_EMBEDDINGS", "preflight.force_cpu_embeddings", setBool(func(c *Config) *bool { return &c.Preflight.ForceCPUEmbeddings })},
	{"RAG_FORCE_CPU_RERANKER", "preflight.force_cpu_reranker", setBool(func(c *Config) *bool { return &c.Preflight.ForceCPUReranker })},
	{"RAG_SKIP_OLLAMA", "preflight.skip_ollama", setBool(func(c *Config) *bool { return &c.Preflight.SkipOllama })},
	{"RAG_TUNE_BUDGET", "tuning.budget_trials", setInt(func(c *Config) *int { return &c.Tuning.BudgetTrials })},
	{"RAG_TUNE_SEED", "tuning.random_seed", setInt64(func(c *Config) *int64 { return &c.Tuning.RandomSeed })},
	{"RAG_TUNE_WORKERS", "tuning.workers", setInt(func(c *Config) *int { return &c.Tuning.Workers })},
	{"RAG_LOG_LEVEL", "logging.level", setString(func(c *Config) *string { return &c.Logging.Level })},
	{"RAG_LOG_FILE", "logging.file", setString(func(c *Config) *string { return &c.Logging.File })},
}

// ApplyOverrides applies the fixed RAG_* override table from the given
// environment. Unparseable values fail with ErrCodeConfigOverrideType.
// Called exactly once per load.
func (c *Config) ApplyOverrides(env map[string]string) error {
	for _, o := range envOverrides {
		value, ok := env[o.env]
		if !ok || value == "" {
			continue
		}
		if err := o.apply(c, value); err != nil {
			return herrors.New(herrors.ErrCodeConfigOverrideType,
				fmt.Sprintf("invalid value for %s (%s): %v", o.env, o.path, err), err).
				WithDetail("variable", o.env).
				WithDetail("path", o.path).
				WithDetail("value", value)
		}
	}
	return nil
}

// OverrideVariables returns the environment variable names in the table,
// in table order. Used by preflight and help output.
func OverrideVariables() []string {
	names := make([]string, 0, len(envOverrides))
	for _, o := range envOverrides {
		names = append(names, o.env)
	}
	return names
}

func setString(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, value string) error {
		*field(c) = value
		return nil
	}
}

func setInt(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, value string) error {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("expected integer, got %q", value)
		}
		*field(c) = n
		return nil
	}
}

func setInt64(field func(*Config) *int64) func(*Config, string) error {
	return func(c *Config, value string) error {
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("expected integer, got %q", value)
		}
		*field(c) = n
		return nil
	}
}

func setFloat(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, value string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("expected number, got %q", value)
		}
		*field(c) = f
		return nil
	}
}

func setBool(field func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, value string) error {
		b, err := parseBoolToken(value)
		if err != nil {
			return err
		}
		*field(c) = b
		return nil
	}
}

// parseBoolToken accepts the boolean spellings true/false, 1/0, yes/no,
// on/off, case-insensitively.
func parseBoolToken(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean (true/false/1/0/yes/no/on/off), got %q", value)
	}
}
