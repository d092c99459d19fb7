// Package config loads, validates, and fingerprints the harness
// configuration.
//
// The configuration is a single YAML file with a fixed set of required
// sections. Load resolves the file, checks every required key, applies
// RAG_* environment overrides exactly once, and returns an immutable
// value. Components receive the value through constructors; a changed
// effective configuration is a new value, never a mutation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// DefaultConfigPath is the path tried when no explicit path or RAG_CONFIG
// environment variable is set.
const DefaultConfigPath = "config/rag.yaml"

// Config is the complete harness configuration.
type Config struct {
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Loader      LoaderConfig      `yaml:"loader" json:"loader"`
	Splitter    SplitterConfig    `yaml:"splitter" json:"splitter"`
	Embedder    EmbedderConfig    `yaml:"embedder" json:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store" json:"vector_store"`
	Retriever   RetrieverConfig   `yaml:"retriever" json:"retriever"`
	Reranker    RerankerConfig    `yaml:"reranker" json:"reranker"`
	Gating      GatingConfig      `yaml:"gating" json:"gating"`
	Preflight   PreflightConfig   `yaml:"preflight" json:"preflight"`
	Tuning      TuningConfig      `yaml:"tuning" json:"tuning"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// PathsConfig locates the knowledge base and output directories.
type PathsConfig struct {
	KBDir      string `yaml:"kb_dir" json:"kb_dir"`
	IndexDir   string `yaml:"index_dir" json:"index_dir"`
	ResultsDir string `yaml:"results_dir" json:"results_dir"`
}

// LoaderConfig controls corpus file discovery.
type LoaderConfig struct {
	// Globs are include patterns relative to kb_dir.
	Globs []string `yaml:"globs" json:"globs"`
	// Exclude patterns are matched against the same relative paths.
	Exclude []string `yaml:"exclude" json:"exclude"`
	// MaxFiles caps the number of loaded documents. 0 means unlimited.
	MaxFiles int `yaml:"max_files" json:"max_files"`
}

// SplitterConfig controls document chunking.
type SplitterConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
}

// EmbedderConfig configures the embedding backend.
type EmbedderConfig struct {
	// Backend selects the embedder: "ollama" (HTTP service) or "static"
	// (deterministic offline hashing, used by smoketest and tests).
	Backend   string  `yaml:"backend" json:"backend"`
	Model     string  `yaml:"model" json:"model"`
	BaseURL   string  `yaml:"base_url" json:"base_url"`
	UseGPU    bool    `yaml:"use_gpu" json:"use_gpu"`
	BatchSize int     `yaml:"batch_size" json:"batch_size"`
	// CosineFloor prefilters retrieval candidates by embedding-space
	// cosine similarity. 0 disables the prefilter.
	CosineFloor float64 `yaml:"cosine_floor" json:"cosine_floor"`
}

// VectorStoreConfig configures the vector index backend.
type VectorStoreConfig struct {
	// Type selects the backend: "hnsw" or "memory".
	Type string `yaml:"type" json:"type"`
	// Persist saves the index and chunks under index_dir between runs.
	Persist bool `yaml:"persist" json:"persist"`
}

// RetrieverConfig configures candidate retrieval.
type RetrieverConfig struct {
	// Strategy is "similarity", "mmr", or "hybrid".
	Strategy  string  `yaml:"strategy" json:"strategy"`
	K         int     `yaml:"k" json:"k"`
	MMRLambda float64 `yaml:"mmr_lambda" json:"mmr_lambda"`
}

// RerankerConfig configures the cross-encoder scoring service.
type RerankerConfig struct {
	// Model names the cross-encoder, or "lexical" for the in-process
	// offline scorer.
	Model     string `yaml:"model" json:"model"`
	Device    string `yaml:"device" json:"device"`
	MaxLength int    `yaml:"max_length" json:"max_length"`
	BatchSize int    `yaml:"batch_size" json:"batch_size"`
	// BaseURL is the scoring service endpoint. Optional.
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// GatingConfig holds the four-gate acceptance thresholds.
type GatingConfig struct {
	Tau        float64 `yaml:"tau" json:"tau"`
	Delta      float64 `yaml:"delta" json:"delta"`
	Ratio      float64 `yaml:"ratio" json:"ratio"`
	MinOverlap float64 `yaml:"min_overlap" json:"min_overlap"`
	KeepWithin float64 `yaml:"keep_within" json:"keep_within"`
	TopKReturn int     `yaml:"top_k_return" json:"top_k_return"`
}

// PreflightConfig forces degraded modes for constrained environments.
type PreflightConfig struct {
	ForceCPUEmbeddings bool `yaml:"force_cpu_embeddings" json:"force_cpu_embeddings"`
	ForceCPUReranker   bool `yaml:"force_cpu_reranker" json:"force_cpu_reranker"`
	SkipOllama         bool `yaml:"skip_ollama" json:"skip_ollama"`
}

// TuningConfig configures the grid-search tuner. Optional section.
type TuningConfig struct {
	BudgetTrials int   `yaml:"budget_trials" json:"budget_trials"`
	RandomSeed   int64 `yaml:"random_seed" json:"random_seed"`
	// Workers caps parallel trial evaluation. 0 means auto.
	Workers int `yaml:"workers" json:"workers"`
}

// LoggingConfig configures structured logging. Optional section.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// NewConfig creates a Config with the harness defaults. The defaults match
// the embedded starter template; required keys still must appear in the
// loaded file.
func NewConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			KBDir:      "docs/kb",
			IndexDir:   ".ragharness/index",
			ResultsDir: ".ragharness/results",
		},
		Loader: LoaderConfig{
			Globs:    []string{"**/*.md"},
			Exclude:  []string{"**/node_modules/**", "**/.git/**"},
			MaxFiles: 0,
		},
		Splitter: SplitterConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
		Embedder: EmbedderConfig{
			Backend:     "ollama",
			Model:       "nomic-embed-text",
			BaseURL:     "http://127.0.0.1:11434",
			UseGPU:      true,
			BatchSize:   16,
			CosineFloor: 0.0,
		},
		VectorStore: VectorStoreConfig{
			Type:    "hnsw",
			Persist: false,
		},
		Retriever: RetrieverConfig{
			Strategy:  "similarity",
			K:         10,
			MMRLambda: 0.5,
		},
		Reranker: RerankerConfig{
			Model:     "BAAI/bge-reranker-base",
			Device:    "",
			MaxLength: 512,
			BatchSize: 16,
			BaseURL:   "http://127.0.0.1:8580",
		},
		Gating: GatingConfig{
			Tau:        0.25,
			Delta:      0.05,
			Ratio:      1.15,
			MinOverlap: 0.10,
			KeepWithin: 0.02,
			TopKReturn: 3,
		},
		Preflight: PreflightConfig{},
		Tuning: TuningConfig{
			BudgetTrials: 50,
			RandomSeed:   42,
			Workers:      0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// requiredSections lists every section and key that must appear in the
// config file. Order here fixes the order of missing-key reports.
var requiredSections = []struct {
	name string
	keys []string
}{
	{"paths", []string{"kb_dir", "index_dir", "results_dir"}},
	{"loader", []string{"globs", "exclude", "max_files"}},
	{"splitter", []string{"chunk_size", "chunk_overlap"}},
	{"embedder", []string{"backend", "model", "base_url", "use_gpu", "batch_size", "cosine_floor"}},
	{"vector_store", []string{"type", "persist"}},
	{"retriever", []string{"strategy", "k", "mmr_lambda"}},
	{"reranker", []string{"model", "device", "max_length", "batch_size"}},
	{"gating", []string{"tau", "delta", "ratio", "min_overlap", "keep_within", "top_k_return"}},
	{"preflight", []string{"force_cpu_embeddings", "force_cpu_reranker", "skip_ollama"}},
}

// Load resolves and loads the configuration file.
//
// Resolution order: the explicit path argument, then the RAG_CONFIG
// environment variable, then rag.yaml, then config/rag.yaml. Returns
// ErrCodeConfigNotFound when nothing resolves, ErrCodeConfigValidation
// listing every missing required key, and ErrCodeConfigOverrideType when
// an environment override cannot be coerced.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, herrors.New(herrors.ErrCodeConfigNotFound,
			fmt.Sprintf("cannot read config file %s", resolved), err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyOverrides(EnvironMap()); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse parses config file bytes, checking required-key presence against
// the raw mapping before typed decoding. Defaults fill optional keys only.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, herrors.New(herrors.ErrCodeConfigValidation,
			fmt.Sprintf("cannot parse config YAML: %v", err), err)
	}

	if missing := missingRequiredKeys(raw); len(missing) > 0 {
		return nil, herrors.New(herrors.ErrCodeConfigValidation,
			fmt.Sprintf("config validation failed: missing required keys: %s",
				strings.Join(missing, ", ")), nil).
			WithDetail("missing", strings.Join(missing, ", ")).
			WithSuggestion("Run 'ragharness init' to generate a complete config file")
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, herrors.New(herrors.ErrCodeConfigValidation,
			fmt.Sprintf("cannot decode config: %v", err), err)
	}

	return cfg, nil
}

// missingRequiredKeys reports every absent required section or key, in
// declaration order.
func missingRequiredKeys(raw map[string]any) []string {
	var missing []string
	for _, section := range requiredSections {
		value, ok := raw[section.name]
		if !ok {
			missing = append(missing, section.name)
			continue
		}
		mapping, ok := value.(map[string]any)
		if !ok {
			missing = append(missing, section.name)
			continue
		}
		for _, key := range section.keys {
			if _, ok := mapping[key]; !ok {
				missing = append(missing, section.name+"."+key)
			}
		}
	}
	return missing
}

// resolvePath picks the config file path.
func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		if fileExists(explicit) {
			return explicit, nil
		}
		return "", herrors.Newf(herrors.ErrCodeConfigNotFound,
			"config file not found: %s", explicit)
	}

	if env := os.Getenv("RAG_CONFIG"); env != "" {
		if fileExists(env) {
			return env, nil
		}
		return "", herrors.Newf(herrors.ErrCodeConfigNotFound,
			"config file not found: %s (from RAG_CONFIG)", env)
	}

	for _, candidate := range []string{"rag.yaml", DefaultConfigPath} {
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	return "", herrors.Newf(herrors.ErrCodeConfigNotFound,
		"no config file found (tried rag.yaml, %s)", DefaultConfigPath).
		WithSuggestion("Run 'ragharness init' or set RAG_CONFIG")
}

// Validate checks value ranges. Every violation is reported, not just the
// first.
func (c *Config) Validate() error {
	var problems []string

	if c.Splitter.ChunkSize <= 0 {
		problems = append(problems, fmt.Sprintf("splitter.chunk_size must be positive, got %d", c.Splitter.ChunkSize))
	}
	if c.Splitter.ChunkOverlap < 0 {
		problems = append(problems, fmt.Sprintf("splitter.chunk_overlap must be non-negative, got %d", c.Splitter.ChunkOverlap))
	}

	switch c.Embedder.Backend {
	case "ollama", "static":
	default:
		problems = append(problems, fmt.Sprintf("embedder.backend must be 'ollama' or 'static', got %q", c.Embedder.Backend))
	}
	if c.Embedder.CosineFloor < -1 || c.Embedder.CosineFloor > 1 {
		problems = append(problems, fmt.Sprintf("embedder.cosine_floor must be within [-1, 1], got %g", c.Embedder.CosineFloor))
	}

	switch c.VectorStore.Type {
	case "hnsw", "memory":
	default:
		problems = append(problems, fmt.Sprintf("vector_store.type must be 'hnsw' or 'memory', got %q", c.VectorStore.Type))
	}

	switch c.Retriever.Strategy {
	case "similarity", "mmr", "hybrid":
	default:
		problems = append(problems, fmt.Sprintf("retriever.strategy must be 'similarity', 'mmr', or 'hybrid', got %q", c.Retriever.Strategy))
	}
	if c.Retriever.K <= 0 {
		problems = append(problems, fmt.Sprintf("retriever.k must be positive, got %d", c.Retriever.K))
	}
	if c.Retriever.MMRLambda < 0 || c.Retriever.MMRLambda > 1 {
		problems = append(problems, fmt.Sprintf("retriever.mmr_lambda must be within [0, 1], got %g", c.Retriever.MMRLambda))
	}

	for _, check := range []struct {
		name  string
		value float64
	}{
		{"gating.tau", c.Gating.Tau},
		{"gating.delta", c.Gating.Delta},
		{"gating.min_overlap", c.Gating.MinOverlap},
		{"gating.keep_within", c.Gating.KeepWithin},
	} {
		if check.value < 0 || check.value > 1 {
			problems = append(problems, fmt.Sprintf("%s must be within [0, 1], got %g", check.name, check.value))
		}
	}
	if c.Gating.Ratio <= 0 {
		problems = append(problems, fmt.Sprintf("gating.ratio must be positive, got %g", c.Gating.Ratio))
	}
	if c.Gating.TopKReturn <= 0 {
		problems = append(problems, fmt.Sprintf("gating.top_k_return must be positive, got %d", c.Gating.TopKReturn))
	}

	if c.Tuning.BudgetTrials < 0 {
		problems = append(problems, fmt.Sprintf("tuning.budget_trials must be non-negative, got %d", c.Tuning.BudgetTrials))
	}

	if len(problems) > 0 {
		return herrors.New(herrors.ErrCodeConfigValidation,
			fmt.Sprintf("config validation failed: %s", strings.Join(problems, "; ")), nil).
			WithDetail("problems", strings.Join(problems, "; "))
	}
	return nil
}

// Clone returns a deep copy. Tuning trials derive modified configurations
// from the base without touching it.
func (c *Config) Clone() *Config {
	out := *c
	out.Loader.Globs = append([]string(nil), c.Loader.Globs...)
	out.Loader.Exclude = append([]string(nil), c.Loader.Exclude...)
	return &out
}

// Effective returns a copy with the preflight policy applied: it is the
// configuration the run actually executes with, the one fingerprinted
// and written to effective_config artifacts. skip_ollama swaps the
// ollama backend for the offline static embedder, matching what the
// embedder factory does at construction time.
func (c *Config) Effective() *Config {
	out := c.Clone()
	if c.Preflight.ForceCPUEmbeddings && strings.EqualFold(c.Embedder.Backend, "ollama") {
		out.Embedder.UseGPU = false
	}
	if c.Preflight.ForceCPUReranker {
		out.Reranker.Device = "cpu"
	}
	if c.Preflight.SkipOllama && strings.EqualFold(c.Embedder.Backend, "ollama") {
		out.Embedder.Backend = "static"
	}
	return out
}

// EffectiveWorkers resolves the tuning worker count.
func (c *Config) EffectiveWorkers() int {
	if c.Tuning.Workers > 0 {
		return c.Tuning.Workers
	}
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	return n
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// EnvironMap snapshots the process environment as a map.
func EnvironMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

// RequiredKeys returns the full dotted list of required keys, sorted.
// Used by preflight to report schema coverage.
func RequiredKeys() []string {
	var keys []string
	for _, section := range requiredSections {
		for _, key := range section.keys {
			keys = append(keys, section.name+"."+key)
		}
	}
	sort.Strings(keys)
	return keys
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
