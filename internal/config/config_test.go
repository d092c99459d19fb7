package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

const validYAML = `
paths:
  kb_dir: docs/kb
  index_dir: .ragharness/index
  results_dir: .ragharness/results
loader:
  globs: ["**/*.md"]
  exclude: ["**/.git/**"]
  max_files: 0
splitter:
  chunk_size: 1000
  chunk_overlap: 200
embedder:
  backend: ollama
  model: nomic-embed-text
  base_url: http://127.0.0.1:11434
  use_gpu: true
  batch_size: 16
  cosine_floor: 0.0
vector_store:
  type: hnsw
  persist: false
retriever:
  strategy: similarity
  k: 10
  mmr_lambda: 0.5
reranker:
  model: BAAI/bge-reranker-base
  device: ""
  max_length: 512
  batch_size: 16
gating:
  tau: 0.25
  delta: 0.05
  ratio: 1.15
  min_overlap: 0.10
  keep_within: 0.02
  top_k_return: 3
preflight:
  force_cpu_embeddings: false
  force_cpu_reranker: false
  skip_ollama: false
`

// writeConfigFile writes YAML content to a temp file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rag.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// =============================================================================
// Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "docs/kb", cfg.Paths.KBDir)
	assert.Equal(t, ".ragharness/index", cfg.Paths.IndexDir)
	assert.Equal(t, ".ragharness/results", cfg.Paths.ResultsDir)

	assert.Equal(t, []string{"**/*.md"}, cfg.Loader.Globs)
	assert.Contains(t, cfg.Loader.Exclude, "**/.git/**")

	assert.Equal(t, 1000, cfg.Splitter.ChunkSize)
	assert.Equal(t, 200, cfg.Splitter.ChunkOverlap)

	assert.Equal(t, "ollama", cfg.Embedder.Backend)
	assert.Equal(t, "nomic-embed-text", cfg.Embedder.Model)
	assert.Equal(t, 16, cfg.Embedder.BatchSize)
	assert.Equal(t, 0.0, cfg.Embedder.CosineFloor)

	assert.Equal(t, "hnsw", cfg.VectorStore.Type)
	assert.False(t, cfg.VectorStore.Persist)

	assert.Equal(t, "similarity", cfg.Retriever.Strategy)
	assert.Equal(t, 10, cfg.Retriever.K)
	assert.Equal(t, 0.5, cfg.Retriever.MMRLambda)

	assert.Equal(t, 0.25, cfg.Gating.Tau)
	assert.Equal(t, 0.05, cfg.Gating.Delta)
	assert.Equal(t, 1.15, cfg.Gating.Ratio)
	assert.Equal(t, 0.10, cfg.Gating.MinOverlap)
	assert.Equal(t, 0.02, cfg.Gating.KeepWithin)
	assert.Equal(t, 3, cfg.Gating.TopKReturn)

	assert.Equal(t, 50, cfg.Tuning.BudgetTrials)
	assert.Equal(t, int64(42), cfg.Tuning.RandomSeed)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, NewConfig().Validate())
}

// =============================================================================
// Loading and required keys
// =============================================================================

func TestLoad_ValidFile(t *testing.T) {
	// Given: a complete config file
	path := writeConfigFile(t, validYAML)

	// When: loading it
	cfg, err := Load(path)

	// Then: file values are applied and optional sections take defaults
	require.NoError(t, err)
	assert.Equal(t, "docs/kb", cfg.Paths.KBDir)
	assert.Equal(t, 1000, cfg.Splitter.ChunkSize)
	assert.Equal(t, "similarity", cfg.Retriever.Strategy)
	assert.Equal(t, 0.25, cfg.Gating.Tau)
	assert.Equal(t, 50, cfg.Tuning.BudgetTrials)
	assert.Equal(t, int64(42), cfg.Tuning.RandomSeed)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeConfigNotFound, herrors.GetCode(err))
}

func TestLoad_RAGConfigEnvVar(t *testing.T) {
	// Given: RAG_CONFIG points at a valid file and no explicit path is given
	path := writeConfigFile(t, validYAML)
	t.Setenv("RAG_CONFIG", path)

	// When: loading with an empty path
	cfg, err := Load("")

	// Then: the env-named file is used
	require.NoError(t, err)
	assert.Equal(t, "docs/kb", cfg.Paths.KBDir)
}

func TestLoad_MissingGatingSection(t *testing.T) {
	// Given: a config file without the gating section
	content := `
paths: {kb_dir: kb, index_dir: idx, results_dir: res}
loader: {globs: ["**/*.md"], exclude: [], max_files: 0}
splitter: {chunk_size: 1000, chunk_overlap: 200}
embedder: {backend: static, model: m, base_url: u, use_gpu: false, batch_size: 8, cosine_floor: 0}
vector_store: {type: memory, persist: false}
retriever: {strategy: similarity, k: 10, mmr_lambda: 0.5}
reranker: {model: lexical, device: "", max_length: 512, batch_size: 16}
preflight: {force_cpu_embeddings: false, force_cpu_reranker: false, skip_ollama: true}
`
	path := writeConfigFile(t, content)

	// When: loading
	_, err := Load(path)

	// Then: validation fails and the message names the missing section
	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeConfigValidation, herrors.GetCode(err))
	assert.Contains(t, err.Error(), "gating")
}

func TestLoad_ListsEveryMissingKey(t *testing.T) {
	// Given: a config missing a whole section plus two scattered keys
	content := `
paths: {kb_dir: kb, index_dir: idx, results_dir: res}
loader: {globs: ["**/*.md"], exclude: [], max_files: 0}
splitter: {chunk_size: 1000}
embedder: {backend: static, model: m, base_url: u, use_gpu: false, batch_size: 8, cosine_floor: 0}
vector_store: {type: memory, persist: false}
retriever: {strategy: similarity, k: 10}
reranker: {model: lexical, device: "", max_length: 512, batch_size: 16}
preflight: {force_cpu_embeddings: false, force_cpu_reranker: false, skip_ollama: true}
`
	path := writeConfigFile(t, content)

	// When: loading
	_, err := Load(path)

	// Then: every missing item is reported, not just the first
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "splitter.chunk_overlap")
	assert.Contains(t, msg, "retriever.mmr_lambda")
	assert.Contains(t, msg, "gating")
}

func TestParse_SectionMustBeMapping(t *testing.T) {
	// A scalar where a section is expected counts as missing.
	content := `
paths: 3
loader: {globs: ["**/*.md"], exclude: [], max_files: 0}
splitter: {chunk_size: 1000, chunk_overlap: 200}
embedder: {backend: static, model: m, base_url: u, use_gpu: false, batch_size: 8, cosine_floor: 0}
vector_store: {type: memory, persist: false}
retriever: {strategy: similarity, k: 10, mmr_lambda: 0.5}
reranker: {model: lexical, device: "", max_length: 512, batch_size: 16}
gating: {tau: 0.25, delta: 0.05, ratio: 1.15, min_overlap: 0.1, keep_within: 0.02, top_k_return: 3}
preflight: {force_cpu_embeddings: false, force_cpu_reranker: false, skip_ollama: true}
`
	_, err := Parse([]byte(content))

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeConfigValidation, herrors.GetCode(err))
	assert.Contains(t, err.Error(), "paths")
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("paths: [unclosed"))

	require.Error(t, err)
	assert.Equal(t, herrors.ErrCodeConfigValidation, herrors.GetCode(err))
}

func TestParse_ExplicitFalseBeatsDefault(t *testing.T) {
	// Given: the default for use_gpu is true, and the file says false
	content := `
paths: {kb_dir: kb, index_dir: idx, results_dir: res}
loader: {globs: ["**/*.md"], exclude: [], max_files: 0}
splitter: {chunk_size: 1000, chunk_overlap: 200}
embedder: {backend: ollama, model: m, base_url: u, use_gpu: false, batch_size: 8, cosine_floor: 0}
vector_store: {type: memory, persist: false}
retriever: {strategy: similarity, k: 10, mmr_lambda: 0.5}
reranker: {model: lexical, device: "", max_length: 512, batch_size: 16}
gating: {tau: 0.25, delta: 0.05, ratio: 1.15, min_overlap: 0.1, keep_within: 0.02, top_k_return: 3}
preflight: {force_cpu_embeddings: false, force_cpu_reranker: false, skip_ollama: true}
`

	// When: parsing
	cfg, err := Parse([]byte(content))

	// Then: the explicit false survives, it is not merged away by the default
	require.NoError(t, err)
	assert.False(t, cfg.Embedder.UseGPU)
	assert.True(t, cfg.Preflight.SkipOllama)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate_CollectsAllProblems(t *testing.T) {
	// Given: three independent range violations
	cfg := NewConfig()
	cfg.Splitter.ChunkSize = 0
	cfg.Retriever.Strategy = "psychic"
	cfg.Gating.TopKReturn = 0

	// When: validating
	err := cfg.Validate()

	// Then: all three are reported together
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "splitter.chunk_size")
	assert.Contains(t, msg, "retriever.strategy")
	assert.Contains(t, msg, "gating.top_k_return")
}

func TestValidate_RangeChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative overlap", func(c *Config) { c.Splitter.ChunkOverlap = -1 }},
		{"unknown backend", func(c *Config) { c.Embedder.Backend = "quantum" }},
		{"cosine floor above one", func(c *Config) { c.Embedder.CosineFloor = 1.5 }},
		{"unknown store type", func(c *Config) { c.VectorStore.Type = "faiss" }},
		{"zero k", func(c *Config) { c.Retriever.K = 0 }},
		{"lambda above one", func(c *Config) { c.Retriever.MMRLambda = 1.2 }},
		{"tau above one", func(c *Config) { c.Gating.Tau = 1.5 }},
		{"negative ratio", func(c *Config) { c.Gating.Ratio = -0.5 }},
		{"negative budget", func(c *Config) { c.Tuning.BudgetTrials = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, herrors.ErrCodeConfigValidation, herrors.GetCode(err))
		})
	}
}

// =============================================================================
// Clone, round-trip, schema coverage
// =============================================================================

func TestClone_IsIndependent(t *testing.T) {
	cfg := NewConfig()
	clone := cfg.Clone()

	clone.Gating.Tau = 0.99
	clone.Loader.Globs[0] = "**/*.rst"

	assert.Equal(t, 0.25, cfg.Gating.Tau)
	assert.Equal(t, "**/*.md", cfg.Loader.Globs[0])
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Gating.Tau = 0.33
	path := filepath.Join(t.TempDir(), "out", "rag.yaml")

	require.NoError(t, cfg.WriteYAML(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.33, reloaded.Gating.Tau)
	assert.Equal(t, cfg.Fingerprint(), reloaded.Fingerprint())
}

func TestRequiredKeys_CoversSchema(t *testing.T) {
	keys := RequiredKeys()

	assert.Contains(t, keys, "gating.tau")
	assert.Contains(t, keys, "paths.kb_dir")
	assert.Contains(t, keys, "preflight.skip_ollama")
	assert.Len(t, keys, 32)
}

func TestEffectiveWorkers(t *testing.T) {
	cfg := NewConfig()
	cfg.Tuning.Workers = 2
	assert.Equal(t, 2, cfg.EffectiveWorkers())

	cfg.Tuning.Workers = 0
	assert.GreaterOrEqual(t, cfg.EffectiveWorkers(), 1)
	assert.LessOrEqual(t, cfg.EffectiveWorkers(), 4)
}
