package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// Feature weights for the hash-based vector.
const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

var staticTokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// StaticEmbedder generates deterministic embeddings by hashing tokens
// and character trigrams into a fixed-width vector. It needs no network
// or model download; smoketest and offline evaluation runs use it. The
// vectors capture lexical similarity only.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates the offline embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed generates the embedding for a single text.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, herrors.Newf(herrors.ErrCodeEmbeddingService, "embedder is closed")
	}
	e.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return make([]float32, StaticDimensions), nil
	}
	return normalizeVector(e.generateVector(text)), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}
	return results, nil
}

// generateVector hashes lowercase tokens and character trigrams into
// vector buckets. Tokens carry most of the weight; trigrams keep
// near-identical strings close even when word boundaries shift.
func (e *StaticEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	lower := strings.ToLower(text)
	for _, token := range staticTokenRegex.FindAllString(lower, -1) {
		vector[hashToBucket(token)] += staticTokenWeight
	}

	compact := strings.Join(strings.Fields(lower), " ")
	runes := []rune(compact)
	for i := 0; i+staticNgramSize <= len(runes); i++ {
		vector[hashToBucket(string(runes[i:i+staticNgramSize]))] += staticNgramWeight
	}

	return vector
}

// hashToBucket maps a feature string to a vector index.
func hashToBucket(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(StaticDimensions))
}

// Dimensions returns the embedding width.
func (e *StaticEmbedder) Dimensions() int { return StaticDimensions }

// ModelName returns the model identifier.
func (e *StaticEmbedder) ModelName() string { return "static-hash-256" }

// Available always reports true; the embedder has no dependencies.
func (e *StaticEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
