package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/open-access-policies/policy-crew/internal/config"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

const (
	// DefaultRerankerURL is the default scoring service endpoint.
	DefaultRerankerURL = "http://127.0.0.1:8580"

	// DefaultRerankBatchSize bounds one scoring request.
	DefaultRerankBatchSize = 16

	// rerankTimeout bounds one scoring request round trip.
	rerankTimeout = 30 * time.Second

	// rerankerPoolSize for the HTTP connection pool.
	rerankerPoolSize = 4
)

// rerankRequest is the /rerank request body.
type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
}

// rerankResponse is the /rerank response body.
type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// HTTPScorer scores candidates through an external cross-encoder
// service. Requests are batched by reranker.batch_size and retried with
// backoff; a circuit breaker fails the remaining queries of a batch run
// fast once the service stops responding.
type HTTPScorer struct {
	client    *http.Client
	transport *http.Transport
	baseURL   string
	model     string
	batchSize int
	retryCfg  herrors.RetryConfig
	breaker   *herrors.CircuitBreaker
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ Scorer = (*HTTPScorer)(nil)

// NewHTTPScorer connects to the scoring service and verifies it is
// healthy.
func NewHTTPScorer(ctx context.Context, cfg config.RerankerConfig, logger *slog.Logger) (*HTTPScorer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultRerankerURL
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultRerankBatchSize
	}

	// No client-level timeout: each request carries its own context
	// deadline, and a static client timeout would override it.
	transport := &http.Transport{
		MaxIdleConns:        rerankerPoolSize,
		MaxIdleConnsPerHost: rerankerPoolSize,
		MaxConnsPerHost:     rerankerPoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	s := &HTTPScorer{
		client:    &http.Client{Transport: transport},
		transport: transport,
		baseURL:   baseURL,
		model:     cfg.Model,
		batchSize: batchSize,
		retryCfg:  herrors.DefaultRetryConfig(),
		breaker:   herrors.NewCircuitBreaker("reranker"),
		logger:    logger,
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.healthCheck(checkCtx); err != nil {
		transport.CloseIdleConnections()
		return nil, herrors.ServiceError(herrors.ErrCodeRerankerService,
			"scoring service health check failed", err).
			WithSuggestion("Start the reranker service or set reranker.model to \"lexical\"")
	}

	logger.Debug("scoring service connected",
		slog.String("base_url", baseURL),
		slog.String("model", cfg.Model),
		slog.Int("batch_size", batchSize))
	return s, nil
}

// healthCheck probes the service health endpoint.
func (s *HTTPScorer) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("scoring service unhealthy (status %d): %s", resp.StatusCode, string(body))
	}
	return nil
}

// Score sends (query, documents) to the service in batches and returns
// one score per document, aligned with the input.
func (s *HTTPScorer) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, herrors.Newf(herrors.ErrCodeRerankerService, "scorer is closed")
	}
	s.mu.RUnlock()

	if len(documents) == 0 {
		return []float64{}, nil
	}

	scores := make([]float64, 0, len(documents))
	for start := 0; start < len(documents); start += s.batchSize {
		end := start + s.batchSize
		if end > len(documents) {
			end = len(documents)
		}
		batch := documents[start:end]

		if !s.breaker.Allow() {
			return nil, herrors.ServiceError(herrors.ErrCodeRerankerService,
				"scoring service circuit open, failing fast", herrors.ErrCircuitOpen)
		}

		batchScores, err := herrors.RetryWithResult(ctx, s.retryCfg, func() ([]float64, error) {
			reqCtx, cancel := context.WithTimeout(ctx, rerankTimeout)
			defer cancel()
			return s.requestScores(reqCtx, query, batch)
		})
		if err != nil {
			s.breaker.RecordFailure()
			return nil, err
		}
		s.breaker.RecordSuccess()

		if len(batchScores) != len(batch) {
			return nil, herrors.Newf(herrors.ErrCodeRerankerService,
				"scoring service returned %d scores for %d documents", len(batchScores), len(batch))
		}
		scores = append(scores, batchScores...)
	}

	s.logger.Debug("candidates scored",
		slog.Int("documents", len(documents)),
		slog.Int("batch_size", s.batchSize))
	return scores, nil
}

// requestScores performs one /rerank call.
func (s *HTTPScorer) requestScores(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: s.model})
	if err != nil {
		return nil, herrors.InternalError("cannot marshal rerank request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, herrors.InternalError("cannot build rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, herrors.ServiceError(herrors.ErrCodeServiceTimeout,
				fmt.Sprintf("rerank request timed out after %s", rerankTimeout), err)
		}
		return nil, herrors.ServiceError(herrors.ErrCodeRerankerService,
			"rerank request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, herrors.Newf(herrors.ErrCodeRerankerService,
			"scoring service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, herrors.ServiceError(herrors.ErrCodeRerankerService,
			"cannot decode rerank response", err)
	}
	return apiResp.Scores, nil
}

// ModelName returns the configured cross-encoder model.
func (s *HTTPScorer) ModelName() string {
	return s.model
}

// Available reports whether the service answers its health endpoint.
func (s *HTTPScorer) Available(ctx context.Context) bool {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false
	}
	s.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.healthCheck(checkCtx) == nil
}

// Close releases idle connections.
func (s *HTTPScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.transport.CloseIdleConnections()
	return nil
}
