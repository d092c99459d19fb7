package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/open-access-policies/policy-crew/internal/rerank"
)

// tagsResponse mirrors the Ollama GET /api/tags payload.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// checkEmbeddingService probes Ollama and confirms the configured model
// is installed. Skipped for offline backends and under
// preflight.skip_ollama, where the run never touches the service.
func (r *Runner) checkEmbeddingService(ctx context.Context) Check {
	check := Check{Name: "embedding_service"}
	backend := strings.ToLower(r.cfg.Embedder.Backend)

	if backend != "ollama" {
		check.Status = StatusPass
		check.Message = fmt.Sprintf("skipped (backend %s)", backend)
		return check
	}
	if r.cfg.Preflight.SkipOllama {
		check.Status = StatusPass
		check.Message = "skipped (preflight.skip_ollama)"
		check.Details = "Runs use the offline static embedder"
		return check
	}

	check.Required = true
	models, err := r.listModels(ctx)
	if err != nil {
		check.Status = StatusFail
		check.Message = fmt.Sprintf("cannot reach Ollama at %s: %v", r.cfg.Embedder.BaseURL, err)
		check.Details = "Start Ollama or set preflight.skip_ollama to use the offline embedder"
		return check
	}

	want := strings.ToLower(r.cfg.Embedder.Model)
	wantBase := strings.Split(want, ":")[0]
	for _, name := range models {
		lower := strings.ToLower(name)
		if lower == want || strings.Split(lower, ":")[0] == wantBase {
			check.Status = StatusPass
			check.Message = fmt.Sprintf("model %s available (%d models installed)", r.cfg.Embedder.Model, len(models))
			return check
		}
	}

	check.Status = StatusFail
	check.Message = fmt.Sprintf("embedding model %q is not installed in Ollama", r.cfg.Embedder.Model)
	check.Details = fmt.Sprintf("Run 'ollama pull %s'", r.cfg.Embedder.Model)
	return check
}

func (r *Runner) listModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Embedder.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}
	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// checkRerankerService probes the cross-encoder health endpoint.
// Warn-only: evaluation can fall back to the in-process lexical scorer.
func (r *Runner) checkRerankerService(ctx context.Context) Check {
	check := Check{Name: "reranker_service"}

	if r.cfg.Reranker.Model == rerank.ModelLexical {
		check.Status = StatusPass
		check.Message = "in-process lexical scorer, no service needed"
		return check
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Reranker.BaseURL+"/health", nil)
	if err != nil {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("cannot build health request: %v", err)
		return check
	}
	resp, err := r.client.Do(req)
	if err != nil {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("cannot reach scoring service at %s", r.cfg.Reranker.BaseURL)
		check.Details = "Start the service or set reranker.model to lexical for offline runs"
		return check
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		check.Status = StatusWarn
		check.Message = fmt.Sprintf("scoring service unhealthy (status %d)", resp.StatusCode)
		return check
	}

	check.Status = StatusPass
	check.Message = fmt.Sprintf("healthy (%s)", r.cfg.Reranker.Model)
	return check
}
