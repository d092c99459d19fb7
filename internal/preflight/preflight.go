// Package preflight validates the environment before a run: the
// configuration, the knowledge base, writable artifact directories,
// the embedding and reranking services, and system headroom. Results
// land in <results_dir>/preflight.json; only a failed required check
// should stop a run.
package preflight

import (
	"context"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/eval"
)

// PreflightFileName is written under paths.results_dir.
const PreflightFileName = "preflight.json"

// probeTimeout bounds each service probe.
const probeTimeout = 5 * time.Second

// Status of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Summary statuses.
const (
	SummaryReady             = "ready"
	SummaryReadyWithWarnings = "ready_with_warnings"
	SummaryFailed            = "failed"
)

// Check is one entry of the preflight checks array.
type Check struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Details  string `json:"details,omitempty"`
	Required bool   `json:"required"`
}

// Critical reports a required check that failed.
func (c Check) Critical() bool {
	return c.Required && c.Status == StatusFail
}

// Policy describes what the run would actually execute with, derived
// from the preflight force flags and service availability.
type Policy struct {
	EmbeddingsDevice string `json:"embeddings_device"`
	RerankerDevice   string `json:"reranker_device"`
	EmbeddingBackend string `json:"embedding_backend"`
}

// Report is the preflight.json payload.
type Report struct {
	Checks          []Check `json:"checks"`
	Summary         string  `json:"summary"`
	Timestamp       string  `json:"timestamp"`
	EffectivePolicy Policy  `json:"effective_policy"`
}

// RequiredFailed reports whether any required check failed; it decides
// the command's exit code.
func (rep *Report) RequiredFailed() bool {
	for _, c := range rep.Checks {
		if c.Critical() {
			return true
		}
	}
	return false
}

// Runner executes the checks against a loaded configuration.
type Runner struct {
	cfg    *config.Config
	client *http.Client
	logger *slog.Logger
}

// NewRunner creates a runner. A nil logger falls back to slog.Default().
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:    cfg,
		client: &http.Client{Timeout: probeTimeout},
		logger: logger,
	}
}

// Run executes every check, derives the summary and effective policy,
// and persists preflight.json under paths.results_dir. The returned
// error covers artifact writing only; check outcomes are in the report.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	checks := []Check{
		r.checkConfig(),
		r.checkKB(ctx),
		r.checkWritable("index_dir_writable", r.cfg.Paths.IndexDir),
		r.checkWritable("results_dir_writable", r.cfg.Paths.ResultsDir),
	}

	embedding := r.checkEmbeddingService(ctx)
	checks = append(checks,
		embedding,
		r.checkRerankerService(ctx),
		r.checkDiskSpace(r.cfg.Paths.ResultsDir),
		r.checkFileDescriptors(),
	)

	report := &Report{
		Checks:          checks,
		Summary:         summarize(checks),
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		EffectivePolicy: policyFor(r.cfg, embedding),
	}

	r.logger.Info("preflight finished",
		slog.String("summary", report.Summary),
		slog.Int("checks", len(report.Checks)))

	if err := WriteReport(r.cfg.Paths.ResultsDir, report); err != nil {
		return nil, err
	}
	return report, nil
}

// WriteReport persists a preflight report under resultsDir.
func WriteReport(resultsDir string, report *Report) error {
	return eval.WriteJSON(filepath.Join(resultsDir, PreflightFileName), report)
}

// ConfigFailure builds the report for a configuration that would not
// load, for callers that cannot get far enough to construct a Runner.
func ConfigFailure(err error) *Report {
	check := Check{
		Name:     "config",
		Status:   StatusFail,
		Message:  err.Error(),
		Required: true,
	}
	return &Report{
		Checks:    []Check{check},
		Summary:   SummaryFailed,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// summarize folds check outcomes into the report status. A failed
// optional check counts as a warning, not a failure.
func summarize(checks []Check) string {
	warned := false
	for _, c := range checks {
		if c.Critical() {
			return SummaryFailed
		}
		if c.Status == StatusWarn || c.Status == StatusFail {
			warned = true
		}
	}
	if warned {
		return SummaryReadyWithWarnings
	}
	return SummaryReady
}

// policyFor derives the devices and backend the run would execute with.
// The force flags are folded in by Config.Effective; an unreachable
// embedding service additionally downgrades the reported backend to the
// offline embedder.
func policyFor(cfg *config.Config, embedding Check) Policy {
	eff := cfg.Effective()
	policy := Policy{
		EmbeddingsDevice: "cpu",
		RerankerDevice:   eff.Reranker.Device,
		EmbeddingBackend: eff.Embedder.Backend,
	}
	if policy.RerankerDevice == "" {
		policy.RerankerDevice = "auto"
	}
	if eff.Embedder.Backend == "ollama" && eff.Embedder.UseGPU {
		policy.EmbeddingsDevice = "gpu"
	}
	if embedding.Status == StatusFail {
		policy.EmbeddingBackend = "static"
	}
	return policy
}
