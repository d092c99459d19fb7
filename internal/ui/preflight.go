package ui

import (
	"fmt"
	"io"

	"github.com/open-access-policies/policy-crew/internal/preflight"
)

// PreflightRenderer displays preflight and smoketest reports.
type PreflightRenderer struct {
	out    io.Writer
	styles Styles
}

// NewPreflightRenderer creates a preflight renderer.
func NewPreflightRenderer(out io.Writer, noColor bool) *PreflightRenderer {
	return &PreflightRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays every check with its status, then the summary and
// the effective runtime policy.
func (r *PreflightRenderer) Render(report *preflight.Report) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Preflight Checks"))

	for _, check := range report.Checks {
		_, _ = fmt.Fprintf(r.out, "  %s %-22s %s\n",
			r.statusMark(check.Status), check.Name, check.Message)
		if check.Details != "" {
			_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Dim.Render(check.Details))
		}
	}

	_, _ = fmt.Fprintf(r.out, "\n  Summary: %s\n", r.renderSummary(report.Summary))
	policy := report.EffectivePolicy
	_, _ = fmt.Fprintf(r.out, "  Policy:  %s\n",
		r.styles.Label.Render(fmt.Sprintf("embeddings=%s reranker=%s backend=%s",
			policy.EmbeddingsDevice, policy.RerankerDevice, policy.EmbeddingBackend)))
	return nil
}

// RenderSmoke displays the smoketest stages and the canned query's
// gate outcome.
func (r *PreflightRenderer) RenderSmoke(report *preflight.SmokeReport) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Smoketest"))

	for _, stage := range report.Stages {
		mark := r.styles.Success.Render("✓")
		if stage.Status != preflight.SmokeOK {
			mark = r.styles.Error.Render("✗")
		}
		_, _ = fmt.Fprintf(r.out, "  %s %-10s %s %s\n",
			mark, stage.Name, stage.Message,
			r.styles.Dim.Render(fmt.Sprintf("(%.2f ms)", stage.ElapsedMS)))
	}

	if d := report.Diagnostics; d != nil {
		_, _ = fmt.Fprintf(r.out, "\n  Gate:   %s  top1 %.3f  overlap %.3f\n",
			d.GateTrigger, d.Top1Score, d.Overlap)
	}
	_, _ = fmt.Fprintf(r.out, "  Status: %s\n", r.renderSmokeStatus(report.Status))
	return nil
}

// statusMark renders a check status as a colored one-column symbol.
func (r *PreflightRenderer) statusMark(status preflight.Status) string {
	switch status {
	case preflight.StatusPass:
		return r.styles.Success.Render("✓")
	case preflight.StatusWarn:
		return r.styles.Warning.Render("!")
	case preflight.StatusFail:
		return r.styles.Error.Render("✗")
	default:
		return "?"
	}
}

func (r *PreflightRenderer) renderSummary(summary string) string {
	switch summary {
	case preflight.SummaryReady:
		return r.styles.Success.Render(summary)
	case preflight.SummaryReadyWithWarnings:
		return r.styles.Warning.Render(summary)
	case preflight.SummaryFailed:
		return r.styles.Error.Render(summary)
	default:
		return summary
	}
}

func (r *PreflightRenderer) renderSmokeStatus(status string) string {
	if status == preflight.SmokeOK {
		return r.styles.Success.Render(status)
	}
	return r.styles.Error.Render(status)
}
