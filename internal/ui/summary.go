package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/open-access-policies/policy-crew/internal/eval"
	"github.com/open-access-policies/policy-crew/internal/rerank"
	"github.com/open-access-policies/policy-crew/internal/tune"
)

// sparklineMaxWidth caps the latency strip in evaluation summaries.
const sparklineMaxWidth = 40

// ResultRenderer displays an evaluation run summary.
type ResultRenderer struct {
	out    io.Writer
	styles Styles
}

// NewResultRenderer creates a result renderer.
func NewResultRenderer(out io.Writer, noColor bool) *ResultRenderer {
	return &ResultRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays the aggregate metrics of one evaluation run.
func (r *ResultRenderer) Render(result *eval.Result) error {
	agg := result.Aggregate

	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Evaluation Summary"))
	_, _ = fmt.Fprintf(r.out, "  Run:       %s\n", result.RunID)
	_, _ = fmt.Fprintf(r.out, "  Queries:   %d (%d labeled)\n", agg.NQueries, agg.NLabeled)
	_, _ = fmt.Fprintf(r.out, "  Decisions: %s accepted, %s rejected\n",
		r.styles.Success.Render(fmt.Sprintf("%d", agg.Accepted)),
		r.styles.Label.Render(fmt.Sprintf("%d", agg.Rejected)))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Precision: %s   Recall:  %s\n",
		r.metric(agg.Precision), r.metric(agg.Recall))
	_, _ = fmt.Fprintf(r.out, "  F1:        %s   FP rate: %s\n",
		r.metric(agg.F1), r.metric(agg.FPRate))
	_, _ = fmt.Fprintf(r.out, "  Triggers:  %s\n", r.triggerSummary(agg.GateTriggers))

	if len(result.PerQuery) > 0 {
		total := agg.LatencyMS[eval.StageTotal]
		_, _ = fmt.Fprintf(r.out, "  Latency:   %s %s\n",
			r.styles.Sparkline.Render(r.latencyStrip(result.PerQuery)),
			r.styles.Label.Render(fmt.Sprintf("%.2f ms mean, %.2f ms median", total.Mean, total.Median)))
	}

	_, _ = fmt.Fprintf(r.out, "\n  %s\n", r.styles.Dim.Render("fingerprint "+result.Fingerprint))
	return nil
}

func (r *ResultRenderer) metric(v float64) string {
	return r.styles.Metric.Render(fmt.Sprintf("%.3f", v))
}

// triggerSummary lists non-zero triggers in cascade order.
func (r *ResultRenderer) triggerSummary(counts map[string]int) string {
	parts := make([]string, 0, len(counts))
	for _, trigger := range rerank.TriggerOrder {
		if n := counts[trigger]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", trigger, n))
		}
	}
	if len(parts) == 0 {
		return r.styles.Dim.Render("none")
	}
	return strings.Join(parts, " ")
}

// latencyStrip draws per-query total latency in query order.
func (r *ResultRenderer) latencyStrip(rows []eval.Row) string {
	width := len(rows)
	if width > sparklineMaxWidth {
		width = sparklineMaxWidth
	}
	spark := NewSparkline(width)
	for _, row := range rows {
		spark.Add(row.TTotalMS)
	}
	return spark.Render()
}

// TuneRenderer displays a tuning run summary.
type TuneRenderer struct {
	out    io.Writer
	styles Styles
}

// NewTuneRenderer creates a tuning summary renderer.
func NewTuneRenderer(out io.Writer, noColor bool) *TuneRenderer {
	return &TuneRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays both phases and the recommendation, when one exists.
func (t *TuneRenderer) Render(report *tune.Report) error {
	_, _ = fmt.Fprintf(t.out, "%s\n\n", t.styles.Header.Render("Tuning Summary"))
	_, _ = fmt.Fprintf(t.out, "  Run:     %s\n", report.RunID)
	_, _ = fmt.Fprintf(t.out, "  Status:  %s\n", t.renderStatus(report.Status))
	_, _ = fmt.Fprintf(t.out, "  Budget:  %d trials\n", report.Budget)
	_, _ = fmt.Fprintf(t.out, "  Phase A: %d trials, best recall %.3f\n",
		report.PhaseA.Summary.NTrials, report.PhaseA.Summary.BestRecall)
	_, _ = fmt.Fprintf(t.out, "  Phase B: %d trials, best F1 %.3f\n",
		report.PhaseB.Summary.NTrials, report.PhaseB.Summary.BestF1)
	_, _ = fmt.Fprintln(t.out)

	if report.Final == nil {
		_, _ = fmt.Fprintf(t.out, "  %s\n", t.styles.Dim.Render("no recommendation produced"))
		return nil
	}

	rec := report.Final
	_, _ = fmt.Fprintf(t.out, "  %s\n", t.styles.Section.Render("Recommendation"))
	_, _ = fmt.Fprintf(t.out, "    f1 %s  recall %s  precision %s\n",
		t.metric(rec.F1), t.metric(rec.Recall), t.metric(rec.Precision))
	if cfg := rec.Config; cfg != nil {
		_, _ = fmt.Fprintf(t.out, "    tau %.2f  delta %.2f  ratio %.2f  min_overlap %.2f  keep_within %.2f\n",
			cfg.Gating.Tau, cfg.Gating.Delta, cfg.Gating.Ratio, cfg.Gating.MinOverlap, cfg.Gating.KeepWithin)
		_, _ = fmt.Fprintf(t.out, "    k %d  chunk_size %d  chunk_overlap %d  strategy %s\n",
			cfg.Retriever.K, cfg.Splitter.ChunkSize, cfg.Splitter.ChunkOverlap, cfg.Retriever.Strategy)
	}
	return nil
}

func (t *TuneRenderer) metric(v float64) string {
	return t.styles.Metric.Render(fmt.Sprintf("%.3f", v))
}

func (t *TuneRenderer) renderStatus(status string) string {
	switch status {
	case tune.StatusCompleted:
		return t.styles.Success.Render(status)
	case tune.StatusPartial:
		return t.styles.Warning.Render(status)
	default:
		return status
	}
}
