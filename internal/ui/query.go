package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/open-access-policies/policy-crew/internal/eval"
	"github.com/open-access-policies/policy-crew/internal/rerank"
)

// previewRunes caps the chunk excerpt shown per kept chunk.
const previewRunes = 160

// QueryRenderer displays one ad-hoc query's gate decision, its
// diagnostics, and the kept chunks.
type QueryRenderer struct {
	out    io.Writer
	styles Styles
}

// NewQueryRenderer creates a query renderer.
func NewQueryRenderer(out io.Writer, noColor bool) *QueryRenderer {
	return &QueryRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays the decision for one query.
func (r *QueryRenderer) Render(row eval.Row, decision rerank.Decision) error {
	if decision.Accepted {
		_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Success.Render("ACCEPTED"))
	} else {
		_, _ = fmt.Fprintf(r.out, "%s\n\n",
			r.styles.Warning.Render(fmt.Sprintf("REJECTED (%s)", row.GateTrigger)))
	}

	_, _ = fmt.Fprintf(r.out, "  Candidates: %d retrieved, %d kept\n",
		row.NCandidates, row.NAfterRerank)
	_, _ = fmt.Fprintf(r.out, "  Scores:     top1 %.3f  top2 %.3f  margin %.3f  overlap %.3f\n",
		row.Top1Score, row.Top2Score, row.Margin, row.Overlap)
	_, _ = fmt.Fprintf(r.out, "  Latency:    %.2f ms total\n", row.TTotalMS)

	if len(decision.Kept) == 0 {
		return nil
	}

	_, _ = fmt.Fprintf(r.out, "\n  %s\n", r.styles.Section.Render("Kept chunks"))
	for i, kept := range decision.Kept {
		_, _ = fmt.Fprintf(r.out, "  %d. %s  %s\n",
			i+1,
			r.styles.Label.Render(fmt.Sprintf("%s#%d", kept.Chunk.DocPath, kept.Chunk.Ordinal)),
			r.styles.Metric.Render(fmt.Sprintf("score %.3f", kept.Score)))
		_, _ = fmt.Fprintf(r.out, "     %s\n", r.styles.Dim.Render(preview(kept.Chunk.Content)))
	}
	return nil
}

// preview collapses whitespace and truncates to a single display line.
func preview(content string) string {
	collapsed := strings.Join(strings.Fields(content), " ")
	runes := []rune(collapsed)
	if len(runes) <= previewRunes {
		return collapsed
	}
	return string(runes[:previewRunes]) + "..."
}
