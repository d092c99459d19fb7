// Package report renders a human-readable markdown summary of a
// completed evaluation run from the artifacts in a results directory.
// metrics.json is required; effective_config.json and
// tuning_report.json enrich the report when present.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/open-access-policies/policy-crew/internal/config"
	herrors "github.com/open-access-policies/policy-crew/internal/errors"
	"github.com/open-access-policies/policy-crew/internal/eval"
	"github.com/open-access-policies/policy-crew/internal/rerank"
	"github.com/open-access-policies/policy-crew/internal/tune"
	"github.com/open-access-policies/policy-crew/pkg/version"
)

// ReportFileName is the rendered markdown artifact.
const ReportFileName = "report.md"

// Data holds everything a report renders. Result is always set;
// Config and Tuning are nil when their artifacts are absent.
type Data struct {
	Result *eval.Result
	Config *config.Config
	Tuning *tune.Report
}

// Load reads the run artifacts from resultsDir. A missing metrics.json
// is an error; a missing effective_config.json or tuning_report.json
// just leaves the corresponding field nil.
func Load(resultsDir string) (*Data, error) {
	data := &Data{}

	result := &eval.Result{}
	found, err := readJSON(filepath.Join(resultsDir, eval.MetricsFileName), result)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, herrors.Newf(herrors.ErrCodeInvalidInput,
			"no %s in %s", eval.MetricsFileName, resultsDir).
			WithSuggestion("Run 'ragharness evaluate' to produce metrics before rendering a report")
	}
	data.Result = result

	cfg := &config.Config{}
	if found, err := readJSON(filepath.Join(resultsDir, eval.EffectiveConfigJSONName), cfg); err != nil {
		return nil, err
	} else if found {
		data.Config = cfg
	}

	tuning := &tune.Report{}
	if found, err := readJSON(filepath.Join(resultsDir, tune.TuningReportFileName), tuning); err != nil {
		return nil, err
	} else if found {
		data.Tuning = tuning
	}

	return data, nil
}

func readJSON(path string, v any) (bool, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, herrors.New(herrors.ErrCodeInvalidInput,
			fmt.Sprintf("cannot read %s", filepath.Base(path)), err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, herrors.New(herrors.ErrCodeInvalidInput,
			fmt.Sprintf("cannot parse %s", filepath.Base(path)), err)
	}
	return true, nil
}

// latencyOrder fixes the latency table's row order to the pipeline's
// stage order.
var latencyOrder = []struct {
	label string
	key   string
}{
	{"Load", eval.StageLoad},
	{"Embed", eval.StageEmbed},
	{"Retrieve", eval.StageRetrieve},
	{"Rerank", eval.StageRerank},
	{"Gate", eval.StageGate},
	{"Total", eval.StageTotal},
}

// Render produces the markdown report.
func Render(data *Data) (string, error) {
	res := data.Result
	agg := res.Aggregate

	var b strings.Builder
	b.WriteString("# RAG Test Harness Report\n\n")
	fmt.Fprintf(&b, "Generated on: %s\n", res.Timestamp)
	fmt.Fprintf(&b, "Run ID: `%s`\n", res.RunID)
	fmt.Fprintf(&b, "Config fingerprint: `%s`\n\n", res.Fingerprint)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "Evaluated %d queries (%d labeled): %d accepted, %d rejected.\n\n",
		agg.NQueries, agg.NLabeled, agg.Accepted, agg.Rejected)

	b.WriteString("## Key Metrics\n\n")
	fmt.Fprintf(&b, "- **Precision**: %.3f\n", agg.Precision)
	fmt.Fprintf(&b, "- **Recall**: %.3f\n", agg.Recall)
	fmt.Fprintf(&b, "- **F1 Score**: %.3f\n", agg.F1)
	fmt.Fprintf(&b, "- **False Positive Rate**: %.3f\n\n", agg.FPRate)

	b.WriteString("## Performance Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| True Positives | %d |\n", agg.TP)
	fmt.Fprintf(&b, "| False Positives | %d |\n", agg.FP)
	fmt.Fprintf(&b, "| True Negatives | %d |\n", agg.TN)
	fmt.Fprintf(&b, "| False Negatives | %d |\n\n", agg.FN)

	b.WriteString("## Latency Summary (ms)\n\n")
	b.WriteString("| Stage | Mean | Median |\n")
	b.WriteString("|-------|------|--------|\n")
	for _, stage := range latencyOrder {
		lat := agg.LatencyMS[stage.key]
		fmt.Fprintf(&b, "| %s | %.2f | %.2f |\n", stage.label, lat.Mean, lat.Median)
	}
	b.WriteString("\n")

	b.WriteString("## Gate Triggers\n\n")
	b.WriteString("| Trigger | Count |\n")
	b.WriteString("|---------|-------|\n")
	for _, trigger := range triggerRows(agg.GateTriggers) {
		fmt.Fprintf(&b, "| %s | %d |\n", trigger, agg.GateTriggers[trigger])
	}
	b.WriteString("\n")

	if data.Tuning != nil {
		writeTuningSection(&b, data.Tuning)
	}

	if err := writeConfigSection(&b, data.Config); err != nil {
		return "", err
	}

	b.WriteString("## Recommendations\n\n")
	b.WriteString("1. Review retriever parameters (k, strategy) if recall is below target.\n")
	b.WriteString("2. Experiment with a different embedding model for better semantic matching.\n")
	b.WriteString("3. Tune gate thresholds (tau, delta, ratio) to trade precision against recall, or run 'ragharness tune'.\n")
	b.WriteString("4. Consider a different reranker model if rerank latency dominates.\n")

	b.WriteString("\n---\n\n")
	fmt.Fprintf(&b, "Report generated with RAG Test Harness %s\n", version.Short())

	return b.String(), nil
}

// triggerRows returns the canonical triggers in cascade order plus any
// extra keys the counts map carries, so nothing is silently dropped.
func triggerRows(counts map[string]int) []string {
	rows := append([]string(nil), rerank.TriggerOrder...)

	known := make(map[string]bool, len(rerank.TriggerOrder))
	for _, t := range rerank.TriggerOrder {
		known[t] = true
	}
	extras := make([]string, 0, len(counts))
	for t := range counts {
		if !known[t] {
			extras = append(extras, t)
		}
	}
	sort.Strings(extras)
	return append(rows, extras...)
}

func writeTuningSection(b *strings.Builder, tr *tune.Report) {
	b.WriteString("## Tuning Summary\n\n")
	fmt.Fprintf(b, "- **Status**: %s\n", tr.Status)
	fmt.Fprintf(b, "- **Budget**: %d trials\n", tr.Budget)
	fmt.Fprintf(b, "- **Phase A**: %d trials, best recall %.3f\n",
		tr.PhaseA.Summary.NTrials, tr.PhaseA.Summary.BestRecall)
	fmt.Fprintf(b, "- **Phase B**: %d trials, best F1 %.3f\n",
		tr.PhaseB.Summary.NTrials, tr.PhaseB.Summary.BestF1)
	if tr.Final != nil {
		fmt.Fprintf(b, "- **Recommendation**: F1 %.3f, recall %.3f, precision %.3f\n",
			tr.Final.F1, tr.Final.Recall, tr.Final.Precision)
	}
	b.WriteString("\n")
}

func writeConfigSection(b *strings.Builder, cfg *config.Config) error {
	b.WriteString("## Configuration Used\n\n")
	if cfg == nil {
		b.WriteString("No effective configuration was found in the results directory.\n\n")
		return nil
	}

	encoded, err := yaml.Marshal(cfg)
	if err != nil {
		return herrors.New(herrors.ErrCodeInternal, "cannot encode effective config", err)
	}
	b.WriteString("The following configuration produced this run:\n\n")
	b.WriteString("```yaml\n")
	b.Write(encoded)
	b.WriteString("```\n\n")
	fmt.Fprintf(b, "SHA256 of effective config: `%s`\n\n", cfg.Fingerprint())
	return nil
}

// Write persists the rendered markdown next to the artifacts it
// summarizes.
func Write(resultsDir, markdown string) error {
	return eval.WriteBytes(filepath.Join(resultsDir, ReportFileName), []byte(markdown))
}
