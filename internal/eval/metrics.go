package eval

import (
	"math"
	"sort"

	"github.com/open-access-policies/policy-crew/internal/rerank"
)

// f1Epsilon guards the harmonic mean against a zero denominator.
const f1Epsilon = 1e-9

// Latency stage keys as they appear in the aggregate table.
const (
	StageLoad     = "load"
	StageEmbed    = "embed"
	StageRetrieve = "retrieve"
	StageRerank   = "rerank"
	StageGate     = "gate"
	StageTotal    = "total"
)

// Row is one per-query record in metrics.json. Timings are
// milliseconds rounded to two decimals. A query that failed before
// reaching the gate keeps its identity fields and zeroes everything
// else, with DropReason set to evaluation_error.
type Row struct {
	Query string `json:"query"`
	Label string `json:"label,omitempty"`
	Notes string `json:"notes,omitempty"`

	ReturnedAny   bool    `json:"returned_any"`
	NCandidates   int     `json:"n_candidates"`
	NAfterRerank  int     `json:"n_after_rerank"`
	Top1Score     float64 `json:"top1_score"`
	Top2Score     float64 `json:"top2_score"`
	Margin        float64 `json:"margin"`
	Ratio         float64 `json:"ratio"`
	Overlap       float64 `json:"overlap"`
	ChunkLenChars int     `json:"chunk_len_chars"`
	GateTrigger   string  `json:"gate_trigger"`
	DropReason    string  `json:"drop_reason"`

	TLoadMS     float64 `json:"t_load_ms"`
	TEmbedMS    float64 `json:"t_embed_ms"`
	TRetrieveMS float64 `json:"t_retrieve_ms"`
	TRerankMS   float64 `json:"t_rerank_ms"`
	TGateMS     float64 `json:"t_gate_ms"`
	TTotalMS    float64 `json:"t_total_ms"`
}

// Accepted reports whether the row's query terminated accepted.
func (r Row) Accepted() bool {
	return r.GateTrigger == rerank.TriggerAccepted
}

// StageLatency is one stage's latency summary in milliseconds.
type StageLatency struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// Aggregate is the batch-level metrics block of metrics.json.
//
// The confusion counts pair the label with the gate decision: tp =
// positive accepted, fp = negative accepted, fn = positive rejected,
// tn = negative rejected. Unlabeled queries contribute to counts and
// latencies but never to the confusion matrix. Denominators are
// clamped to 1 so an unlabeled or one-sided batch yields zeros rather
// than dividing by zero.
type Aggregate struct {
	NQueries int `json:"n_queries"`
	NLabeled int `json:"n_labeled"`
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`

	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TN int `json:"tn"`

	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	FPRate    float64 `json:"fp_rate"`

	LatencyMS    map[string]StageLatency `json:"latency_ms"`
	GateTriggers map[string]int          `json:"gate_triggers"`
}

// BuildAggregate computes batch metrics from per-query rows.
func BuildAggregate(rows []Row) Aggregate {
	agg := Aggregate{
		NQueries: len(rows),
		GateTriggers: map[string]int{
			rerank.TriggerAccepted:        0,
			rerank.TriggerTau:             0,
			rerank.TriggerMarginRatio:     0,
			rerank.TriggerOverlap:         0,
			rerank.TriggerNonFinite:       0,
			rerank.TriggerNoCandidates:    0,
			rerank.TriggerEvaluationError: 0,
		},
	}

	for _, r := range rows {
		if r.Label != "" {
			agg.NLabeled++
		}
		if r.Accepted() {
			agg.Accepted++
		} else {
			agg.Rejected++
		}
		agg.GateTriggers[r.GateTrigger]++

		switch {
		case r.Label == LabelPositive && r.Accepted():
			agg.TP++
		case r.Label == LabelNegative && r.Accepted():
			agg.FP++
		case r.Label == LabelPositive:
			agg.FN++
		case r.Label == LabelNegative:
			agg.TN++
		}
	}

	agg.Precision = float64(agg.TP) / float64(max(1, agg.TP+agg.FP))
	agg.Recall = float64(agg.TP) / float64(max(1, agg.TP+agg.FN))
	agg.F1 = 2 * agg.Precision * agg.Recall / math.Max(f1Epsilon, agg.Precision+agg.Recall)
	agg.FPRate = float64(agg.FP) / float64(max(1, agg.FP+agg.TN))

	agg.LatencyMS = latencyTable(rows)
	return agg
}

// latencyTable summarizes every pipeline stage across the batch.
func latencyTable(rows []Row) map[string]StageLatency {
	stages := map[string]func(Row) float64{
		StageLoad:     func(r Row) float64 { return r.TLoadMS },
		StageEmbed:    func(r Row) float64 { return r.TEmbedMS },
		StageRetrieve: func(r Row) float64 { return r.TRetrieveMS },
		StageRerank:   func(r Row) float64 { return r.TRerankMS },
		StageGate:     func(r Row) float64 { return r.TGateMS },
		StageTotal:    func(r Row) float64 { return r.TTotalMS },
	}

	table := make(map[string]StageLatency, len(stages))
	for stage, pick := range stages {
		values := make([]float64, len(rows))
		for i, r := range rows {
			values[i] = pick(r)
		}
		table[stage] = StageLatency{
			Mean:   round2(mean(values)),
			Median: round2(median(values)),
		}
	}
	return table
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// round2 rounds to two decimals for latency reporting.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
