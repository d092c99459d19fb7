package rerank

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/open-access-policies/policy-crew/internal/chunk"
	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/retrieve"
)

// Gate trigger values. Every decision names the step that terminated
// the cascade; TriggerEvaluationError is synthesized by the evaluation
// harness for queries that fail before reaching the gate.
const (
	TriggerAccepted        = "accepted"
	TriggerTau             = "tau"
	TriggerMarginRatio     = "margin_ratio"
	TriggerOverlap         = "overlap"
	TriggerNonFinite       = "non_finite_scores"
	TriggerNoCandidates    = "no_candidates"
	TriggerEvaluationError = "evaluation_error"
)

// TriggerOrder lists every trigger in cascade order, for stable
// presentation in reports and summaries.
var TriggerOrder = []string{
	TriggerAccepted,
	TriggerTau,
	TriggerMarginRatio,
	TriggerOverlap,
	TriggerNoCandidates,
	TriggerNonFinite,
	TriggerEvaluationError,
}

// ratioEpsilon guards the ratio gate against division by zero when the
// second-best score is 0.
const ratioEpsilon = 1e-6

// Ranked is a candidate carrying its transformed relevance score.
type Ranked struct {
	Chunk chunk.Chunk
	Score float64
}

// Diagnostics records what the gate saw for one query. Top1 and Top2
// are transformed scores; Top2 is 0 with fewer than two candidates.
// ReturnedAny reports a non-empty returned set, so it is false on every
// rejection. NAfterRerank is the kept-set size, 0 on any rejection.
type Diagnostics struct {
	ReturnedAny   bool
	NCandidates   int
	NAfterRerank  int
	Top1          float64
	Top2          float64
	Margin        float64
	Ratio         float64
	Overlap       float64
	ChunkLenChars int
}

// Decision is the terminal state of one gate cascade run: either
// accepted with a non-empty kept set, or rejected with an empty one.
type Decision struct {
	Accepted    bool
	GateTrigger string
	Kept        []Ranked
	Diagnostics Diagnostics
}

// Gate applies the four-gate acceptance cascade: absolute threshold
// (tau), separation (margin or ratio), lexical overlap, then the keep
// window that selects the returned chunks.
type Gate struct {
	cfg config.GatingConfig
}

// NewGate creates a gate with the given thresholds.
func NewGate(cfg config.GatingConfig) *Gate {
	return &Gate{cfg: cfg}
}

// Apply runs the cascade for one query. scores must align one-to-one
// with candidates; non-finite scores are dropped before ranking. When
// any finite score falls outside [0,1] the whole vector is treated as
// logits and squashed through the logistic function.
func (g *Gate) Apply(query string, candidates []retrieve.Candidate, scores []float64) Decision {
	d := Decision{Diagnostics: Diagnostics{
		NCandidates: len(candidates),
	}}

	if len(candidates) == 0 {
		d.GateTrigger = TriggerNoCandidates
		return d
	}

	ranked := make([]Ranked, 0, len(candidates))
	for i, c := range candidates {
		s := scores[i]
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		ranked = append(ranked, Ranked{Chunk: c.Chunk, Score: s})
	}
	if len(ranked) == 0 {
		d.GateTrigger = TriggerNonFinite
		return d
	}

	if anyOutsideUnit(ranked) {
		for i := range ranked {
			ranked[i].Score = logistic(ranked[i].Score)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	top1 := ranked[0].Score
	top2 := 0.0
	if len(ranked) > 1 {
		top2 = ranked[1].Score
	}
	overlap := overlapRatio(query, ranked[0].Chunk.Content)

	d.Diagnostics.Top1 = top1
	d.Diagnostics.Top2 = top2
	d.Diagnostics.Margin = top1 - top2
	d.Diagnostics.Ratio = top1 / math.Max(top2, ratioEpsilon)
	d.Diagnostics.Overlap = overlap
	d.Diagnostics.ChunkLenChars = utf8.RuneCountInString(ranked[0].Chunk.Content)

	if top1 < g.cfg.Tau {
		d.GateTrigger = TriggerTau
		return d
	}
	// Sufficient margin or sufficient ratio passes; only both failing
	// rejects.
	if top1-top2 < g.cfg.Delta && top1/(top2+ratioEpsilon) < g.cfg.Ratio {
		d.GateTrigger = TriggerMarginRatio
		return d
	}
	if overlap < g.cfg.MinOverlap {
		d.GateTrigger = TriggerOverlap
		return d
	}

	kept := make([]Ranked, 0, len(ranked))
	for _, r := range ranked {
		if r.Score >= top1-g.cfg.KeepWithin && r.Score >= g.cfg.Tau {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		kept = ranked[:1]
	}
	if g.cfg.TopKReturn > 0 && len(kept) > g.cfg.TopKReturn {
		kept = kept[:g.cfg.TopKReturn]
	}

	d.Accepted = true
	d.GateTrigger = TriggerAccepted
	d.Kept = kept
	d.Diagnostics.ReturnedAny = true
	d.Diagnostics.NAfterRerank = len(kept)
	return d
}

// anyOutsideUnit reports whether any score falls outside [0,1], which
// marks the whole vector as logits.
func anyOutsideUnit(ranked []Ranked) bool {
	for _, r := range ranked {
		if r.Score < 0 || r.Score > 1 {
			return true
		}
	}
	return false
}

// logistic squashes a logit into (0,1).
func logistic(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
