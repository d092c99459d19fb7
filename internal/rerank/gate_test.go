package rerank

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-access-policies/policy-crew/internal/chunk"
	"github.com/open-access-policies/policy-crew/internal/config"
	"github.com/open-access-policies/policy-crew/internal/retrieve"
)

const gateQuery = "data retention schedule"

// relevantContent shares every query token; fillerContent shares none.
const (
	relevantContent = "The data retention schedule keeps records for seven years."
	fillerContent   = "Zebra quokka wildlife refuge opening hours."
)

func gateCandidates(contents ...string) []retrieve.Candidate {
	out := make([]retrieve.Candidate, len(contents))
	for i, c := range contents {
		out[i] = retrieve.Candidate{Chunk: chunk.Chunk{ID: fmt.Sprintf("c%d", i), Content: c}}
	}
	return out
}

func defaultGateConfig() config.GatingConfig {
	return config.GatingConfig{
		Tau:        0.25,
		Delta:      0.05,
		Ratio:      1.15,
		MinOverlap: 0.10,
		KeepWithin: 0.02,
		TopKReturn: 3,
	}
}

// ==== Acceptance ====

func TestGate_AcceptsOnClearMargin(t *testing.T) {
	cfg := defaultGateConfig()
	cfg.Tau = 0.5
	g := NewGate(cfg)

	d := g.Apply(gateQuery, gateCandidates(relevantContent, fillerContent), []float64{0.9, 0.3})

	require.True(t, d.Accepted)
	assert.Equal(t, TriggerAccepted, d.GateTrigger)
	require.Len(t, d.Kept, 1)
	assert.Equal(t, "c0", d.Kept[0].Chunk.ID)

	assert.True(t, d.Diagnostics.ReturnedAny)
	assert.Equal(t, 2, d.Diagnostics.NCandidates)
	assert.Equal(t, 1, d.Diagnostics.NAfterRerank)
	assert.Equal(t, 0.9, d.Diagnostics.Top1)
	assert.Equal(t, 0.3, d.Diagnostics.Top2)
	assert.InDelta(t, 0.6, d.Diagnostics.Margin, 1e-9)
	assert.InDelta(t, 3.0, d.Diagnostics.Ratio, 1e-6)
	assert.InDelta(t, 1.0, d.Diagnostics.Overlap, 1e-9)
	assert.Equal(t, len(relevantContent), d.Diagnostics.ChunkLenChars)
}

func TestGate_AcceptsOnRatioWhenMarginSmall(t *testing.T) {
	cfg := defaultGateConfig()
	cfg.Delta = 0.5 // margin alone can never pass
	g := NewGate(cfg)

	d := g.Apply(gateQuery, gateCandidates(relevantContent, fillerContent), []float64{0.6, 0.4})

	require.True(t, d.Accepted, "ratio 1.5 must pass even though margin 0.2 < delta")
	assert.Equal(t, TriggerAccepted, d.GateTrigger)
}

func TestGate_SingleCandidateTop2IsZero(t *testing.T) {
	g := NewGate(defaultGateConfig())

	d := g.Apply(gateQuery, gateCandidates(relevantContent), []float64{0.9})

	require.True(t, d.Accepted)
	assert.Zero(t, d.Diagnostics.Top2)
	assert.InDelta(t, 0.9, d.Diagnostics.Margin, 1e-9)
	assert.InDelta(t, 0.9/ratioEpsilon, d.Diagnostics.Ratio, 1.0)
	assert.Equal(t, 1, d.Diagnostics.NAfterRerank)
}

// ==== Rejections ====

func TestGate_RejectsBelowTau(t *testing.T) {
	g := NewGate(defaultGateConfig())

	d := g.Apply(gateQuery, gateCandidates(relevantContent, fillerContent), []float64{0.2, 0.1})

	assert.False(t, d.Accepted)
	assert.Equal(t, TriggerTau, d.GateTrigger)
	assert.Empty(t, d.Kept)
	assert.Equal(t, 0, d.Diagnostics.NAfterRerank)
	assert.Equal(t, 0.2, d.Diagnostics.Top1, "diagnostics still report the scores the gate saw")
}

func TestGate_RejectsWhenMarginAndRatioBothFail(t *testing.T) {
	g := NewGate(defaultGateConfig())

	d := g.Apply(gateQuery, gateCandidates(relevantContent, relevantContent), []float64{0.50, 0.49})

	assert.False(t, d.Accepted)
	assert.Equal(t, TriggerMarginRatio, d.GateTrigger)
	assert.Empty(t, d.Kept)
}

func TestGate_RejectsLowOverlap(t *testing.T) {
	// Given: a confident top score over content sharing no query tokens
	g := NewGate(defaultGateConfig())

	d := g.Apply(gateQuery, gateCandidates(fillerContent, relevantContent), []float64{0.9, 0.1})

	assert.False(t, d.Accepted)
	assert.Equal(t, TriggerOverlap, d.GateTrigger)
	assert.Zero(t, d.Diagnostics.Overlap)
}

func TestGate_NoCandidates(t *testing.T) {
	g := NewGate(defaultGateConfig())

	d := g.Apply(gateQuery, nil, nil)

	assert.False(t, d.Accepted)
	assert.Equal(t, TriggerNoCandidates, d.GateTrigger)
	assert.False(t, d.Diagnostics.ReturnedAny)
	assert.Zero(t, d.Diagnostics.NCandidates)
}

// ==== Score transformation ====

func TestGate_LogisticAppliedWhenScoresAreLogits(t *testing.T) {
	cfg := defaultGateConfig()
	cfg.Tau = 0.5
	g := NewGate(cfg)

	d := g.Apply(gateQuery, gateCandidates(relevantContent, fillerContent), []float64{2.0, -1.0})

	require.True(t, d.Accepted)
	assert.InDelta(t, 0.880797, d.Diagnostics.Top1, 1e-5)
	assert.InDelta(t, 0.268941, d.Diagnostics.Top2, 1e-5)
}

func TestGate_InRangeScoresPassThroughUnchanged(t *testing.T) {
	g := NewGate(defaultGateConfig())

	d := g.Apply(gateQuery, gateCandidates(relevantContent, fillerContent), []float64{0.9, 0.1})

	assert.Equal(t, 0.9, d.Diagnostics.Top1)
	assert.Equal(t, 0.1, d.Diagnostics.Top2)
}

func TestGate_AllNonFiniteRejected(t *testing.T) {
	g := NewGate(defaultGateConfig())
	scores := []float64{math.NaN(), math.Inf(1), math.Inf(-1)}

	d := g.Apply(gateQuery, gateCandidates(relevantContent, relevantContent, fillerContent), scores)

	assert.False(t, d.Accepted)
	assert.Equal(t, TriggerNonFinite, d.GateTrigger)
	assert.Empty(t, d.Kept)
	assert.Equal(t, 3, d.Diagnostics.NCandidates)
	assert.Equal(t, 0, d.Diagnostics.NAfterRerank)
	assert.False(t, d.Diagnostics.ReturnedAny)
}

func TestGate_DropsNonFiniteKeepsFinite(t *testing.T) {
	g := NewGate(defaultGateConfig())
	scores := []float64{math.NaN(), 0.9, 0.2}

	d := g.Apply(gateQuery, gateCandidates(fillerContent, relevantContent, fillerContent), scores)

	require.True(t, d.Accepted)
	require.Len(t, d.Kept, 1)
	assert.Equal(t, "c1", d.Kept[0].Chunk.ID)
	assert.Equal(t, 0.9, d.Diagnostics.Top1)
}

// ==== Keep window ====

func TestGate_KeepWindowSelectsTies(t *testing.T) {
	g := NewGate(defaultGateConfig())
	contents := []string{
		relevantContent,
		"Retention schedule data for archived records.",
		"Data retention review notes from the schedule audit.",
	}

	d := g.Apply(gateQuery, gateCandidates(contents...), []float64{0.90, 0.89, 0.80})

	require.True(t, d.Accepted)
	require.Len(t, d.Kept, 2, "0.89 is within the 0.02 window, 0.80 is not")
	assert.Equal(t, "c0", d.Kept[0].Chunk.ID)
	assert.Equal(t, "c1", d.Kept[1].Chunk.ID)
	assert.Equal(t, 2, d.Diagnostics.NAfterRerank)
}

func TestGate_TruncatesKeptToTopKReturn(t *testing.T) {
	g := NewGate(defaultGateConfig())
	candidates := gateCandidates(relevantContent, relevantContent, relevantContent,
		relevantContent, relevantContent)

	d := g.Apply(gateQuery, candidates, []float64{0.9, 0.9, 0.9, 0.9, 0.9})

	require.True(t, d.Accepted)
	require.Len(t, d.Kept, 3)
	assert.Equal(t, 3, d.Diagnostics.NAfterRerank)
	// Equal scores keep candidate order.
	assert.Equal(t, "c0", d.Kept[0].Chunk.ID)
	assert.Equal(t, "c1", d.Kept[1].Chunk.ID)
	assert.Equal(t, "c2", d.Kept[2].Chunk.ID)
}

func TestGate_TieScoresKeepCandidateOrder(t *testing.T) {
	g := NewGate(defaultGateConfig())
	contents := []string{fillerContent, relevantContent, "Schedule for data retention checks."}

	d := g.Apply(gateQuery, gateCandidates(contents...), []float64{0.5, 0.9, 0.9})

	require.True(t, d.Accepted)
	require.Len(t, d.Kept, 2)
	assert.Equal(t, "c1", d.Kept[0].Chunk.ID)
	assert.Equal(t, "c2", d.Kept[1].Chunk.ID)
}
