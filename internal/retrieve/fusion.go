package retrieve

import (
	"sort"

	"github.com/open-access-policies/policy-crew/internal/store"
)

// rrfConstant is the standard RRF smoothing parameter. k=60 is the widely
// validated default.
const rrfConstant = 60

// fusedHit is one document after reciprocal rank fusion of the vector and
// keyword rankings.
type fusedHit struct {
	ID           string
	RRFScore     float64
	VectorRank   int // 1-indexed, 0 when absent from the vector list
	KeywordRank  int // 1-indexed, 0 when absent from the keyword list
	VectorScore  float64
	KeywordScore float64
}

// fuseRRF merges the two rankings with RRF_score(d) = Σ 1/(60 + rank_d).
// Documents missing from one list take rank max(len_a, len_b)+1 for that
// list's contribution.
//
// Ordering is fully deterministic: RRF score desc, then presence in both
// lists, then ID asc.
func fuseRRF(vecHits []store.SearchResult, kwHits []store.KeywordResult) []fusedHit {
	if len(vecHits) == 0 && len(kwHits) == 0 {
		return []fusedHit{}
	}

	byID := make(map[string]*fusedHit, len(vecHits)+len(kwHits))
	get := func(id string) *fusedHit {
		if h, ok := byID[id]; ok {
			return h
		}
		h := &fusedHit{ID: id}
		byID[id] = h
		return h
	}

	for rank, r := range vecHits {
		h := get(r.ID)
		h.VectorRank = rank + 1
		h.VectorScore = r.Score
		h.RRFScore += 1.0 / float64(rrfConstant+rank+1)
	}
	for rank, r := range kwHits {
		h := get(r.ID)
		h.KeywordRank = rank + 1
		h.KeywordScore = r.Score
		h.RRFScore += 1.0 / float64(rrfConstant+rank+1)
	}

	missingRank := len(vecHits) + 1
	if len(kwHits) > len(vecHits) {
		missingRank = len(kwHits) + 1
	}
	for _, h := range byID {
		if h.VectorRank == 0 || h.KeywordRank == 0 {
			h.RRFScore += 1.0 / float64(rrfConstant+missingRank)
		}
	}

	fused := make([]fusedHit, 0, len(byID))
	for _, h := range byID {
		fused = append(fused, *h)
	}
	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		aBoth := a.VectorRank > 0 && a.KeywordRank > 0
		bBoth := b.VectorRank > 0 && b.KeywordRank > 0
		if aBoth != bBoth {
			return aBoth
		}
		return a.ID < b.ID
	})
	return fused
}
