package rerank

import (
	"regexp"
	"strings"
)

// tokenPattern matches lowercase alphanumeric runs. Input is lowercased
// before matching, so punctuation and case never affect the token set.
var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are excluded from overlap and lexical scoring. Function
// words only; domain terms always count.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "not": {},
	"for": {}, "to": {}, "of": {}, "in": {}, "on": {}, "with": {},
	"from": {}, "by": {}, "as": {}, "at": {}, "into": {}, "over": {},
	"under": {}, "up": {}, "down": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"being": {}, "do": {}, "does": {}, "did": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "it": {}, "its": {},
}

// tokenize returns the lowercased alphanumeric runs of s with stop
// words removed.
func tokenize(s string) []string {
	runs := tokenPattern.FindAllString(strings.ToLower(s), -1)
	tokens := make([]string, 0, len(runs))
	for _, t := range runs {
		if _, stop := stopWords[t]; stop {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// tokenSet returns the distinct tokens of s.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}

// overlapRatio is the fraction of query tokens that also appear in the
// document. Zero when either token set is empty.
func overlapRatio(query, doc string) float64 {
	qset, dset := tokenSet(query), tokenSet(doc)
	if len(qset) == 0 || len(dset) == 0 {
		return 0
	}
	shared := 0
	for t := range qset {
		if _, ok := dset[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(qset))
}

// jaccard is the token-set Jaccard similarity of two texts. Zero when
// either token set is empty.
func jaccard(a, b string) float64 {
	aset, bset := tokenSet(a), tokenSet(b)
	if len(aset) == 0 || len(bset) == 0 {
		return 0
	}
	shared := 0
	for t := range aset {
		if _, ok := bset[t]; ok {
			shared++
		}
	}
	union := len(aset) + len(bset) - shared
	return float64(shared) / float64(union)
}
