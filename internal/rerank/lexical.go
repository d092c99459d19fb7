package rerank

import "context"

// LexicalScorer scores documents by token-set Jaccard similarity with
// the query. Deterministic and fully offline; scores stay in [0,1], so
// the gate never applies the logistic transform to them.
type LexicalScorer struct{}

var _ Scorer = (*LexicalScorer)(nil)

// NewLexicalScorer creates the offline scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Score returns the Jaccard similarity of each document with the query.
func (s *LexicalScorer) Score(_ context.Context, query string, documents []string) ([]float64, error) {
	scores := make([]float64, len(documents))
	for i, doc := range documents {
		scores[i] = jaccard(query, doc)
	}
	return scores, nil
}

// ModelName identifies the lexical scorer.
func (s *LexicalScorer) ModelName() string {
	return ModelLexical
}

// Available always reports true.
func (s *LexicalScorer) Available(_ context.Context) bool {
	return true
}

// Close is a no-op.
func (s *LexicalScorer) Close() error {
	return nil
}
