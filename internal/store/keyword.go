package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// BleveKeywordIndex implements KeywordIndex on an in-memory Bleve index.
// Bleve's standard analyzer (unicode tokens, lowercased, English stop words
// removed) fits the prose knowledge bases the harness indexes, and hit
// scores are BM25-style lexical relevance.
//
// The index is rebuilt from the chunk store on every run rather than
// persisted: keyword indexing is cheap at knowledge-base scale and an
// in-memory index cannot be left corrupt by a crash.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)

// bleveChunk is the document shape handed to Bleve.
type bleveChunk struct {
	Content string `json:"content"`
}

// NewKeywordIndex creates an empty in-memory keyword index.
func NewKeywordIndex() (*BleveKeywordIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &BleveKeywordIndex{index: idx}, nil
}

// Index adds documents in a single batch. Re-indexing an ID replaces it.
func (b *BleveKeywordIndex) Index(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveChunk{Content: doc.Content}); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute index batch: %w", err)
	}
	return nil
}

// Search returns up to limit documents matching query, best first.
func (b *BleveKeywordIndex) Search(ctx context.Context, query string, limit int) ([]KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	request := bleve.NewSearchRequest(matchQuery)
	request.Size = limit

	result, err := b.index.SearchInContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, KeywordResult{ID: hit.ID, Score: hit.Score})
	}
	return results, nil
}

// Count returns the number of indexed documents.
func (b *BleveKeywordIndex) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, fmt.Errorf("keyword index is closed")
	}
	return b.index.DocCount()
}

// Close releases the index. The index is unusable afterwards.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
