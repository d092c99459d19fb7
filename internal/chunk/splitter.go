// Package chunk splits documents into fixed-size character windows with
// overlap. Windows advance by size minus overlap, so every character of
// the source appears in at least one chunk and consecutive chunks share
// the configured overlap. The final window may be shorter than size.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	herrors "github.com/open-access-policies/policy-crew/internal/errors"
)

// Splitter produces overlapping character windows. Offsets and sizes
// count runes, not bytes, so multibyte content never splits mid-character.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter validates the window parameters. The overlap must be
// strictly smaller than the size or the window stride would be zero or
// negative and splitting could never terminate.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, herrors.Newf(herrors.ErrCodeSplitterParams,
			"chunk_size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, herrors.Newf(herrors.ErrCodeSplitterParams,
			"chunk_overlap must be non-negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, herrors.Newf(herrors.ErrCodeSplitterParams,
			"chunk_overlap (%d) must be smaller than chunk_size (%d)", overlap, size).
			WithSuggestion("Reduce splitter.chunk_overlap or increase splitter.chunk_size")
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Size returns the configured window size.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured window overlap.
func (s *Splitter) Overlap() int { return s.overlap }

// Split windows one document. Empty or whitespace-only content produces
// no chunks. Chunks are returned in document order.
func (s *Splitter) Split(docPath, content string) []Chunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	runes := []rune(content)
	stride := s.size - s.overlap

	var chunks []Chunk
	for start, ordinal := 0, 0; start < len(runes); start, ordinal = start+stride, ordinal+1 {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		text := string(runes[start:end])
		chunks = append(chunks, Chunk{
			ID:      ChunkID(docPath, start, text),
			DocPath: docPath,
			Content: text,
			Ordinal: ordinal,
			Start:   start,
			End:     end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// ChunkID derives a stable 16-hex-digit identifier from the source path,
// window offset, and chunk content. Re-splitting an unchanged document
// always reproduces the same IDs; repeated content at different offsets
// stays distinct.
func ChunkID(docPath string, start int, content string) string {
	contentHash := sha256.Sum256([]byte(content))
	input := fmt.Sprintf("%s:%d:%s", docPath, start, hex.EncodeToString(contentHash[:])[:16])
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}
