package chunk

// Chunk is a retrievable unit of document content.
type Chunk struct {
	ID      string // SHA256-derived, content-addressable
	DocPath string // Source document, relative to the KB root
	Content string
	Ordinal int // Position within the source document, 0-indexed
	Start   int // Character offset of the window start
	End     int // Character offset one past the window end
}
