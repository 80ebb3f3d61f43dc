package port

// Chunker splits raw text into ordered, bounded segments.
type Chunker interface {
	// Split returns the segments of text in order. Empty or
	// whitespace-only text yields an empty result, not an error.
	Split(text string) ([]string, error)
}
