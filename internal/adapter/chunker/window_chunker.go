package chunker

import (
	"fmt"
	"strings"

	"ragflow/internal/domain"
)

// WindowChunker splits text into fixed-size character windows with overlap.
// Window k covers runes [k*(size-overlap), k*(size-overlap)+size), clipped to
// the text length. The rule is deterministic: chunk index becomes part of a
// persisted identifier, so the same input must always produce the same
// windows in the same order.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates the window parameters. overlap >= size would
// never advance the window and size <= 0 never fills one.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap %d must be in [0, %d)", domain.ErrInvalidConfig, overlap, size)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

func (c *WindowChunker) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	stride := c.size - c.overlap

	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}
