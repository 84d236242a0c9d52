// Package chunk turns extracted document text into bounded, overlapping
// token windows — the unit of embedding and retrieval.
package chunk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// ErrInvalidWindow indicates chunk_size/overlap violate the overlap <
// chunk_size precondition. This is a configuration error, never tolerated
// at runtime: a non-positive window advance would loop forever.
var ErrInvalidWindow = errors.New("chunk overlap must be smaller than chunk size")

// Chunk is one token window of a source document.
type Chunk struct {
	// Content is the decoded window text, trimmed, never empty.
	Content string

	// Index is the zero-based position within the source document.
	// Indices are contiguous: 0..n-1 with no gaps.
	Index int

	// TokenCount is the number of tokens in the window.
	TokenCount int
}

// Splitter slides a fixed-size token window across cleaned text.
// The window advances by size−overlap tokens, so consecutive chunks share
// overlap tokens of context. Safe for concurrent use.
type Splitter struct {
	codec   tokenizer.Codec
	size    int
	overlap int
}

// NewSplitter creates a Splitter over the cl100k_base vocabulary.
// Requires size > 0 and 0 <= overlap < size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size=%d", ErrInvalidWindow, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidWindow, size, overlap)
	}

	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer: %w", err)
	}

	return &Splitter{codec: codec, size: size, overlap: overlap}, nil
}

var (
	crlfRE    = regexp.MustCompile(`\r\n|\r`)
	newlineRE = regexp.MustCompile(`\n{3,}`)
	spaceRE   = regexp.MustCompile(`[ \t]{2,}`)
)

// Clean normalizes whitespace: CRLF/CR become LF, runs of three or more
// newlines collapse to two, runs of horizontal whitespace collapse to one
// space, and the result is trimmed.
func Clean(text string) string {
	text = crlfRE.ReplaceAllString(text, "\n")
	text = newlineRE.ReplaceAllString(text, "\n\n")
	text = spaceRE.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Split cleans text, tokenizes it, and emits overlapping windows of at most
// size tokens. The final partial window is emitted too; windows that decode
// to empty text are dropped. Returned indices are sequential from zero.
func (s *Splitter) Split(text string) ([]Chunk, error) {
	clean := Clean(text)
	if clean == "" {
		return nil, nil
	}

	ids, _, err := s.codec.Encode(clean)
	if err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}

	step := s.size - s.overlap
	var chunks []Chunk

	for start := 0; start < len(ids); start += step {
		end := start + s.size
		if end > len(ids) {
			end = len(ids)
		}

		window := ids[start:end]
		decoded, err := s.codec.Decode(window)
		if err != nil {
			return nil, fmt.Errorf("decoding window at token %d: %w", start, err)
		}

		content := strings.TrimSpace(decoded)
		if content != "" {
			chunks = append(chunks, Chunk{
				Content:    content,
				Index:      len(chunks),
				TokenCount: len(window),
			})
		}

		if end == len(ids) {
			break
		}
	}

	return chunks, nil
}

// CountTokens returns the cl100k_base token count of text.
func (s *Splitter) CountTokens(text string) (int, error) {
	n, err := s.codec.Count(text)
	if err != nil {
		return 0, fmt.Errorf("counting tokens: %w", err)
	}
	return n, nil
}
