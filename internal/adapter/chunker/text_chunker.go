package chunker

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"docrag/internal/domain"
	"docrag/internal/port"
)

const (
	// DefaultMaxSize is the default maximum chunk length in characters.
	DefaultMaxSize = 800
	// DefaultOverlap is the default number of trailing characters carried into the next chunk.
	DefaultOverlap = 120
)

// ErrInvalidConfig is returned for chunk sizes that cannot guarantee forward progress.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Options bounds the chunks produced by the chunker.
// Both values are measured in characters (Unicode code points), not model tokens.
type Options struct {
	MaxSize int
	Overlap int
}

// Validate checks 0 <= Overlap < MaxSize.
func (o Options) Validate() error {
	if o.MaxSize <= 0 {
		return fmt.Errorf("%w: max size must be positive, got %d", ErrInvalidConfig, o.MaxSize)
	}
	if o.Overlap < 0 {
		return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, o.Overlap)
	}
	if o.Overlap >= o.MaxSize {
		return fmt.Errorf("%w: overlap %d must be smaller than max size %d", ErrInvalidConfig, o.Overlap, o.MaxSize)
	}
	return nil
}

// Chunk splits text into ordered, overlapping chunks of at most maxSize characters.
// Empty or whitespace-only text yields no chunks.
func Chunk(text string, maxSize, overlap int) ([]string, error) {
	opts := Options{MaxSize: maxSize, Overlap: overlap}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return split(text, opts), nil
}

// TextChunker is a validated, reusable chunker configuration.
// It holds no mutable state and is safe for concurrent use.
type TextChunker struct {
	opts Options
}

var _ port.Chunker = (*TextChunker)(nil)

func NewTextChunker(maxSize, overlap int) (*TextChunker, error) {
	opts := Options{MaxSize: maxSize, Overlap: overlap}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &TextChunker{opts: opts}, nil
}

func (c *TextChunker) Options() Options {
	return c.opts
}

// Split returns the chunk strings for text.
func (c *TextChunker) Split(text string) []string {
	return split(text, c.opts)
}

// Chunk splits content and labels each chunk "<document name>#<1-based index>".
func (c *TextChunker) Chunk(doc domain.Document, content string) ([]domain.Chunk, error) {
	parts := c.Split(content)
	chunks := make([]domain.Chunk, 0, len(parts))
	for i, part := range parts {
		index := i + 1
		chunks = append(chunks, domain.Chunk{
			ID:      generateChunkID(doc.ID, index),
			DocID:   doc.ID,
			Index:   index,
			Source:  SourceLabel(doc.Name, index),
			Content: part,
		})
	}
	return chunks, nil
}

// SourceLabel formats the citation label of a chunk.
func SourceLabel(name string, index int) string {
	return fmt.Sprintf("%s#%d", name, index)
}

func generateChunkID(docID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", docID, index))).String()
}
