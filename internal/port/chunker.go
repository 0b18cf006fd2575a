package port

import "docrag/internal/domain"

// Chunker splits a document's extracted text into labelled chunks.
type Chunker interface {
	Chunk(doc domain.Document, content string) ([]domain.Chunk, error)
}
