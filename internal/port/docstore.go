package port

import (
	"errors"

	"docrag/internal/domain"
)

// ErrNotFound is returned for unknown document or chunk IDs.
var ErrNotFound = errors.New("not found")

// DocumentStore persists documents, their extracted text and their chunks.
type DocumentStore interface {
	PutDoc(doc domain.Document) error

	GetDoc(id string) (domain.Document, error)

	DeleteDoc(id string) error

	// ListDocs returns documents ordered by name.
	ListDocs() ([]domain.Document, error)

	FindDocByName(name string) (domain.Document, bool, error)

	PutText(docID, text string) error

	GetText(docID string) (string, error)

	// PutChunks replaces all chunks of a document.
	PutChunks(docID string, chunks []domain.Chunk) error

	GetChunk(id string) (domain.Chunk, error)

	// GetChunksByDoc returns a document's chunks in index order.
	GetChunksByDoc(docID string) ([]domain.Chunk, error)

	DeleteChunksByDoc(docID string) error

	// GetStats summarizes the stored corpus.
	GetStats() (domain.Stats, error)

	Close() error
}
