package memstore

import (
	"fmt"
	"sort"
	"sync"
	"unicode/utf8"

	"docrag/internal/domain"
	"docrag/internal/port"
)

type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]domain.Document
	texts     map[string]string
	chunks    map[string]domain.Chunk
	docChunks map[string][]string
}

var _ port.DocumentStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]domain.Document),
		texts:     make(map[string]string),
		chunks:    make(map[string]domain.Chunk),
		docChunks: make(map[string][]string),
	}
}

func (s *MemoryStore) PutDoc(doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) GetDoc(id string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return domain.Document{}, fmt.Errorf("%w: document %s", port.ErrNotFound, id)
	}
	return doc, nil
}

func (s *MemoryStore) DeleteDoc(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: document %s", port.ErrNotFound, id)
	}
	s.deleteChunks(id)
	delete(s.texts, id)
	delete(s.docs, id)
	return nil
}

func (s *MemoryStore) ListDocs() ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Name != docs[j].Name {
			return docs[i].Name < docs[j].Name
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

func (s *MemoryStore) FindDocByName(name string) (domain.Document, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.docs {
		if doc.Name == name {
			return doc, true, nil
		}
	}
	return domain.Document{}, false, nil
}

func (s *MemoryStore) PutText(docID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts[docID] = text
	return nil
}

func (s *MemoryStore) GetText(docID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.texts[docID]
	if !ok {
		return "", fmt.Errorf("%w: text of document %s", port.ErrNotFound, docID)
	}
	return text, nil
}

func (s *MemoryStore) PutChunks(docID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteChunks(docID)
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunk.DocID = docID
		s.chunks[chunk.ID] = chunk
		ids = append(ids, chunk.ID)
	}
	s.docChunks[docID] = ids
	return nil
}

func (s *MemoryStore) GetChunk(id string) (domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunk, ok := s.chunks[id]
	if !ok {
		return domain.Chunk{}, fmt.Errorf("%w: chunk %s", port.ErrNotFound, id)
	}
	return chunk, nil
}

func (s *MemoryStore) GetChunksByDoc(docID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunkIDs := s.docChunks[docID]
	chunks := make([]domain.Chunk, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		if chunk, ok := s.chunks[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

func (s *MemoryStore) DeleteChunksByDoc(docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteChunks(docID)
	return nil
}

func (s *MemoryStore) deleteChunks(docID string) {
	for _, id := range s.docChunks[docID] {
		delete(s.chunks, id)
	}
	delete(s.docChunks, docID)
}

func (s *MemoryStore) GetStats() (domain.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.Stats{TotalDocs: len(s.docs), TotalChunks: len(s.chunks)}
	if len(s.chunks) > 0 {
		total := 0
		for _, chunk := range s.chunks {
			total += utf8.RuneCountInString(chunk.Content)
		}
		stats.AvgChunkLen = float64(total) / float64(len(s.chunks))
	}
	return stats, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
