package memstore

import (
	"fmt"
	"sort"
	"sync"

	"docrag/internal/adapter/store"
	"docrag/internal/port"
)

// MemoryVectorStore is a brute-force cosine index kept only in memory.
type MemoryVectorStore struct {
	mu        sync.RWMutex
	dimension int
	items     map[string]port.VectorItem
}

var _ port.VectorStore = (*MemoryVectorStore)(nil)

func NewMemoryVectorStore(dimension int) *MemoryVectorStore {
	return &MemoryVectorStore{
		dimension: dimension,
		items:     make(map[string]port.VectorItem),
	}
}

func (s *MemoryVectorStore) Upsert(items []port.VectorItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if len(item.Vector) != s.dimension {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(item.Vector))
		}
	}
	for _, item := range items {
		s.items[item.ID] = item
	}
	return nil
}

func (s *MemoryVectorStore) Search(query []float32, k int) ([]port.VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(query))
	}
	if k <= 0 || len(s.items) == 0 {
		return nil, nil
	}

	results := make([]port.VectorResult, 0, len(s.items))
	for id, item := range s.items {
		results = append(results, port.VectorResult{
			ID:       id,
			Score:    store.CosineSimilarity(query, item.Vector),
			Metadata: item.Metadata,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryVectorStore) Delete(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.items, id)
	}
	return nil
}

func (s *MemoryVectorStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}
