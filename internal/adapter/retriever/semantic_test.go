package retriever

import (
	"context"
	"errors"
	"testing"

	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/memstore"
	"docrag/internal/domain"
	"docrag/internal/port"
)

func TestSemanticRetriever(t *testing.T) {
	ctx := context.Background()
	docs := memstore.NewMemoryStore()
	vectors := memstore.NewMemoryVectorStore(128)
	embedder := embedding.NewMockEmbedder(128)

	chunks := []domain.Chunk{
		{ID: "c1", DocID: "d1", Index: 1, Source: "guide.md#1", Content: "Install the bolt database driver before running ingestion."},
		{ID: "c2", DocID: "d1", Index: 2, Source: "guide.md#2", Content: "Cats sleep for most of the afternoon."},
		{ID: "c3", DocID: "d1", Index: 3, Source: "guide.md#3", Content: "The ingestion pipeline writes chunks into the bolt database."},
	}
	docs.PutChunks("d1", chunks)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	items := make([]port.VectorItem, len(chunks))
	for i, c := range chunks {
		items[i] = port.VectorItem{ID: c.ID, Vector: vecs[i], Metadata: map[string]string{"doc_id": c.DocID}}
	}
	// A vector whose chunk was already removed is skipped.
	items = append(items, port.VectorItem{ID: "gone", Vector: vecs[2]})
	if err := vectors.Upsert(items); err != nil {
		t.Fatal(err)
	}

	r := NewSemanticRetriever(vectors, embedder, docs)
	results, err := r.Search(ctx, "bolt database ingestion", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d: %+v", len(results), results)
	}
	for _, res := range results {
		if res.Chunk.ID == "c2" {
			t.Error("unrelated chunk should rank below the related ones")
		}
		if res.Chunk.Source == "" {
			t.Error("expected chunk to be resolved from the store")
		}
	}
	if results[0].Score < results[1].Score {
		t.Error("results should be ordered by score")
	}
}

func TestSemanticRetrieverWithoutEmbeddings(t *testing.T) {
	r := NewSemanticRetriever(nil, nil, memstore.NewMemoryStore())
	if _, err := r.Search(context.Background(), "q", 3); !errors.Is(err, port.ErrEmbeddingUnavailable) {
		t.Errorf("expected ErrEmbeddingUnavailable, got %v", err)
	}
}
