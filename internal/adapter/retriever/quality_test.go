package retriever

import (
	"context"
	"fmt"
	"math"
	"testing"

	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/memstore"
	"docrag/internal/domain"
	"docrag/internal/port"
)

func recallAtK(retrieved, relevant []string) float64 {
	if len(relevant) == 0 {
		return 0
	}
	want := make(map[string]bool, len(relevant))
	for _, id := range relevant {
		want[id] = true
	}
	hits := 0
	for _, id := range retrieved {
		if want[id] {
			hits++
		}
	}
	return float64(hits) / float64(len(relevant))
}

func reciprocalRank(retrieved []string, relevant string) float64 {
	for i, id := range retrieved {
		if id == relevant {
			return 1 / float64(i+1)
		}
	}
	return 0
}

func TestRankingMetrics(t *testing.T) {
	if r := recallAtK([]string{"a", "b", "x"}, []string{"a", "b", "c"}); math.Abs(r-2.0/3) > 1e-9 {
		t.Errorf("recall = %.3f, want 0.667", r)
	}
	if r := recallAtK([]string{"a"}, nil); r != 0 {
		t.Errorf("recall without relevant ids = %.3f, want 0", r)
	}
	if rr := reciprocalRank([]string{"x", "a"}, "a"); rr != 0.5 {
		t.Errorf("reciprocal rank = %.3f, want 0.5", rr)
	}
	if rr := reciprocalRank([]string{"x"}, "a"); rr != 0 {
		t.Errorf("reciprocal rank = %.3f, want 0", rr)
	}
}

// corpus is a tiny labelled collection: each query should find its chunk first.
var corpus = []struct {
	id, content, query string
}{
	{"backup", "Backups run nightly and are retained for thirty days in cold storage.", "how long are backups retained"},
	{"vpn", "Remote employees connect through the corporate VPN using hardware tokens.", "connect remotely vpn token"},
	{"expenses", "Expense reports must be filed within two weeks with scanned receipts attached.", "file expense reports receipts"},
	{"onboarding", "New hires receive a laptop and complete security onboarding in their first week.", "security onboarding for new hires"},
	{"incident", "Production incidents are paged to the on-call engineer and reviewed in a postmortem.", "who is paged for production incidents"},
}

func newCorpusRetriever(t testing.TB) *SemanticRetriever {
	t.Helper()
	ctx := context.Background()
	docs := memstore.NewMemoryStore()
	vectors := memstore.NewMemoryVectorStore(256)
	embedder := embedding.NewMockEmbedder(256)

	chunks := make([]domain.Chunk, len(corpus))
	texts := make([]string, len(corpus))
	for i, c := range corpus {
		chunks[i] = domain.Chunk{ID: c.id, DocID: "handbook", Index: i + 1, Source: fmt.Sprintf("handbook.md#%d", i+1), Content: c.content}
		texts[i] = c.content
	}
	if err := docs.PutChunks("handbook", chunks); err != nil {
		t.Fatal(err)
	}
	vecs, err := embedder.Embed(ctx, texts)
	if err != nil {
		t.Fatal(err)
	}
	items := make([]port.VectorItem, len(chunks))
	for i, c := range chunks {
		items[i] = port.VectorItem{ID: c.ID, Vector: vecs[i]}
	}
	if err := vectors.Upsert(items); err != nil {
		t.Fatal(err)
	}
	return NewSemanticRetriever(vectors, embedder, docs)
}

func TestSemanticRetrievalQuality(t *testing.T) {
	r := newCorpusRetriever(t)

	var mrr float64
	for _, c := range corpus {
		results, err := r.Search(context.Background(), c.query, 3)
		if err != nil {
			t.Fatal(err)
		}
		ids := make([]string, len(results))
		for i, res := range results {
			ids[i] = res.Chunk.ID
		}
		if recallAtK(ids, []string{c.id}) != 1 {
			t.Errorf("query %q: %s not in top 3 %v", c.query, c.id, ids)
		}
		mrr += reciprocalRank(ids, c.id)
	}

	mrr /= float64(len(corpus))
	if mrr < 0.6 {
		t.Errorf("mean reciprocal rank %.2f below 0.6", mrr)
	}
}

func BenchmarkSemanticSearch(b *testing.B) {
	r := newCorpusRetriever(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Search(ctx, corpus[i%len(corpus)].query, 3); err != nil {
			b.Fatal(err)
		}
	}
}
