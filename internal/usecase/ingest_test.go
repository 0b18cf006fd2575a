package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/extract"
	"docrag/internal/adapter/fs"
	"docrag/internal/adapter/memstore"
	"docrag/internal/port"
)

const threeParagraphs = `Bolt stores every document in a single file on disk.

Chunks overlap so that sentences cut at a boundary stay searchable.

Embeddings are computed in batches and written next to the chunks.`

type testEnv struct {
	uc      *IngestUseCase
	docs    *memstore.MemoryStore
	vectors *memstore.MemoryVectorStore
}

func newTestEnv(t *testing.T, chunkSize, overlap int, opts IngestOptions) *testEnv {
	t.Helper()
	chk, err := chunker.NewTextChunker(chunkSize, overlap)
	if err != nil {
		t.Fatal(err)
	}
	docs := memstore.NewMemoryStore()
	vectors := memstore.NewMemoryVectorStore(64)
	uc := NewIngestUseCase(
		docs,
		vectors,
		extract.NewRegistry(),
		chk,
		embedding.NewMockEmbedder(64),
		fs.NewWalker([]string{"**/*.md", "**/*.txt"}, []string{"**/skip/**"}),
		opts,
	)
	return &testEnv{uc: uc, docs: docs, vectors: vectors}
}

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate() { c.n++ }

func TestIngestFile(t *testing.T) {
	env := newTestEnv(t, 80, 10, IngestOptions{BatchSize: 1, Concurrency: 2})
	inv := &countingInvalidator{}
	env.uc.OnChange(inv)

	res, err := env.uc.IngestFile(context.Background(), "notes.md", []byte(threeParagraphs))
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped || res.Replaced {
		t.Errorf("unexpected result flags: %+v", res)
	}
	if res.Chunks < 2 {
		t.Fatalf("expected several chunks, got %d", res.Chunks)
	}
	if res.Document.MimeType != extract.MimeMarkdown {
		t.Errorf("expected markdown mime type, got %q", res.Document.MimeType)
	}

	chunks, err := env.docs.GetChunksByDoc(res.Document.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != res.Chunks {
		t.Fatalf("stored %d chunks, reported %d", len(chunks), res.Chunks)
	}
	for i, c := range chunks {
		if want := chunker.SourceLabel("notes.md", i+1); c.Source != want {
			t.Errorf("chunk %d: expected source %q, got %q", i, want, c.Source)
		}
	}

	if n, _ := env.vectors.Count(); n != res.Chunks {
		t.Errorf("expected %d vectors, got %d", res.Chunks, n)
	}
	if text, err := env.docs.GetText(res.Document.ID); err != nil || text != threeParagraphs {
		t.Errorf("expected extracted text to be stored, got %q (%v)", text, err)
	}
	if inv.n != 1 {
		t.Errorf("expected one invalidation, got %d", inv.n)
	}
}

func TestIngestFileUnchangedAndReplaced(t *testing.T) {
	env := newTestEnv(t, 80, 10, IngestOptions{})
	ctx := context.Background()

	first, err := env.uc.IngestFile(ctx, "notes.md", []byte(threeParagraphs))
	if err != nil {
		t.Fatal(err)
	}

	again, err := env.uc.IngestFile(ctx, "notes.md", []byte(threeParagraphs))
	if err != nil {
		t.Fatal(err)
	}
	if !again.Skipped {
		t.Error("identical content should be skipped")
	}

	replaced, err := env.uc.IngestFile(ctx, "notes.md", []byte("A much shorter note."))
	if err != nil {
		t.Fatal(err)
	}
	if !replaced.Replaced || replaced.Document.ID != first.Document.ID {
		t.Errorf("expected replacement of %s, got %+v", first.Document.ID, replaced)
	}
	if replaced.Chunks != 1 {
		t.Errorf("expected 1 chunk, got %d", replaced.Chunks)
	}
	if n, _ := env.vectors.Count(); n != 1 {
		t.Errorf("vectors of the old version should be removed, %d left", n)
	}
	docs, _ := env.docs.ListDocs()
	if len(docs) != 1 {
		t.Errorf("expected 1 document, got %d", len(docs))
	}
}

func TestIngestFileErrors(t *testing.T) {
	env := newTestEnv(t, 80, 10, IngestOptions{MaxFileBytes: 16})
	ctx := context.Background()

	_, err := env.uc.IngestFile(ctx, "big.txt", []byte(strings.Repeat("x", 17)))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00")
	_, err = env.uc.IngestFile(ctx, "image.png", png)
	if !errors.Is(err, port.ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}

	if docs, _ := env.docs.ListDocs(); len(docs) != 0 {
		t.Errorf("failed ingests must not store documents, got %d", len(docs))
	}
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}
func (failingEmbedder) Dimension() int    { return 64 }
func (failingEmbedder) ModelName() string { return "failing" }

func TestIngestFileEmbeddingFailure(t *testing.T) {
	env := newTestEnv(t, 80, 10, IngestOptions{})
	env.uc.embedder = failingEmbedder{}

	if _, err := env.uc.IngestFile(context.Background(), "notes.md", []byte(threeParagraphs)); err == nil {
		t.Fatal("expected embedding error")
	}
	if _, found, _ := env.docs.FindDocByName("notes.md"); found {
		t.Error("document should not be stored when embedding fails")
	}
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, 80, 10, IngestOptions{})
	ctx := context.Background()

	res, err := env.uc.IngestFile(ctx, "notes.md", []byte(threeParagraphs))
	if err != nil {
		t.Fatal(err)
	}
	if err := env.uc.Delete(ctx, res.Document.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.docs.GetDoc(res.Document.ID); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if n, _ := env.vectors.Count(); n != 0 {
		t.Errorf("expected no vectors after delete, got %d", n)
	}
	if err := env.uc.Delete(ctx, res.Document.ID); !errors.Is(err, port.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestIngestPaths(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("a.md", threeParagraphs)
	write("sub/b.txt", "Short text file.")
	write("skip/c.md", "excluded")
	write("d.bin", "not matched")
	write("huge.txt", strings.Repeat("word ", 200))

	env := newTestEnv(t, 80, 10, IngestOptions{MaxFileBytes: 512})

	var calls []string
	report, err := env.uc.IngestPaths(context.Background(), []string{root}, func(done, total int, name string) {
		calls = append(calls, name)
		if total != 3 {
			t.Errorf("expected 3 files in total, got %d", total)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if report.FilesIngested != 2 {
		t.Errorf("expected 2 files ingested, got %d", report.FilesIngested)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "huge.txt") {
		t.Errorf("expected one error for huge.txt, got %v", report.Errors)
	}
	if len(calls) != 3 {
		t.Errorf("expected 3 progress calls, got %d", len(calls))
	}
	if _, found, _ := env.docs.FindDocByName("sub/b.txt"); !found {
		t.Error("expected documents to be named by their relative path")
	}

	again, err := env.uc.IngestPaths(context.Background(), []string{root}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again.FilesSkipped != 2 || again.FilesIngested != 0 {
		t.Errorf("expected unchanged files to be skipped, got %+v", again)
	}
}

func TestReindex(t *testing.T) {
	env := newTestEnv(t, 400, 0, IngestOptions{})
	ctx := context.Background()

	res, err := env.uc.IngestFile(ctx, "notes.md", []byte(threeParagraphs))
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunks != 1 {
		t.Fatalf("expected a single chunk, got %d", res.Chunks)
	}

	smaller, err := chunker.NewTextChunker(80, 0)
	if err != nil {
		t.Fatal(err)
	}
	env.uc.chunker = smaller

	report, err := env.uc.Reindex(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.FilesIngested != 1 || len(report.Errors) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	chunks, _ := env.docs.GetChunksByDoc(res.Document.ID)
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks after reindex, got %d", len(chunks))
	}
	if n, _ := env.vectors.Count(); n != len(chunks) {
		t.Errorf("expected %d vectors, got %d", len(chunks), n)
	}
	doc, _ := env.docs.GetDoc(res.Document.ID)
	if doc.ChunkCount != len(chunks) {
		t.Errorf("expected chunk count %d, got %d", len(chunks), doc.ChunkCount)
	}
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t, 80, 0, IngestOptions{})

	chunks, err := env.uc.Preview("notes.md", threeParagraphs)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(chunks))
	}
	if docs, _ := env.docs.ListDocs(); len(docs) != 0 {
		t.Error("preview must not store anything")
	}
}
