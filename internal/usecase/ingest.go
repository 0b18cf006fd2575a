package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/fs"
	"docrag/internal/domain"
	"docrag/internal/port"
)

// ErrTooLarge is returned for documents above the configured size limit.
var ErrTooLarge = errors.New("document too large")

// Invalidator is notified whenever the indexed corpus changes.
type Invalidator interface {
	Invalidate()
}

// IngestOptions bounds ingestion work.
type IngestOptions struct {
	MaxFileBytes int64
	BatchSize    int
	Concurrency  int
}

// ProgressFunc reports ingestion progress after each file.
type ProgressFunc func(done, total int, name string)

// IngestUseCase turns documents into stored, embedded chunks.
type IngestUseCase struct {
	docs      port.DocumentStore
	vectors   port.VectorStore
	extractor port.Extractor
	chunker   *chunker.TextChunker
	embedder  port.Embedder
	walker    *fs.Walker
	opts      IngestOptions
	caches    []Invalidator

	// mu serializes writes so that a document's replace is not interleaved
	// with another upload of the same name.
	mu sync.Mutex
}

// NewIngestUseCase creates a new ingest use case. A nil embedder stores chunks
// without vectors.
func NewIngestUseCase(
	docs port.DocumentStore,
	vectors port.VectorStore,
	extractor port.Extractor,
	chk *chunker.TextChunker,
	embedder port.Embedder,
	walker *fs.Walker,
	opts IngestOptions,
) *IngestUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 64
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &IngestUseCase{
		docs:      docs,
		vectors:   vectors,
		extractor: extractor,
		chunker:   chk,
		embedder:  embedder,
		walker:    walker,
		opts:      opts,
	}
}

// OnChange registers a cache to invalidate after every corpus change.
func (u *IngestUseCase) OnChange(inv Invalidator) {
	u.caches = append(u.caches, inv)
}

// IngestResult describes the outcome for one document.
type IngestResult struct {
	Document domain.Document `json:"document"`
	Chunks   int             `json:"chunks"`
	Skipped  bool            `json:"skipped"`
	Replaced bool            `json:"replaced"`
}

// IngestReport summarizes a multi-file ingestion.
type IngestReport struct {
	FilesIngested int
	FilesSkipped  int
	ChunksCreated int
	Errors        []string
}

// IngestFile ingests one named document. A document whose name and checksum
// match the stored version is skipped; a changed one replaces it.
func (u *IngestUseCase) IngestFile(ctx context.Context, name string, data []byte) (*IngestResult, error) {
	if u.opts.MaxFileBytes > 0 && int64(len(data)) > u.opts.MaxFileBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrTooLarge, name, len(data), u.opts.MaxFileBytes)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	checksum := checksumOf(data)
	existing, found, err := u.docs.FindDocByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", name, err)
	}
	if found && existing.Checksum == checksum {
		slog.Debug("document unchanged", "name", name, "id", existing.ID)
		return &IngestResult{Document: existing, Chunks: existing.ChunkCount, Skipped: true}, nil
	}

	mimeType, err := u.extractor.Detect(name, data)
	if err != nil {
		return nil, err
	}
	text, err := u.extractor.Extract(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", name, err)
	}

	doc := domain.Document{
		ID:         generateDocID(name),
		Name:       name,
		MimeType:   mimeType,
		Size:       int64(len(data)),
		Checksum:   checksum,
		IngestedAt: time.Now().UTC(),
	}
	if found {
		doc.ID = existing.ID
	}

	chunks, err := u.store(ctx, doc, text)
	if err != nil {
		return nil, err
	}
	u.invalidate()

	slog.Info("document ingested", "name", name, "id", doc.ID, "mime", mimeType, "chunks", chunks, "replaced", found)
	doc.ChunkCount = chunks
	return &IngestResult{Document: doc, Chunks: chunks, Replaced: found}, nil
}

// IngestPaths ingests every matching file under the given files or directories.
// Per-file failures are collected in the report rather than aborting the run.
func (u *IngestUseCase) IngestPaths(ctx context.Context, paths []string, progress ProgressFunc) (*IngestReport, error) {
	var files []fs.FileInfo
	for _, p := range paths {
		found, err := u.walker.Walk(p)
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
		files = append(files, found...)
	}

	report := &IngestReport{}
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := filepath.ToSlash(file.RelPath)
		data, err := fs.ReadFile(file.Path, u.opts.MaxFileBytes)
		if err != nil {
			if errors.Is(err, fs.ErrFileTooLarge) {
				err = fmt.Errorf("%w: %v", ErrTooLarge, err)
			}
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", name, err))
		} else if res, err := u.IngestFile(ctx, name, data); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", name, err))
		} else if res.Skipped {
			report.FilesSkipped++
		} else {
			report.FilesIngested++
			report.ChunksCreated += res.Chunks
		}

		if progress != nil {
			progress(i+1, len(files), name)
		}
	}

	return report, nil
}

// Delete removes a document with its text, chunks and vectors.
func (u *IngestUseCase) Delete(ctx context.Context, docID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, err := u.docs.GetDoc(docID); err != nil {
		return err
	}
	if err := u.deleteVectors(docID); err != nil {
		return err
	}
	if err := u.docs.DeleteDoc(docID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	u.invalidate()
	slog.Info("document deleted", "id", docID)
	return nil
}

// Reindex re-chunks and re-embeds every stored document from its stored text.
func (u *IngestUseCase) Reindex(ctx context.Context, progress ProgressFunc) (*IngestReport, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	docs, err := u.docs.ListDocs()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	report := &IngestReport{}
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		text, err := u.docs.GetText(doc.ID)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", doc.Name, err))
		} else if chunks, err := u.store(ctx, doc, text); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", doc.Name, err))
		} else {
			report.FilesIngested++
			report.ChunksCreated += chunks
		}

		if progress != nil {
			progress(i+1, len(docs), doc.Name)
		}
	}

	u.invalidate()
	slog.Info("reindex complete", "documents", report.FilesIngested, "chunks", report.ChunksCreated, "errors", len(report.Errors))
	return report, nil
}

// store chunks and embeds text, then replaces everything stored for doc.
func (u *IngestUseCase) store(ctx context.Context, doc domain.Document, text string) (int, error) {
	chunks, err := u.chunker.Chunk(doc, text)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk %s: %w", doc.Name, err)
	}

	vectors, err := u.embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", doc.Name, err)
	}

	if err := u.deleteVectors(doc.ID); err != nil {
		return 0, err
	}

	doc.ChunkCount = len(chunks)
	if err := u.docs.PutDoc(doc); err != nil {
		return 0, fmt.Errorf("failed to store document: %w", err)
	}
	if err := u.docs.PutText(doc.ID, text); err != nil {
		return 0, fmt.Errorf("failed to store text: %w", err)
	}
	if err := u.docs.PutChunks(doc.ID, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	if vectors != nil && u.vectors != nil {
		items := make([]port.VectorItem, len(chunks))
		for i, c := range chunks {
			items[i] = port.VectorItem{
				ID:     c.ID,
				Vector: vectors[i],
				Metadata: map[string]string{
					"doc_id": c.DocID,
					"source": c.Source,
				},
			}
		}
		if err := u.vectors.Upsert(items); err != nil {
			return 0, fmt.Errorf("failed to store vectors: %w", err)
		}
	}

	return len(chunks), nil
}

// embed computes chunk vectors in batches, at most opts.Concurrency batches
// in flight. The result is in chunk order.
func (u *IngestUseCase) embed(ctx context.Context, chunks []domain.Chunk) ([][]float32, error) {
	if u.embedder == nil || u.vectors == nil || len(chunks) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Concurrency)

	for start := 0; start < len(chunks); start += u.opts.BatchSize {
		start := start
		end := min(start+u.opts.BatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.Content)
			}
			batch, err := u.embedder.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(batch) != len(texts) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (u *IngestUseCase) deleteVectors(docID string) error {
	if u.vectors == nil {
		return nil
	}
	old, err := u.docs.GetChunksByDoc(docID)
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(old) == 0 {
		return nil
	}
	ids := make([]string, len(old))
	for i, c := range old {
		ids[i] = c.ID
	}
	if err := u.vectors.Delete(ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

func (u *IngestUseCase) invalidate() {
	for _, c := range u.caches {
		c.Invalidate()
	}
}

// Preview chunks text with the ingest settings without storing anything.
func (u *IngestUseCase) Preview(name, text string) ([]domain.Chunk, error) {
	return u.chunker.Chunk(domain.Document{ID: generateDocID(name), Name: name}, text)
}

func checksumOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func generateDocID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}
