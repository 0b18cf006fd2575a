package cli

import (
	"context"
	"fmt"
	"log/slog"

	"docrag/config"
	"docrag/internal/adapter/cache"
	"docrag/internal/adapter/chunker"
	"docrag/internal/adapter/embedding"
	"docrag/internal/adapter/extract"
	"docrag/internal/adapter/fs"
	"docrag/internal/adapter/llm"
	"docrag/internal/adapter/memstore"
	"docrag/internal/adapter/retriever"
	"docrag/internal/adapter/store"
	"docrag/internal/port"
	"docrag/internal/usecase"
)

// app wires the configured adapters into the use cases.
type app struct {
	cfg      *config.Config
	bolt     *store.BoltStore // nil for ephemeral apps
	docs     port.DocumentStore
	chunker  *chunker.TextChunker
	ingest   *usecase.IngestUseCase
	retrieve *usecase.RetrieveUseCase
	prompt   *usecase.PromptUseCase
}

type appOptions struct {
	ephemeral bool // keep everything in memory
}

func openApp(ctx context.Context, cfg *config.Config, dir string, opts appOptions) (*app, error) {
	embedder, err := embedding.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	chk, err := chunker.NewTextChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, chunker: chk}

	var vectors port.VectorStore
	if opts.ephemeral {
		a.docs = memstore.NewMemoryStore()
		vectors = memstore.NewMemoryVectorStore(embedder.Dimension())
	} else {
		if err := config.EnsureDataDir(dir); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", config.DataDirName, err)
		}
		a.bolt, err = store.NewBoltStore(config.IndexDBPath(dir))
		if err != nil {
			return nil, fmt.Errorf("failed to open index store: %w", err)
		}
		a.docs = a.bolt
		vectors, err = store.NewBoltVectorStore(a.bolt.DB(), embedder.Dimension())
		if err != nil {
			a.bolt.Close()
			return nil, fmt.Errorf("failed to create vector store: %w", err)
		}
	}

	a.ingest = usecase.NewIngestUseCase(
		a.docs,
		vectors,
		extract.NewRegistry(),
		chk,
		embedder,
		fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes),
		usecase.IngestOptions{
			MaxFileBytes: cfg.Ingest.MaxFileBytes,
			BatchSize:    cfg.Embedding.BatchSize,
			Concurrency:  cfg.Embedding.Concurrency,
		},
	)

	var search port.Retriever = retriever.NewSemanticRetriever(vectors, embedder, a.docs)
	if cfg.Retrieve.CacheSize > 0 {
		cached := cache.NewCachedRetriever(search, cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL))
		a.ingest.OnChange(cached)
		search = cached
	}

	var mmr *retriever.MMRReranker
	if cfg.Retrieve.MMREnabled {
		mmr = retriever.NewMMRReranker(cfg.Retrieve.MMRLambda, cfg.Retrieve.DedupJaccard)
	}
	a.retrieve = usecase.NewRetrieveUseCase(search, mmr, cfg.Retrieve.MinScore)

	model, err := llm.New(cfg.LLM)
	if err != nil {
		slog.Debug("language model not available", "provider", cfg.LLM.Provider, "error", err)
		model = unavailableLLM{err: err}
	}
	a.prompt = usecase.NewPromptUseCase(a.retrieve, model, cfg.Retrieve.TopK, cfg.Prompt.BudgetChars, cfg.Prompt.Template)

	if a.bolt != nil {
		if err := a.migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// migrate upgrades the schema and rebuilds chunks and vectors when the
// chunking or embedding settings changed since the last run.
func (a *app) migrate(ctx context.Context) error {
	result, err := a.bolt.CheckMigration(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to check migration: %w", err)
	}

	if result.NeedsReindex {
		slog.Warn("rebuilding index", "reason", result.Reason)
		report, err := a.ingest.Reindex(ctx, nil)
		if err != nil {
			return fmt.Errorf("reindex failed: %w", err)
		}
		for _, e := range report.Errors {
			slog.Warn("reindex", "error", e)
		}
	}

	if result.NeedsMigration || result.NeedsReindex {
		if result.NeedsMigration {
			slog.Info("running schema migration", "reason", result.Reason)
		}
		if err := a.bolt.Migrate(a.cfg); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (a *app) Close() error {
	if a.bolt != nil {
		return a.bolt.Close()
	}
	return nil
}

// unavailableLLM reports why the configured model could not be created.
type unavailableLLM struct {
	err error
}

func (m unavailableLLM) Generate(context.Context, string, string) (string, error) {
	return "", m.err
}

func (m unavailableLLM) ModelName() string {
	return "unavailable"
}
