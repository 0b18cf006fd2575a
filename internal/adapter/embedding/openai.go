package embedding

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"docrag/config"
	"docrag/internal/port"
)

// MaxBatch is the largest number of inputs sent in one embeddings request.
const MaxBatch = 100

const (
	openAIBaseURL   = "https://api.openai.com/v1"
	deepSeekBaseURL = "https://api.deepseek.com/v1"
	jinaBaseURL     = "https://api.jina.ai/v1"
	ollamaBaseURL   = "http://localhost:11434/v1"
)

// OpenAIEmbedder calls any OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
	// sendDimensions asks the API to shorten vectors (text-embedding-3 models only).
	sendDimensions bool
}

var _ port.Embedder = (*OpenAIEmbedder)(nil)

// NewEmbedder builds the embedder selected by cfg.Provider.
func NewEmbedder(cfg config.EmbeddingConfig) (port.Embedder, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockEmbedder(cfg.Dimension), nil
	case "ollama":
		return NewOpenAICompatibleEmbedder("ollama", orDefault(cfg.BaseURL, ollamaBaseURL), cfg)
	case "openai", "jina", "deepseek":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: API key not found in environment variable %s", port.ErrEmbeddingUnavailable, cfg.APIKeyEnv)
		}
		baseURL := map[string]string{
			"openai":   openAIBaseURL,
			"jina":     jinaBaseURL,
			"deepseek": deepSeekBaseURL,
		}[cfg.Provider]
		return NewOpenAICompatibleEmbedder(apiKey, orDefault(cfg.BaseURL, baseURL), cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", port.ErrEmbeddingUnavailable, cfg.Provider)
	}
}

func NewOpenAICompatibleEmbedder(apiKey, baseURL string, cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", port.ErrEmbeddingUnavailable)
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = defaultDimension(cfg.Model)
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 || batchSize > MaxBatch {
		batchSize = MaxBatch
	}

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}

	return &OpenAIEmbedder{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		dimension:      dimension,
		batchSize:      batchSize,
		sendDimensions: strings.HasPrefix(cfg.Model, "text-embedding-3"),
	}, nil
}

// Embed returns one vector per text, in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, embeddings...)
	}

	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}
	if e.sendDimensions {
		req.Dimensions = e.dimension
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("embedding response index %d out of range", data.Index)
		}
		if len(data.Embedding) != e.dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", e.dimension, len(data.Embedding))
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("embedding response is missing input %d", i)
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

func defaultDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "jina-embeddings-v3":
		return 1024
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default:
		return 1536
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
