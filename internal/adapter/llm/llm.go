package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"docrag/config"
	"docrag/internal/port"
)

// ErrUnavailable is returned when the configured model cannot be reached or set up.
var ErrUnavailable = errors.New("language model unavailable")

// New builds the model selected by cfg.Provider.
func New(cfg config.LLMConfig) (port.LLM, error) {
	switch cfg.Provider {
	case "echo":
		return EchoLLM{}, nil
	case "ollama":
		return NewOpenAIChat("ollama", orDefault(cfg.BaseURL, "http://localhost:11434/v1"), cfg), nil
	case "openai":
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: API key not found in environment variable %s", ErrUnavailable, cfg.APIKeyEnv)
		}
		return NewOpenAIChat(apiKey, orDefault(cfg.BaseURL, "https://api.openai.com/v1"), cfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrUnavailable, cfg.Provider)
	}
}

// OpenAIChat answers prompts through an OpenAI-compatible chat completions API.
type OpenAIChat struct {
	client      *openai.Client
	model       string
	temperature float32
}

var _ port.LLM = (*OpenAIChat)(nil)

func NewOpenAIChat(apiKey, baseURL string, cfg config.LLMConfig) *OpenAIChat {
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = strings.TrimRight(baseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	return &OpenAIChat{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}
}

func (c *OpenAIChat) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *OpenAIChat) ModelName() string {
	return c.model
}

// EchoLLM returns the user prompt unchanged. It lets ask run without a model.
type EchoLLM struct{}

func (EchoLLM) Generate(_ context.Context, _, userPrompt string) (string, error) {
	return userPrompt, nil
}

func (EchoLLM) ModelName() string {
	return "echo"
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
