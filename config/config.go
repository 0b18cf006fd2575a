package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DataDirName is the directory holding the index database inside the data root.
	DataDirName = ".docrag"
	// FileName is the config file looked up in the data root.
	FileName = "docrag.yaml"
	// EnvPrefix prefixes every environment override, e.g. DOCRAG_INGEST_CHUNK_SIZE.
	EnvPrefix = "DOCRAG_"
)

// Config holds all configuration for docrag.
type Config struct {
	Ingest    IngestConfig    `yaml:"ingest" envPrefix:"INGEST_"`
	Embedding EmbeddingConfig `yaml:"embedding" envPrefix:"EMBEDDING_"`
	Retrieve  RetrieveConfig  `yaml:"retrieve" envPrefix:"RETRIEVE_"`
	Prompt    PromptConfig    `yaml:"prompt" envPrefix:"PROMPT_"`
	LLM       LLMConfig       `yaml:"llm" envPrefix:"LLM_"`
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOGGING_"`
}

// IngestConfig controls which files are ingested and how their text is chunked.
// Chunk sizes are in characters.
type IngestConfig struct {
	Includes     []string `yaml:"includes" env:"INCLUDES" validate:"min=1"`
	Excludes     []string `yaml:"excludes" env:"EXCLUDES"`
	ChunkSize    int      `yaml:"chunk_size" env:"CHUNK_SIZE" validate:"gt=0"`
	ChunkOverlap int      `yaml:"chunk_overlap" env:"CHUNK_OVERLAP" validate:"gte=0,ltfield=ChunkSize"`
	MaxFileBytes int64    `yaml:"max_file_bytes" env:"MAX_FILE_BYTES" validate:"gt=0"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider" env:"PROVIDER" validate:"oneof=openai ollama jina deepseek mock"`
	Model       string `yaml:"model" env:"MODEL"`
	APIKeyEnv   string `yaml:"api_key_env" env:"API_KEY_ENV"` // Environment variable holding the API key
	BaseURL     string `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	Dimension   int    `yaml:"dimension" env:"DIMENSION" validate:"gt=0"`
	BatchSize   int    `yaml:"batch_size" env:"BATCH_SIZE" validate:"gt=0,lte=100"`
	Concurrency int    `yaml:"concurrency" env:"CONCURRENCY" validate:"gt=0"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK         int           `yaml:"top_k" env:"TOP_K" validate:"gt=0"`
	MinScore     float64       `yaml:"min_score" env:"MIN_SCORE" validate:"gte=-1,lte=1"` // 0 keeps every non-negative match
	MMREnabled   bool          `yaml:"mmr_enabled" env:"MMR_ENABLED"`
	MMRLambda    float64       `yaml:"mmr_lambda" env:"MMR_LAMBDA" validate:"gte=0,lte=1"`
	DedupJaccard float64       `yaml:"dedup_jaccard" env:"DEDUP_JACCARD" validate:"gte=0,lte=1"`
	CacheSize    int           `yaml:"cache_size" env:"CACHE_SIZE" validate:"gte=0"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL" validate:"gte=0"`
}

// PromptConfig holds context packing configuration.
type PromptConfig struct {
	BudgetChars int    `yaml:"budget_chars" env:"BUDGET_CHARS" validate:"gt=0"`
	Template    string `yaml:"template" env:"TEMPLATE" validate:"oneof=answer context"`
}

// LLMConfig selects the chat model used by ask.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"PROVIDER" validate:"oneof=openai ollama echo"`
	Model       string  `yaml:"model" env:"MODEL"`
	APIKeyEnv   string  `yaml:"api_key_env" env:"API_KEY_ENV"`
	BaseURL     string  `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	Temperature float32 `yaml:"temperature" env:"TEMPERATURE" validate:"gte=0,lte=2"`
}

type ServerConfig struct {
	Host           string `yaml:"host" env:"HOST"`
	Port           int    `yaml:"port" env:"PORT" validate:"gte=1,lte=65535"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" validate:"gt=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=text json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			Includes:     []string{"**/*.txt", "**/*.text", "**/*.md", "**/*.markdown", "**/*.pdf", "**/*.docx"},
			Excludes:     []string{"**/.git/**", "**/.docrag/**", "**/node_modules/**", "**/vendor/**"},
			ChunkSize:    1200,
			ChunkOverlap: 150,
			MaxFileBytes: 32 << 20,
		},
		Embedding: EmbeddingConfig{
			Provider:    "mock",
			Model:       "text-embedding-3-small",
			APIKeyEnv:   "OPENAI_API_KEY",
			Dimension:   256,
			BatchSize:   64,
			Concurrency: 4,
		},
		Retrieve: RetrieveConfig{
			TopK:         5,
			MinScore:     0,
			MMREnabled:   true,
			MMRLambda:    0.7,
			DedupJaccard: 0.8,
			CacheSize:    256,
			CacheTTL:     5 * time.Minute,
		},
		Prompt: PromptConfig{
			BudgetChars: 6000,
			Template:    "answer",
		},
		LLM: LLMConfig{
			Provider:    "echo",
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.2,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			MaxUploadBytes: 32 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a data root (looks for docrag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DataDirName, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// ApplyEnv overrides values from DOCRAG_* environment variables. A .env file
// in dir, if present, is loaded first without replacing variables already set.
func (c *Config) ApplyEnv(dir string) error {
	envFile := filepath.Join(dir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// IndexHash fingerprints the settings that change stored chunks or vectors.
// A different hash means the index must be rebuilt.
func (c *Config) IndexHash() string {
	relevant := struct {
		ChunkSize    int    `json:"chunk_size"`
		ChunkOverlap int    `json:"chunk_overlap"`
		Provider     string `json:"provider"`
		Model        string `json:"model"`
		Dimension    int    `json:"dimension"`
	}{
		ChunkSize:    c.Ingest.ChunkSize,
		ChunkOverlap: c.Ingest.ChunkOverlap,
		Provider:     c.Embedding.Provider,
		Model:        c.Embedding.Model,
		Dimension:    c.Embedding.Dimension,
	}
	data, _ := json.Marshal(relevant)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// IndexDBPath returns the path to the index database.
func IndexDBPath(dir string) string {
	return filepath.Join(dir, DataDirName, "index.db")
}

// EnsureDataDir ensures the .docrag directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, DataDirName), 0755)
}
