package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the process configuration for the retrieval core and its CLI.
type Config struct {
	Postgres  PostgresConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	Chat      ChatConfig
	Retrieval RetrievalConfig
	LogFormat string
	LogLevel  string
}

// PostgresConfig holds connection settings for the fiber and knowledge base store.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig is optional; an empty Addr disables the Redis-backed cache and conversation store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// EmbeddingConfig selects the embedding model. An empty APIKey leaves embeddings unavailable
// and retrieval runs keyword-only.
type EmbeddingConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
}

// ChatConfig selects the completion provider used by the chat service.
type ChatConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// RetrievalConfig carries the tuning knobs of the hybrid retrieval pipeline.
type RetrievalConfig struct {
	FiberThreshold     float64
	DocumentThreshold  float64
	SearchLimit        int
	SparseThreshold    int
	FallbackScore      float64
	HistoryWindow      int
	KnowledgeLimit     int
	ContextTokenBudget int
}

// Default returns the reference deployment settings.
func Default() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "fiberkb",
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Prefix: "fiberkb:",
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Chat: ChatConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			MaxTokens:   1500,
			Temperature: 0.7,
		},
		Retrieval: RetrievalConfig{
			FiberThreshold:     0.45,
			DocumentThreshold:  0.5,
			SearchLimit:        15,
			SparseThreshold:    8,
			FallbackScore:      0.75,
			HistoryWindow:      6,
			KnowledgeLimit:     3,
			ContextTokenBudget: 6000,
		},
		LogFormat: "json",
		LogLevel:  "info",
	}
}

// Load reads .env files and overlays environment variables on Default. Without
// arguments the working directory's .env is read when it exists; files named
// explicitly must load. Malformed numbers are reported with the validation errors.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		if len(envFiles) > 0 || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	parse := NewValidator("env")
	envInt := func(key string, fallback int) int { return parseInt(parse, key, fallback) }
	envFloat := func(key string, fallback float64) float64 { return parseFloat(parse, key, fallback) }

	cfg := Default()
	cfg.Postgres.Host = envOr("FIBERKB_PG_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = envInt("FIBERKB_PG_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = envOr("FIBERKB_PG_USER", cfg.Postgres.User)
	cfg.Postgres.Password = envOr("FIBERKB_PG_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.DBName = envOr("FIBERKB_PG_DATABASE", cfg.Postgres.DBName)
	cfg.Postgres.SSLMode = envOr("FIBERKB_PG_SSLMODE", cfg.Postgres.SSLMode)

	cfg.Redis.Addr = envOr("FIBERKB_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envOr("FIBERKB_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envInt("FIBERKB_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Prefix = envOr("FIBERKB_REDIS_PREFIX", cfg.Redis.Prefix)

	cfg.Embedding.APIKey = envOr("OPENAI_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.BaseURL = envOr("OPENAI_API_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Model = envOr("FIBERKB_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = envInt("FIBERKB_EMBEDDING_DIMENSION", cfg.Embedding.Dimension)

	cfg.Chat.Provider = strings.ToLower(envOr("FIBERKB_CHAT_PROVIDER", cfg.Chat.Provider))
	switch cfg.Chat.Provider {
	case "anthropic":
		cfg.Chat.APIKey = envOr("ANTHROPIC_API_KEY", cfg.Chat.APIKey)
		cfg.Chat.BaseURL = envOr("ANTHROPIC_BASE_URL", cfg.Chat.BaseURL)
		cfg.Chat.Model = "claude-sonnet-4-5-20250929"
	case "gemini":
		cfg.Chat.APIKey = envOr("GEMINI_API_KEY", envOr("GOOGLE_API_KEY", cfg.Chat.APIKey))
		cfg.Chat.BaseURL = envOr("GEMINI_BASE_URL", cfg.Chat.BaseURL)
		cfg.Chat.Model = "gemini-1.5-flash"
	default:
		cfg.Chat.APIKey = cfg.Embedding.APIKey
		cfg.Chat.BaseURL = cfg.Embedding.BaseURL
	}
	cfg.Chat.Model = envOr("FIBERKB_CHAT_MODEL", cfg.Chat.Model)
	cfg.Chat.MaxTokens = envInt("FIBERKB_CHAT_MAX_TOKENS", cfg.Chat.MaxTokens)
	cfg.Chat.Temperature = envFloat("FIBERKB_CHAT_TEMPERATURE", cfg.Chat.Temperature)

	cfg.Retrieval.FiberThreshold = envFloat("FIBERKB_FIBER_THRESHOLD", cfg.Retrieval.FiberThreshold)
	cfg.Retrieval.DocumentThreshold = envFloat("FIBERKB_DOCUMENT_THRESHOLD", cfg.Retrieval.DocumentThreshold)
	cfg.Retrieval.SearchLimit = envInt("FIBERKB_SEARCH_LIMIT", cfg.Retrieval.SearchLimit)
	cfg.Retrieval.SparseThreshold = envInt("FIBERKB_SPARSE_THRESHOLD", cfg.Retrieval.SparseThreshold)
	cfg.Retrieval.FallbackScore = envFloat("FIBERKB_FALLBACK_SCORE", cfg.Retrieval.FallbackScore)
	cfg.Retrieval.HistoryWindow = envInt("FIBERKB_HISTORY_WINDOW", cfg.Retrieval.HistoryWindow)
	cfg.Retrieval.KnowledgeLimit = envInt("FIBERKB_KNOWLEDGE_LIMIT", cfg.Retrieval.KnowledgeLimit)
	cfg.Retrieval.ContextTokenBudget = envInt("FIBERKB_CONTEXT_TOKENS", cfg.Retrieval.ContextTokenBudget)

	cfg.LogFormat = envOr("FIBERKB_LOG_FORMAT", cfg.LogFormat)
	cfg.LogLevel = envOr("FIBERKB_LOG_LEVEL", cfg.LogLevel)

	if err := errors.Join(parse.Err(), cfg.Validate()); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section of the configuration and reports all failures together.
func (c Config) Validate() error {
	v := NewValidator("").
		RequireNonEmpty("embedding.model", c.Embedding.Model).
		ValidateRange("embedding.dimension", c.Embedding.Dimension, 1, 16000).
		ValidateOneOf("chat.provider", c.Chat.Provider, "openai", "anthropic", "gemini").
		RequireNonEmpty("chat.model", c.Chat.Model).
		RequirePositive("chat.maxTokens", c.Chat.MaxTokens).
		ValidateFloatRange("chat.temperature", c.Chat.Temperature, 0, 2).
		ValidateOneOf("logFormat", c.LogFormat, "json", "text")
	return errors.Join(c.Postgres.Validate(), c.Redis.Validate(), c.Retrieval.Validate(), v.Err())
}

// DSN renders a lib/pq connection string.
func (p PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s", p.Host, p.Port, p.User, p.DBName, p.SSLMode)
	if p.Password != "" {
		dsn += " password=" + p.Password
	}
	return dsn
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func parseInt(v *Validator, key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		v.fail(key, "must be an integer, got %q", val)
		return fallback
	}
	return n
}

func parseFloat(v *Validator, key string, fallback float64) float64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		v.fail(key, "must be a number, got %q", val)
		return fallback
	}
	return f
}
