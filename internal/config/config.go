// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.marketlens/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: Gemini model and embedder selection, agent loop limits
//   - Market data: provider base URL and API key
//   - Analysis: sentiment and forecast service endpoints
//   - Storage: PostgreSQL connection for the knowledge base (see storage.go)
//   - Ingestion: article batch size and worker pool width
//
// Security: secrets (API keys, passwords) are bound from environment variables
// only and never logged. Validation lives in validation.go and fails fast with
// sentinel errors suitable for errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxIterations indicates the agent iteration budget is out of range.
	ErrInvalidMaxIterations = errors.New("invalid max iterations")

	// ErrInvalidHistoryDepth indicates the conversation history depth is out of range.
	ErrInvalidHistoryDepth = errors.New("invalid history depth")

	// ErrInvalidCacheTTL indicates the tool cache TTL is out of range.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidSessionTTL indicates the session retention window is out of range.
	ErrInvalidSessionTTL = errors.New("invalid session TTL")

	// ErrInvalidIngestWorkers indicates the ingestion worker count is out of range.
	ErrInvalidIngestWorkers = errors.New("invalid ingest worker count")

	// ErrInvalidIngestBatch indicates the ingestion batch limit is out of range.
	ErrInvalidIngestBatch = errors.New("invalid ingest batch limit")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultModelName is the default Gemini chat model.
	DefaultModelName = "gemini-2.0-flash"

	// DefaultEmbedderModel is the default Gemini embedding model.
	// text-embedding-004 outputs 768 dimensions, matching the pgvector schema
	// in db/migrations.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultMaxIterations bounds the agent's tool-calling loop per turn.
	DefaultMaxIterations = 8

	// DefaultHistoryDepth is the number of (user, assistant) exchange pairs
	// loaded from the session store when building a transcript.
	DefaultHistoryDepth = 5

	// DefaultCacheTTL is the server-side tool cache retention.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultSessionTTL is the conversation session retention window.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultIngestWorkers is the ingestion pipeline's worker pool width.
	DefaultIngestWorkers = 5

	// DefaultIngestBatch is the maximum number of articles processed per
	// ingestion request.
	DefaultIngestBatch = 20

	// DefaultRAGTopK is the number of knowledge-base results returned by
	// semantic search.
	DefaultRAGTopK = 5
)

// Config stores application configuration.
// Sensitive fields (API keys, passwords) must never be logged.
type Config struct {
	// AI configuration
	GeminiAPIKey  string `mapstructure:"gemini_api_key"`
	ModelName     string `mapstructure:"model_name"`
	EmbedderModel string `mapstructure:"embedder_model"`

	// Agent loop configuration
	MaxIterations int `mapstructure:"max_iterations"`
	HistoryDepth  int `mapstructure:"history_depth"`

	// PersistBudgetFallback controls whether the fixed fallback answer emitted
	// when the iteration budget is exhausted is also written to conversation
	// history. Default false: a non-answer should not pollute later turns.
	PersistBudgetFallback bool `mapstructure:"persist_budget_fallback"`

	// Tool cache / session retention
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	// Market data provider
	PolygonAPIKey  string `mapstructure:"polygon_api_key"`
	PolygonBaseURL string `mapstructure:"polygon_base_url"`

	// Analysis services
	SentimentServiceURL string `mapstructure:"sentiment_service_url"`
	ForecastServiceURL  string `mapstructure:"forecast_service_url"`

	// Knowledge base / RAG
	RAGTopK int `mapstructure:"rag_top_k"`

	// Ingestion pipeline
	IngestWorkers int `mapstructure:"ingest_workers"`
	IngestBatch   int `mapstructure:"ingest_batch"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".marketlens")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when present.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	v.SetDefault("max_iterations", DefaultMaxIterations)
	v.SetDefault("history_depth", DefaultHistoryDepth)
	v.SetDefault("persist_budget_fallback", false)

	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("session_ttl", DefaultSessionTTL)

	v.SetDefault("polygon_base_url", "https://api.polygon.io")
	v.SetDefault("sentiment_service_url", "http://localhost:8091")
	v.SetDefault("forecast_service_url", "http://localhost:8092")

	v.SetDefault("rag_top_k", DefaultRAGTopK)
	v.SetDefault("ingest_workers", DefaultIngestWorkers)
	v.SetDefault("ingest_batch", DefaultIngestBatch)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "marketlens")
	v.SetDefault("postgres_password", "marketlens_dev_password")
	v.SetDefault("postgres_db_name", "marketlens")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("listen_addr", "127.0.0.1:5000")
}

// bindEnvVariables binds secret environment variables explicitly.
// Non-secret values can still be overridden via the config file.
func bindEnvVariables(v *viper.Viper) {
	// Errors from BindEnv only occur with zero arguments; safe to ignore here.
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("polygon_api_key", "POLYGON_API_KEY")
	_ = v.BindEnv("postgres_password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("model_name", "GEMINI_MODEL")
	_ = v.BindEnv("embedder_model", "EMBEDDING_MODEL")
	_ = v.BindEnv("listen_addr", "LISTEN_ADDR")
}
