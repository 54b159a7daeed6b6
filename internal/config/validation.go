package config

import (
	"fmt"
	"slices"
	"time"
)

// validSSLModes are the sslmode values accepted by libpq/pgx.
var validSSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// API keys: required for the model loop and the market-data tools.
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
	}
	if c.PolygonAPIKey == "" {
		return fmt.Errorf("%w: POLYGON_API_KEY environment variable is required", ErrMissingAPIKey)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidModelName)
	}

	// Agent loop bounds. The iteration budget is the only protection against
	// runaway model behavior, so an unbounded value is rejected outright.
	if c.MaxIterations < 1 || c.MaxIterations > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidMaxIterations, c.MaxIterations)
	}
	if c.HistoryDepth < 1 || c.HistoryDepth > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidHistoryDepth, c.HistoryDepth)
	}

	if c.CacheTTL < time.Second || c.CacheTTL > time.Hour {
		return fmt.Errorf("%w: must be between 1s and 1h, got %s", ErrInvalidCacheTTL, c.CacheTTL)
	}
	if c.SessionTTL < time.Minute || c.SessionTTL > 7*24*time.Hour {
		return fmt.Errorf("%w: must be between 1m and 168h, got %s", ErrInvalidSessionTTL, c.SessionTTL)
	}

	if c.IngestWorkers < 1 || c.IngestWorkers > 32 {
		return fmt.Errorf("%w: must be between 1 and 32, got %d", ErrInvalidIngestWorkers, c.IngestWorkers)
	}
	if c.IngestBatch < 1 || c.IngestBatch > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidIngestBatch, c.IngestBatch)
	}

	// PostgreSQL configuration.
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: got %q, must be one of %v", ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
