// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Model artifacts. Both are required: the service refuses to start
	// without a loadable model and scaler.
	ModelPath  string
	ScalerPath string

	// Scoring settings
	WriterQueueSize int           // Buffered capacity of the deferred ledger-write queue
	WriterTimeout   time.Duration // Per-write deadline for deferred ledger writes
	FeedLimit       int           // Max rows returned by the public feed

	// Rate limiting
	RateLimitRPM int

	// CORS
	CORSOrigins []string // Allowed origins; "*" permits any origin

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled when empty
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultModelPath       = "artifacts/chainguard_model.json"
	DefaultScalerPath      = "artifacts/chainguard_scaler.json"
	DefaultWriterQueueSize = 1024
	DefaultWriterTimeout   = 5 * time.Second
	DefaultFeedLimit       = 50
	DefaultRateLimitRPM    = 120
	DefaultCORSOrigins     = "*"
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", DefaultPort),
		Env:             getEnv("ENV", DefaultEnv),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:     os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ModelPath:       getEnv("MODEL_PATH", DefaultModelPath),
		ScalerPath:      getEnv("SCALER_PATH", DefaultScalerPath),
		WriterQueueSize: getEnvInt("WRITER_QUEUE_SIZE", DefaultWriterQueueSize),
		WriterTimeout:   getEnvDuration("WRITER_TIMEOUT", DefaultWriterTimeout),
		FeedLimit:       getEnvInt("FEED_LIMIT", DefaultFeedLimit),
		RateLimitRPM:    getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		CORSOrigins:     getEnvList("CORS_ORIGINS", DefaultCORSOrigins),
		OTLPEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if c.ScalerPath == "" {
		return fmt.Errorf("SCALER_PATH is required")
	}
	if c.WriterQueueSize <= 0 {
		return fmt.Errorf("WRITER_QUEUE_SIZE must be positive")
	}
	if c.WriterTimeout <= 0 {
		return fmt.Errorf("WRITER_TIMEOUT must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
