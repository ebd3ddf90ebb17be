package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the screening engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values. Secrets
// (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration for the query cache
	Redis RedisConfig `yaml:"redis"`

	// Embedding API configuration (OpenAI-compatible)
	Embedding EmbeddingConfig `yaml:"embedding"`

	// External vector index service
	VectorIndex VectorIndexConfig `yaml:"vector_index"`

	// Ingestion batching configuration
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Hybrid score weights
	Scoring ScoringConfig `yaml:"scoring"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"screening"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"screening_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for the query cache.
// An empty host disables the cache; reads fall through to Postgres.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// TTLSeconds bounds staleness if an invalidation is ever missed.
	TTLSeconds int `yaml:"ttl_seconds" env:"CACHE_TTL_SECONDS" env-default:"30"`
}

// EmbeddingConfig holds the OpenAI-compatible embedding endpoint settings.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url" env:"EMBEDDING_BASE_URL" env-default:""`
	Model   string `yaml:"model" env:"EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	APIKey  string `yaml:"-" env:"EMBEDDING_API_KEY"` // Secret - not in YAML
	// BatchSize is the per-call input limit of the embedding API.
	BatchSize int `yaml:"batch_size" env:"EMBEDDING_BATCH_SIZE" env-default:"32"`
}

// IsConfigured returns true if an embedding endpoint is bound.
func (c *EmbeddingConfig) IsConfigured() bool {
	return c.BaseURL != ""
}

// VectorIndexConfig holds the external nearest-neighbor service settings.
type VectorIndexConfig struct {
	BaseURL string `yaml:"base_url" env:"VECTOR_INDEX_BASE_URL" env-default:""`
	Index   string `yaml:"index" env:"VECTOR_INDEX_NAME" env-default:"watchlist"`
	APIKey  string `yaml:"-" env:"VECTOR_INDEX_API_KEY"` // Secret - not in YAML
	// UpsertBatchSize is the per-call vector limit of the upsert endpoint.
	UpsertBatchSize int `yaml:"upsert_batch_size" env:"VECTOR_INDEX_UPSERT_BATCH_SIZE" env-default:"100"`
	// DeleteBatchSize bounds each delete-by-ids call during cleanup.
	DeleteBatchSize int `yaml:"delete_batch_size" env:"VECTOR_INDEX_DELETE_BATCH_SIZE" env-default:"200"`
}

// IsConfigured returns true if a vector index service is bound.
func (c *VectorIndexConfig) IsConfigured() bool {
	return c.BaseURL != ""
}

// IngestionConfig holds batching settings for the ingestion pipeline.
type IngestionConfig struct {
	// InsertSubBatchSize keeps each multi-row INSERT under the store's
	// per-statement parameter ceiling (8 records x 12 columns = 96 params).
	InsertSubBatchSize int `yaml:"insert_sub_batch_size" env:"INGEST_INSERT_SUB_BATCH_SIZE" env-default:"8"`
	// MaxStoredErrors caps the error list persisted on a run.
	MaxStoredErrors int `yaml:"max_stored_errors" env:"INGEST_MAX_STORED_ERRORS" env-default:"100"`
	// VectorizeBatchSize is the records-per-batch used when the completion
	// step drives a reindex job.
	VectorizeBatchSize int `yaml:"vectorize_batch_size" env:"INGEST_VECTORIZE_BATCH_SIZE" env-default:"500"`
}

// ScoringConfig holds the hybrid score weights. The weights are deliberately
// configuration, not constants, so they can be calibrated against a labeled
// match set without a code change.
type ScoringConfig struct {
	VectorWeight float64 `yaml:"vector_weight" env:"SCORE_VECTOR_WEIGHT" env-default:"0.55"`
	NameWeight   float64 `yaml:"name_weight" env:"SCORE_NAME_WEIGHT" env-default:"0.30"`
	MetaWeight   float64 `yaml:"meta_weight" env:"SCORE_META_WEIGHT" env-default:"0.15"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Ingestion.InsertSubBatchSize < 1 {
		return fmt.Errorf("insert_sub_batch_size must be positive")
	}
	if c.Embedding.BatchSize < 1 {
		return fmt.Errorf("embedding batch_size must be positive")
	}
	sum := c.Scoring.VectorWeight + c.Scoring.NameWeight + c.Scoring.MetaWeight
	if sum <= 0 {
		return fmt.Errorf("score weights must sum to a positive value")
	}
	return nil
}
