// Package config loads runtime settings from defaults, an optional YAML
// file, a .env file and LEGITRAG_* environment variables, in rising priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "LEGITRAG"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Store    StoreConfig    `mapstructure:"store"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Port       string `mapstructure:"port" validate:"required"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

type LLMConfig struct {
	BaseURL           string        `mapstructure:"base_url" validate:"required,url"`
	RouterModel       string        `mapstructure:"router_model" validate:"required"`
	ReformulatorModel string        `mapstructure:"reformulator_model" validate:"required"`
	CompletionModel   string        `mapstructure:"completion_model" validate:"required"`
	AnswerModel       string        `mapstructure:"answer_model" validate:"required"`
	EvaluatorModel    string        `mapstructure:"evaluator_model" validate:"required"`
	EmbeddingModel    string        `mapstructure:"embedding_model" validate:"required"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RatePerSecond     float64       `mapstructure:"rate_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" validate:"gte=1"`
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BreakerThreshold  int           `mapstructure:"breaker_threshold" validate:"gte=1"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown" validate:"gt=0"`
}

type PipelineConfig struct {
	// Mode "llm" uses model-backed stages, "rules" the offline heuristics.
	Mode                string  `mapstructure:"mode" validate:"oneof=llm rules"`
	CompletionThreshold float64 `mapstructure:"completion_threshold" validate:"gte=0,lte=1"`
	TopK                int     `mapstructure:"top_k" validate:"gte=1,lte=100"`
	EmbedWorkers        int     `mapstructure:"embed_workers" validate:"gte=1"`
	Embedder            string  `mapstructure:"embedder" validate:"oneof=ollama hash"`
	// ChunkSize splits ingested documents longer than this many words. 0 disables.
	ChunkSize int `mapstructure:"chunk_size" validate:"gte=0"`
	// IngestSubject is the NATS subject document batches arrive on when
	// ledger.nats_url is set. Empty disables the subscription.
	IngestSubject string `mapstructure:"ingest_subject"`
}

type StoreConfig struct {
	Backend     string `mapstructure:"backend" validate:"oneof=qdrant pgvector memory"`
	QdrantAddr  string `mapstructure:"qdrant_addr"`
	Collection  string `mapstructure:"collection"`
	VectorDims  int    `mapstructure:"vector_dims" validate:"gte=1"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Table       string `mapstructure:"table"`
}

type LedgerConfig struct {
	Backend       string `mapstructure:"backend" validate:"oneof=file memory redis neo4j"`
	Dir           string `mapstructure:"dir"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
	Neo4jURL      string `mapstructure:"neo4j_url"`
	Neo4jUser     string `mapstructure:"neo4j_user"`
	Neo4jPassword string `mapstructure:"neo4j_password"`
	NATSURL       string `mapstructure:"nats_url"`
	NATSSubject   string `mapstructure:"nats_subject"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	File   string `mapstructure:"file"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

var defaults = map[string]any{
	"server.port":                   "8080",
	"server.cors_origin":            "*",
	"llm.base_url":                  "http://localhost:11434",
	"llm.router_model":              "llama3.1:8b",
	"llm.reformulator_model":        "llama3.1:8b",
	"llm.completion_model":          "llama3.1:8b",
	"llm.answer_model":              "llama3.1:8b",
	"llm.evaluator_model":           "llama3.1:8b",
	"llm.embedding_model":           "nomic-embed-text",
	"llm.timeout":                   "60s",
	"llm.rate_per_second":           10.0,
	"llm.burst":                     5,
	"llm.max_attempts":              2,
	"llm.breaker_threshold":         5,
	"llm.breaker_cooldown":          "30s",
	"pipeline.mode":                 "llm",
	"pipeline.completion_threshold": 0.7,
	"pipeline.top_k":                5,
	"pipeline.embed_workers":        4,
	"pipeline.embedder":             "ollama",
	"pipeline.chunk_size":           0,
	"pipeline.ingest_subject":       "legitrag.ingest",
	"store.backend":                 "qdrant",
	"store.qdrant_addr":             "localhost:6334",
	"store.collection":              "documents",
	"store.vector_dims":             768,
	"store.postgres_dsn":            "",
	"store.table":                   "documents",
	"ledger.backend":                "file",
	"ledger.dir":                    "logs",
	"ledger.redis_addr":             "localhost:6379",
	"ledger.redis_password":         "",
	"ledger.redis_db":               0,
	"ledger.redis_prefix":           "legitrag",
	"ledger.neo4j_url":              "bolt://localhost:7687",
	"ledger.neo4j_user":             "neo4j",
	"ledger.neo4j_password":         "",
	"ledger.nats_url":               "",
	"ledger.nats_subject":           "legitrag.ledger",
	"logging.level":                 "info",
	"logging.format":                "json",
	"logging.file":                  "",
	"tracing.enabled":               false,
	"tracing.endpoint":              "localhost:4318",
	"tracing.service_name":          "legit-rag",
}

// Load reads configuration. path may be empty; a missing .env is ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field requirements.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch {
	case cfg.Store.Backend == "pgvector" && cfg.Store.PostgresDSN == "":
		return errors.New("config: store.postgres_dsn is required for the pgvector backend")
	case cfg.Store.Backend == "qdrant" && cfg.Store.QdrantAddr == "":
		return errors.New("config: store.qdrant_addr is required for the qdrant backend")
	case cfg.Ledger.Backend == "file" && cfg.Ledger.Dir == "":
		return errors.New("config: ledger.dir is required for the file ledger")
	case cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "":
		return errors.New("config: tracing.endpoint is required when tracing is enabled")
	}
	return nil
}
