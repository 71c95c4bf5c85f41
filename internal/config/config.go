// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, MULTISENSE_ prefix)
//  2. Config file (./config.yaml or /etc/multisense/config.yaml)
//  3. Default values
//
// Sensitive data (passwords, API keys) is never logged; MarshalJSON masks it.
// Validation uses sentinel errors so callers can match with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultChatModel is the default generation model.
	DefaultChatModel = "gemini-2.5-flash"

	// DefaultEmbedderModel outputs 3072 dimensions by default but supports
	// truncation to 768 via OutputDimensionality. The pgvector schema uses
	// 768; see vectorstore.Dimension.
	DefaultEmbedderModel = "gemini-embedding-001"
)

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" json:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       float64       `mapstructure:"rate_limit" json:"rate_limit"`  // requests per second per client
	RateBurst       int           `mapstructure:"rate_burst" json:"rate_burst"`
}

// RAGConfig holds chunking and retrieval parameters.
type RAGConfig struct {
	ChunkSize       int     `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap    int     `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	TopK            int     `mapstructure:"top_k" json:"top_k"`
	MinSimilarity   float32 `mapstructure:"min_similarity" json:"min_similarity"`
	MaxContextRunes int     `mapstructure:"max_context_runes" json:"max_context_runes"`
}

// MemoryConfig holds conversation memory bounds.
type MemoryConfig struct {
	MaxTurns int           `mapstructure:"max_turns" json:"max_turns"`
	TTL      time.Duration `mapstructure:"ttl" json:"ttl"`
}

// ObservabilityConfig holds OTLP trace export settings.
type ObservabilityConfig struct {
	Enabled      bool   `mapstructure:"enabled" json:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON. When
// adding new sensitive fields (passwords, API keys), update MarshalJSON.
type Config struct {
	// AI model configuration
	ChatModel     string `mapstructure:"chat_model" json:"chat_model"`
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	Server        ServerConfig        `mapstructure:"server" json:"server"`
	RAG           RAGConfig           `mapstructure:"rag" json:"rag"`
	Memory        MemoryConfig        `mapstructure:"memory" json:"memory"`
	Observability ObservabilityConfig `mapstructure:"observability" json:"observability"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/multisense")

	setDefaults(v)

	v.SetEnvPrefix("MULTISENSE")
	v.AutomaticEnv()
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{".", "/etc/multisense"})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a Config populated with default values only, bypassing
// files and the environment. Used by tests and by commands that do not need
// the full load path.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are hardcoded; Unmarshal cannot fail on them.
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("BUG: unmarshaling defaults: %v", err))
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// AI defaults
	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("embedder_model", DefaultEmbedderModel)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "multisense")
	v.SetDefault("postgres_password", "multisense_dev_password")
	v.SetDefault("postgres_db_name", "multisense")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)

	// RAG defaults
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.min_similarity", 0.0)
	v.SetDefault("rag.max_context_runes", 8000)

	// Memory defaults
	v.SetDefault("memory.max_turns", 20)
	v.SetDefault("memory.ttl", 24*time.Hour)

	// Observability defaults
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.otlp_endpoint", "localhost:4318")
	v.SetDefault("observability.service_name", "multisense-agent")
	v.SetDefault("observability.environment", "dev")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment variables that do not follow the
// MULTISENSE_ prefix convention.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("postgres_host", "MULTISENSE_POSTGRES_HOST")
	mustBind("postgres_port", "MULTISENSE_POSTGRES_PORT")
	mustBind("postgres_user", "MULTISENSE_POSTGRES_USER")
	mustBind("postgres_password", "MULTISENSE_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "MULTISENSE_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "MULTISENSE_POSTGRES_SSL_MODE")

	mustBind("chat_model", "MULTISENSE_CHAT_MODEL")
	mustBind("embedder_model", "MULTISENSE_EMBEDDER_MODEL")

	mustBind("server.addr", "MULTISENSE_SERVER_ADDR")
	mustBind("memory.max_turns", "MULTISENSE_MEMORY_MAX_TURNS")
	mustBind("memory.ttl", "MULTISENSE_MEMORY_TTL")
	mustBind("rag.top_k", "MULTISENSE_RAG_TOP_K")

	mustBind("observability.enabled", "MULTISENSE_OBSERVABILITY_ENABLED")
	mustBind("observability.otlp_endpoint", "MULTISENSE_OTLP_ENDPOINT")

	mustBind("log_level", "MULTISENSE_LOG_LEVEL")
	mustBind("log_json", "MULTISENSE_LOG_JSON")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// MarshalJSON masks sensitive fields so a Config can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = maskedValue
	}
	return json.Marshal(masked)
}
