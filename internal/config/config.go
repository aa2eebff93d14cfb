package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Rerank    RerankConfig    `mapstructure:"rerank"`
	Server    ServerConfig    `mapstructure:"server"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Log       LogConfig       `mapstructure:"log"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
}

// LLMConfig configures the generative backend used for answer synthesis.
// The API key is shared with the remote embedding backend.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Requests per minute against the provider; 0 disables limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

type EmbeddingConfig struct {
	Model       string        `mapstructure:"model"`
	BatchSize   int           `mapstructure:"batch_size"`
	Concurrency int           `mapstructure:"concurrency"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Local ONNX model used when no API key is configured. On by default;
	// set false to require a remote provider.
	Local      bool   `mapstructure:"local"`
	LocalModel string `mapstructure:"local_model"`
	ModelDir   string `mapstructure:"model_dir"`
}

// VectorConfig selects the index backend: "memory", "qdrant" or "pgvector".
type VectorConfig struct {
	Backend     string `mapstructure:"backend"`
	IndexDir    string `mapstructure:"index_dir"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Collection  string `mapstructure:"collection"`
	Dimension   int    `mapstructure:"dimension"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	SearchK     int    `mapstructure:"search_k"`
}

// GraphConfig points at the Neo4j lineage store. An empty URI keeps lineage in memory.
type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type CacheConfig struct {
	Size        int           `mapstructure:"size"`
	DegradedTTL time.Duration `mapstructure:"degraded_ttl"`
}

type RerankConfig struct {
	Alpha float64 `mapstructure:"alpha"`
	TopK  int     `mapstructure:"top_k"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// AuditConfig enables the JSONL query audit log. An empty path disables it.
// Questions are masked for PII unless RedactPII is turned off.
type AuditConfig struct {
	Path         string `mapstructure:"path"`
	RedactPII    bool   `mapstructure:"redact_pii"`
	MaskingStyle string `mapstructure:"masking_style"`
}

// SecretsConfig configures how env:, file: and vault: credential references are resolved.
type SecretsConfig struct {
	Dir          string `mapstructure:"dir"`
	VaultAddress string `mapstructure:"vault_address"`
	VaultToken   string `mapstructure:"vault_token"`
	VaultMount   string `mapstructure:"vault_mount"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when no file or environment overrides exist.
func Default() *Config {
	v := newViper()
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// Keys without a meaningful default are still registered so that
	// AutomaticEnv picks them up during Unmarshal.
	for _, key := range []string{
		"llm.api_key", "llm.base_url", "vector.postgres_dsn",
		"graph.uri", "graph.username", "graph.password", "audit.path",
		"secrets.dir", "secrets.vault_address", "secrets.vault_token",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("tracing.enabled", false)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 512)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.requests_per_minute", 0)

	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 16)
	v.SetDefault("embedding.concurrency", 1)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.timeout", 60*time.Second)
	v.SetDefault("embedding.local", true)
	v.SetDefault("embedding.local_model", "sentence-transformers/all-MiniLM-L6-v2")
	v.SetDefault("embedding.model_dir", "models")

	v.SetDefault("vector.backend", "memory")
	v.SetDefault("vector.index_dir", "data/index")
	v.SetDefault("vector.host", "localhost")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "hr_policy")
	v.SetDefault("vector.dimension", 1536)
	v.SetDefault("vector.search_k", 20)

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "hrrag-ingestion")

	v.SetDefault("cache.size", 1000)
	v.SetDefault("cache.degraded_ttl", 30*time.Second)

	v.SetDefault("rerank.alpha", 0.6)
	v.SetDefault("rerank.top_k", 5)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.cors_origin", "*")

	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "hrrag")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("audit.redact_pii", true)
	v.SetDefault("audit.masking_style", "redact")

	v.SetDefault("secrets.vault_mount", "secret")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("HRRAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// legacyEnv maps environment variables the first deployments used onto config keys.
// They apply only when neither the HRRAG_* equivalent nor the config file sets the key.
var legacyEnv = map[string]string{
	"OPENAI_API_KEY":  "llm.api_key",
	"LLM_MODEL":       "llm.model",
	"EMBEDDING_MODEL": "embedding.model",
	"VAULT_ADDR":      "secrets.vault_address",
	"VAULT_TOKEN":     "secrets.vault_token",
}

func applyLegacyEnv(v *viper.Viper) {
	for env, key := range legacyEnv {
		prefixed := "HRRAG_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, set := os.LookupEnv(prefixed); set || v.InConfig(key) {
			continue
		}
		if val, ok := os.LookupEnv(env); ok && val != "" {
			v.Set(key, val)
		}
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty; answers fall back to excerpts", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}
	if c.LLM.APIKey == "" && !c.Embedding.Local {
		warnings = append(warnings, "no embedding backend: set llm.api_key or enable embedding.local")
	}
	if c.Rerank.Alpha < 0 || c.Rerank.Alpha > 1 {
		warnings = append(warnings, fmt.Sprintf("rerank alpha %.2f is outside [0, 1] and will be clamped", c.Rerank.Alpha))
	}
	if c.Cache.Size < 0 {
		warnings = append(warnings, fmt.Sprintf("cache size %d is negative; the default is used", c.Cache.Size))
	}
	switch c.Vector.Backend {
	case "", "memory", "qdrant":
	case "pgvector":
		if c.Vector.PostgresDSN == "" {
			warnings = append(warnings, "vector backend 'pgvector' requires vector.postgres_dsn")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown vector backend '%s'", c.Vector.Backend))
	}

	return warnings
}

// Load reads configuration from a .env file, the config file at path and the
// environment. A missing config file is not an error; defaults and the
// environment are enough to run.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env", "error", err)
	}

	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
			slog.Debug("config file not found, using defaults and environment", "path", path)
		}
	}
	applyLegacyEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	for _, warning := range cfg.Validate() {
		slog.Warn("config", "warning", warning)
	}

	return &cfg, nil
}
