package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the docuquery API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Chat      ChatConfig      `yaml:"chat"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StoreConfig selects and configures the vector store backend.
type StoreConfig struct {
	Driver           string         `yaml:"driver"` // memory, redis, valkey, pgvector, milvus
	ReadinessTimeout int            `yaml:"readiness_timeout_sec"`
	Memory           MemoryConfig   `yaml:"memory"`
	Redis            RedisConfig    `yaml:"redis"`
	Pgvector         PgvectorConfig `yaml:"pgvector"`
	Milvus           MilvusConfig   `yaml:"milvus"`
}

// MemoryConfig holds embedded store settings.
type MemoryConfig struct {
	SnapshotPath string `yaml:"snapshot_path"` // "" disables persistence
}

// RedisConfig holds Redis/Valkey connection and index settings.
type RedisConfig struct {
	Addrs     []string `yaml:"addrs"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	DB        int      `yaml:"db"`
	KeyPrefix string   `yaml:"key_prefix"`
	HNSWM     int      `yaml:"hnsw_m"`
	HNSWEFC   int      `yaml:"hnsw_ef_construction"`
}

// PgvectorConfig holds PostgreSQL connection settings.
type PgvectorConfig struct {
	DSN string `yaml:"dsn"`
}

// MilvusConfig holds Milvus connection and index settings.
type MilvusConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	HNSWM    int    `yaml:"hnsw_m"`
	HNSWEFC  int    `yaml:"hnsw_ef_construction"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
}

// LLMConfig holds chat completion provider settings.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Pricing     PricingConfig `yaml:"pricing"`
}

// PricingConfig holds per-1K-token pricing for cost accounting.
type PricingConfig struct {
	PromptPer1K     float64 `yaml:"prompt_per_1k"`
	CompletionPer1K float64 `yaml:"completion_per_1k"`
}

// IngestConfig holds upload and chunking settings.
type IngestConfig struct {
	UploadDir    string   `yaml:"upload_dir"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	BatchSize    int      `yaml:"batch_size"`
	Extensions   []string `yaml:"extensions"`
}

// ChatConfig holds conversation settings.
type ChatConfig struct {
	Window int `yaml:"window"` // remembered turns per user
	TopK   int `yaml:"top_k"`  // retrieved chunks per question
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.ReadinessTimeout <= 0 {
		c.Store.ReadinessTimeout = 10
	}
	if c.Store.Redis.KeyPrefix == "" {
		c.Store.Redis.KeyPrefix = "docuquery:"
	}
	if c.Store.Redis.HNSWM <= 0 {
		c.Store.Redis.HNSWM = 32
	}
	if c.Store.Redis.HNSWEFC <= 0 {
		c.Store.Redis.HNSWEFC = 400
	}
	if c.Store.Milvus.HNSWM <= 0 {
		c.Store.Milvus.HNSWM = 32
	}
	if c.Store.Milvus.HNSWEFC <= 0 {
		c.Store.Milvus.HNSWEFC = 400
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.Ingest.UploadDir == "" {
		c.Ingest.UploadDir = "uploads"
	}
	if c.Ingest.ChunkSize <= 0 {
		c.Ingest.ChunkSize = 2000
	}
	if c.Ingest.ChunkOverlap <= 0 {
		c.Ingest.ChunkOverlap = 150
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 64
	}
	if len(c.Ingest.Extensions) == 0 {
		c.Ingest.Extensions = []string{".pdf", ".docx", ".txt", ".csv", ".html", ".htm"}
	}
	if c.Chat.Window <= 0 {
		c.Chat.Window = 10
	}
	if c.Chat.TopK <= 0 {
		c.Chat.TopK = 3
	}
}

var validDrivers = map[string]bool{
	"memory":   true,
	"redis":    true,
	"valkey":   true,
	"pgvector": true,
	"milvus":   true,
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !validDrivers[c.Store.Driver] {
		return fmt.Errorf("store.driver must be one of memory, redis, valkey, pgvector, milvus, got %q", c.Store.Driver)
	}
	switch c.Store.Driver {
	case "redis", "valkey":
		if len(c.Store.Redis.Addrs) == 0 {
			return fmt.Errorf("store.redis.addrs is required for driver %q", c.Store.Driver)
		}
	case "pgvector":
		if c.Store.Pgvector.DSN == "" {
			return fmt.Errorf("store.pgvector.dsn is required")
		}
	case "milvus":
		if c.Store.Milvus.Address == "" {
			return fmt.Errorf("store.milvus.address is required")
		}
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)",
			c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
