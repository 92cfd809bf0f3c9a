package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	cfg := Config{
		HTTP:  HTTPConfig{Port: 8080},
		Store: StoreConfig{Driver: "memory"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_UnknownDriver(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Driver = "cassandra"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
	expected := `store.driver must be one of memory, redis, valkey, pgvector, milvus, got "cassandra"`
	if err.Error() != expected {
		t.Errorf("unexpected error message:\ngot:  %q\nwant: %q", err.Error(), expected)
	}
}

func TestValidate_DriverRequirements(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"redis without addrs", func(c *Config) { c.Store.Driver = "redis" }, true},
		{"valkey without addrs", func(c *Config) { c.Store.Driver = "valkey" }, true},
		{"redis with addrs", func(c *Config) {
			c.Store.Driver = "redis"
			c.Store.Redis.Addrs = []string{"localhost:6379"}
		}, false},
		{"pgvector without dsn", func(c *Config) { c.Store.Driver = "pgvector" }, true},
		{"pgvector with dsn", func(c *Config) {
			c.Store.Driver = "pgvector"
			c.Store.Pgvector.DSN = "postgres://localhost/docuquery"
		}, false},
		{"milvus without address", func(c *Config) { c.Store.Driver = "milvus" }, true},
		{"milvus with address", func(c *Config) {
			c.Store.Driver = "milvus"
			c.Store.Milvus.Address = "localhost:19530"
		}, false},
		{"memory needs nothing", func(c *Config) { c.Store.Driver = "memory" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_OverlapMustBeSmallerThanChunkSize(t *testing.T) {
	cfg := validConfig()
	cfg.Ingest.ChunkSize = 100
	cfg.Ingest.ChunkOverlap = 100

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for overlap >= chunk size")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("expected driver memory, got %q", cfg.Store.Driver)
	}
	if cfg.Store.Redis.KeyPrefix != "docuquery:" {
		t.Errorf("expected KeyPrefix='docuquery:', got %q", cfg.Store.Redis.KeyPrefix)
	}
	if cfg.Store.Redis.HNSWM != 32 || cfg.Store.Redis.HNSWEFC != 400 {
		t.Errorf("unexpected HNSW defaults: m=%d efc=%d", cfg.Store.Redis.HNSWM, cfg.Store.Redis.HNSWEFC)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" || cfg.Embedding.Dimensions != 1536 {
		t.Errorf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Ingest.ChunkSize != 2000 || cfg.Ingest.ChunkOverlap != 150 {
		t.Errorf("unexpected chunking defaults: %+v", cfg.Ingest)
	}
	if len(cfg.Ingest.Extensions) != 6 {
		t.Errorf("unexpected extension allow-list: %v", cfg.Ingest.Extensions)
	}
	if cfg.Chat.Window != 10 || cfg.Chat.TopK != 3 {
		t.Errorf("unexpected chat defaults: %+v", cfg.Chat)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:   HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 120, ShutdownSec: 5},
		Store:  StoreConfig{Driver: "redis", Redis: RedisConfig{KeyPrefix: "custom:", HNSWM: 16}},
		Ingest: IngestConfig{ChunkSize: 500, ChunkOverlap: 50},
		Chat:   ChatConfig{Window: 4, TopK: 8},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Store.Driver != "redis" {
		t.Errorf("expected driver redis, got %q", cfg.Store.Driver)
	}
	if cfg.Store.Redis.KeyPrefix != "custom:" || cfg.Store.Redis.HNSWM != 16 {
		t.Errorf("redis settings overridden: %+v", cfg.Store.Redis)
	}
	if cfg.Ingest.ChunkSize != 500 || cfg.Ingest.ChunkOverlap != 50 {
		t.Errorf("chunking overridden: %+v", cfg.Ingest)
	}
	if cfg.Chat.Window != 4 || cfg.Chat.TopK != 8 {
		t.Errorf("chat settings overridden: %+v", cfg.Chat)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(cfgDir, 0o750); err != nil {
		t.Fatal(err)
	}
	raw := `
http:
  port: 8080
store:
  driver: memory
embedding:
  api_key: ${TEST_DOCUQUERY_KEY}
llm:
  model: ${TEST_DOCUQUERY_MODEL:-gpt-4o-mini}
`
	if err := os.WriteFile(filepath.Join(cfgDir, "unittest.yaml"), []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TEST_DOCUQUERY_KEY", "sk-test")
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("unittest")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("env var not expanded: %q", cfg.Embedding.APIKey)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("default not applied: %q", cfg.LLM.Model)
	}
}
