package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := defaults()

	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
	assert.Equal(t, DefaultRootPath, cfg.Indexer.RootPath)
	assert.Equal(t, DefaultChunkSize, cfg.Indexer.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Indexer.ChunkOverlap)
	assert.Equal(t, DefaultIndexerConcurrency, cfg.Indexer.Concurrency)
	assert.Equal(t, DefaultEmbeddingDimensions, cfg.Embedding.Dimensions)
	assert.Equal(t, DefaultGitSourceMaxCommits, cfg.GitSource.MaxCommits)
	assert.Equal(t, DefaultWorkerConcurrency, cfg.Worker.Concurrency)
	assert.Equal(t, DefaultSearchLimit, cfg.Search.DefaultLimit)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.False(t, cfg.Observability.Metrics.Enabled)
	assert.False(t, cfg.Observability.Tracing.Enabled)
	assert.False(t, cfg.Observability.Sentry.Enabled)
	assert.False(t, cfg.CircuitCache.Enabled)
	assert.Equal(t, DefaultCircuitCacheAddr, cfg.CircuitCache.Addr)

	require.NoError(t, cfg.Validate())
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Setenv("FOLD_CONFIG_FILE", "")

	cfg, err := Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultDBPath, cfg.Database.Path)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FOLD_DB_PATH", "/tmp/custom.db")
	t.Setenv("FOLD_CHUNK_SIZE", "4000")
	t.Setenv("FOLD_CHUNK_OVERLAP", "400")
	t.Setenv("FOLD_WORKER_CONCURRENCY", "6")
	t.Setenv("FOLD_LOG_LEVEL", "debug")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.Database.Path)
	assert.Equal(t, 4000, cfg.Indexer.ChunkSize)
	assert.Equal(t, 400, cfg.Indexer.ChunkOverlap)
	assert.Equal(t, 6, cfg.Worker.Concurrency)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fold.yaml")
	content := `
database:
  path: /data/from-file.db
indexer:
  chunk_size: 3000
  chunk_overlap: 300
worker:
  concurrency: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("FOLD_CONFIG_FILE", path)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/data/from-file.db", cfg.Database.Path)
	assert.Equal(t, 3000, cfg.Indexer.ChunkSize)
	assert.Equal(t, 300, cfg.Indexer.ChunkOverlap)
	assert.Equal(t, 3, cfg.Worker.Concurrency)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fold.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  path: /data/from-file.db\n"), 0o644))
	t.Setenv("FOLD_CONFIG_FILE", path)
	t.Setenv("FOLD_DB_PATH", "/data/from-env.db")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/data/from-env.db", cfg.Database.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty db path", func(c *Config) { c.Database.Path = "" }, true},
		{"empty root path", func(c *Config) { c.Indexer.RootPath = "" }, true},
		{"zero chunk size", func(c *Config) { c.Indexer.ChunkSize = 0 }, true},
		{"negative chunk overlap", func(c *Config) { c.Indexer.ChunkOverlap = -1 }, true},
		{"overlap equals size", func(c *Config) { c.Indexer.ChunkOverlap = c.Indexer.ChunkSize }, true},
		{"zero indexer concurrency", func(c *Config) { c.Indexer.Concurrency = 0 }, true},
		{"zero embedding dimensions", func(c *Config) { c.Embedding.Dimensions = 0 }, true},
		{"zero worker concurrency", func(c *Config) { c.Worker.Concurrency = 0 }, true},
		{"strength weight too high", func(c *Config) { c.Search.DefaultStrengthWeight = 1.5 }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"invalid log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{
			"metrics enabled without port",
			func(c *Config) { c.Observability.Metrics.Enabled = true; c.Observability.Metrics.Port = 0 },
			true,
		},
		{
			"tracing enabled without endpoint",
			func(c *Config) { c.Observability.Tracing.Enabled = true; c.Observability.Tracing.Endpoint = "" },
			true,
		},
		{
			"sentry enabled without dsn",
			func(c *Config) { c.Observability.Sentry.Enabled = true; c.Observability.Sentry.DSN = "" },
			true,
		},
		{
			"gitsource enabled with zero max commits",
			func(c *Config) { c.GitSource.Enabled = true; c.GitSource.MaxCommits = 0 },
			true,
		},
		{
			"circuit cache enabled without addr",
			func(c *Config) { c.CircuitCache.Enabled = true; c.CircuitCache.Addr = "" },
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	assert.Equal(t, defaults(), Default())
}
