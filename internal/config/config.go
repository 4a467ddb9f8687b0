// Package config provides configuration management for Fold. It supports
// loading configuration from environment variables, a YAML/JSON file, and
// defaults, with precedence env > file > defaults.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ferg-cod3s/fold/internal/validation"
	"gopkg.in/yaml.v3"
)

// Config is Fold's complete process configuration.
type Config struct {
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	Indexer       IndexerConfig       `json:"indexer" yaml:"indexer"`
	Embedding     EmbeddingConfig     `json:"embedding" yaml:"embedding"`
	LLM           LLMConfig           `json:"llm" yaml:"llm"`
	GitSource     GitSourceConfig     `json:"gitsource" yaml:"gitsource"`
	Worker        WorkerConfig        `json:"worker" yaml:"worker"`
	CircuitCache  CircuitCacheConfig  `json:"circuit_cache" yaml:"circuit_cache"`
	Search        SearchConfig        `json:"search" yaml:"search"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// DatabaseConfig holds the metadata store's SQLite path (C1).
type DatabaseConfig struct {
	Path string `json:"path" yaml:"path"`
}

// IndexerConfig holds chunking and walk configuration (C7, C8).
type IndexerConfig struct {
	RootPath     string   `json:"root_path" yaml:"root_path"`
	ChunkSize    int      `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int      `json:"chunk_overlap" yaml:"chunk_overlap"`
	IncludeGlobs []string `json:"include_globs" yaml:"include_globs"`
	ExcludeGlobs []string `json:"exclude_globs" yaml:"exclude_globs"`
	Concurrency  int      `json:"concurrency" yaml:"concurrency"`
}

// EmbeddingConfig configures the embedding fallback chain (C6). Providers
// are loaded into store.Provider rows at startup from ProviderSpec
// entries; Config itself never holds API keys in cleartext at rest beyond
// this in-memory load step.
type EmbeddingConfig struct {
	Providers  []ProviderSpec `json:"providers" yaml:"providers"`
	Dimensions int            `json:"dimensions" yaml:"dimensions"`
}

// LLMConfig configures the LLM provider fallback chain (C5).
type LLMConfig struct {
	Providers []ProviderSpec `json:"providers" yaml:"providers"`
}

// ProviderSpec describes one LLM or embedding provider to register at
// startup. OAuthToken wins over APIKey when both are set, matching
// store.Provider's credential precedence.
type ProviderSpec struct {
	Name       string `json:"name" yaml:"name"`
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Model      string `json:"model" yaml:"model"`
	Priority   int    `json:"priority" yaml:"priority"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	OAuthToken string `json:"oauth_token" yaml:"oauth_token"`
	Enabled    bool   `json:"enabled" yaml:"enabled"`
}

// GitSourceConfig configures git-history ingestion and optional GitHub PR
// enrichment (spec.md Job.type=index_history, SPEC_FULL.md §10).
type GitSourceConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	MaxCommits    int    `json:"max_commits" yaml:"max_commits"`
	GitHubEnabled bool   `json:"github_enabled" yaml:"github_enabled"`
	GitHubToken   string `json:"github_token" yaml:"github_token"`
}

// WorkerConfig configures the job worker pool (C12).
type WorkerConfig struct {
	Concurrency         int           `json:"concurrency" yaml:"concurrency"`
	HealthCheckInterval time.Duration `json:"health_check_interval" yaml:"health_check_interval"`
	LeaseTimeout        time.Duration `json:"lease_timeout" yaml:"lease_timeout"`
}

// CircuitCacheConfig configures the optional Redis-backed distributed
// circuit-breaker cache shared by the LLM provider chain (C5) across worker
// processes (SPEC_FULL.md §10). Disabled by default; each process falls
// back to the store-backed consecutive-error count of a provider, which
// remains authoritative even when this cache is enabled.
type CircuitCacheConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
}

// SearchConfig holds default ranking parameters for C13, overridable
// per-call via the search MCP tool's arguments.
type SearchConfig struct {
	DefaultLimit          int     `json:"default_limit" yaml:"default_limit"`
	DefaultStrengthWeight float64 `json:"default_strength_weight" yaml:"default_strength_weight"`
	DefaultHalfLifeDays   float64 `json:"default_half_life_days" yaml:"default_half_life_days"`
}

// LoggingConfig holds structured-logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ObservabilityConfig holds metrics/tracing/error-monitoring configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Sentry  SentryConfig  `json:"sentry" yaml:"sentry"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Port    int    `json:"port" yaml:"port"`
	Path    string `json:"path" yaml:"path"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// SentryConfig holds Sentry error-monitoring configuration.
type SentryConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	DSN         string  `json:"dsn" yaml:"dsn"`
	Environment string  `json:"environment" yaml:"environment"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
	Release     string  `json:"release" yaml:"release"`
}

// Default values.
const (
	DefaultDBPath              = "./data/fold.db"
	DefaultRootPath            = "."
	DefaultChunkSize           = 2000
	DefaultChunkOverlap        = 200
	DefaultIndexerConcurrency  = 4
	DefaultEmbeddingDimensions = 768
	DefaultGitSourceMaxCommits = 500
	DefaultWorkerConcurrency   = 2
	DefaultHealthCheckInterval = 60 * time.Second
	DefaultLeaseTimeout        = 300 * time.Second
	DefaultCircuitCacheAddr    = "localhost:6379"
	DefaultSearchLimit         = 10
	DefaultStrengthWeight      = 0.3
	DefaultHalfLifeDays        = 30.0
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultMetricsEnabled      = false
	DefaultMetricsPort         = 9091
	DefaultMetricsPath         = "/metrics"
	DefaultTracingEnabled      = false
	DefaultTracingEndpoint     = "http://localhost:4318"
	DefaultSampleRate          = 0.1
	DefaultSentryEnabled       = false
	DefaultSentryDSN           = ""
	DefaultSentryEnv           = "development"
	DefaultSentrySampleRate    = 1.0
	DefaultSentryRelease       = "0.1.0"
)

// Valid values for validation.
var (
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"json", "text"}
)

// Load loads configuration from environment variables and an optional
// config file, applying them over the package defaults. Precedence:
// env vars > config file > defaults.
func Load(ctx context.Context) (*Config, error) {
	cfg := defaults()

	if configFile := os.Getenv("FOLD_CONFIG_FILE"); configFile != "" {
		validatedPath, err := validation.ValidateConfigPath(configFile)
		if err != nil {
			return nil, fmt.Errorf("config file path validation failed: %w", err)
		}

		fileCfg, err := loadFile(validatedPath)
		if err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		cfg = merge(cfg, fileCfg)
	}

	cfg = loadEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config populated entirely with package defaults.
func defaults() *Config {
	return &Config{
		Database: DatabaseConfig{Path: DefaultDBPath},
		Indexer: IndexerConfig{
			RootPath:    DefaultRootPath,
			ChunkSize:   DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			Concurrency: DefaultIndexerConcurrency,
		},
		Embedding: EmbeddingConfig{
			Dimensions: DefaultEmbeddingDimensions,
		},
		GitSource: GitSourceConfig{
			MaxCommits: DefaultGitSourceMaxCommits,
		},
		Worker: WorkerConfig{
			Concurrency:         DefaultWorkerConcurrency,
			HealthCheckInterval: DefaultHealthCheckInterval,
			LeaseTimeout:        DefaultLeaseTimeout,
		},
		CircuitCache: CircuitCacheConfig{
			Enabled: false,
			Addr:    DefaultCircuitCacheAddr,
		},
		Search: SearchConfig{
			DefaultLimit:          DefaultSearchLimit,
			DefaultStrengthWeight: DefaultStrengthWeight,
			DefaultHalfLifeDays:   DefaultHalfLifeDays,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: DefaultMetricsEnabled,
				Port:    DefaultMetricsPort,
				Path:    DefaultMetricsPath,
			},
			Tracing: TracingConfig{
				Enabled:    DefaultTracingEnabled,
				Endpoint:   DefaultTracingEndpoint,
				SampleRate: DefaultSampleRate,
			},
			Sentry: SentryConfig{
				Enabled:     DefaultSentryEnabled,
				DSN:         DefaultSentryDSN,
				Environment: DefaultSentryEnv,
				SampleRate:  DefaultSentrySampleRate,
				Release:     DefaultSentryRelease,
			},
		},
	}
}

// loadFile loads configuration from a YAML or JSON file.
func loadFile(path string) (*Config, error) {
	safePath := filepath.Clean(path)

	data, err := os.ReadFile(safePath)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	cfg := &Config{}
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}

	return cfg, nil
}

// loadEnv overrides cfg's fields from environment variables. Only
// non-empty/non-zero environment values take effect.
func loadEnv(cfg *Config) *Config {
	if dbPath := os.Getenv("FOLD_DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if rootPath := os.Getenv("FOLD_ROOT_PATH"); rootPath != "" {
		cfg.Indexer.RootPath = rootPath
	}
	if chunkSize := os.Getenv("FOLD_CHUNK_SIZE"); chunkSize != "" {
		if cs, err := strconv.Atoi(chunkSize); err == nil {
			cfg.Indexer.ChunkSize = cs
		}
	}
	if chunkOverlap := os.Getenv("FOLD_CHUNK_OVERLAP"); chunkOverlap != "" {
		if co, err := strconv.Atoi(chunkOverlap); err == nil {
			cfg.Indexer.ChunkOverlap = co
		}
	}
	if concurrency := os.Getenv("FOLD_INDEXER_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			cfg.Indexer.Concurrency = c
		}
	}

	if dimensions := os.Getenv("FOLD_EMBEDDING_DIMENSIONS"); dimensions != "" {
		if dim, err := strconv.Atoi(dimensions); err == nil {
			cfg.Embedding.Dimensions = dim
		}
	}

	if gitSourceEnabled := os.Getenv("FOLD_GITSOURCE_ENABLED"); gitSourceEnabled != "" {
		if enabled, err := strconv.ParseBool(gitSourceEnabled); err == nil {
			cfg.GitSource.Enabled = enabled
		}
	}
	if maxCommits := os.Getenv("FOLD_GITSOURCE_MAX_COMMITS"); maxCommits != "" {
		if mc, err := strconv.Atoi(maxCommits); err == nil {
			cfg.GitSource.MaxCommits = mc
		}
	}
	if githubEnabled := os.Getenv("FOLD_GITSOURCE_GITHUB_ENABLED"); githubEnabled != "" {
		if enabled, err := strconv.ParseBool(githubEnabled); err == nil {
			cfg.GitSource.GitHubEnabled = enabled
		}
	}
	if githubToken := os.Getenv("FOLD_GITSOURCE_GITHUB_TOKEN"); githubToken != "" {
		cfg.GitSource.GitHubToken = githubToken
	}

	if workerConcurrency := os.Getenv("FOLD_WORKER_CONCURRENCY"); workerConcurrency != "" {
		if wc, err := strconv.Atoi(workerConcurrency); err == nil {
			cfg.Worker.Concurrency = wc
		}
	}
	if healthCheckInterval := os.Getenv("FOLD_WORKER_HEALTH_CHECK_INTERVAL"); healthCheckInterval != "" {
		if d, err := time.ParseDuration(healthCheckInterval); err == nil {
			cfg.Worker.HealthCheckInterval = d
		}
	}
	if leaseTimeout := os.Getenv("FOLD_WORKER_LEASE_TIMEOUT"); leaseTimeout != "" {
		if d, err := time.ParseDuration(leaseTimeout); err == nil {
			cfg.Worker.LeaseTimeout = d
		}
	}

	if circuitCacheEnabled := os.Getenv("FOLD_CIRCUIT_CACHE_ENABLED"); circuitCacheEnabled != "" {
		if enabled, err := strconv.ParseBool(circuitCacheEnabled); err == nil {
			cfg.CircuitCache.Enabled = enabled
		}
	}
	if circuitCacheAddr := os.Getenv("FOLD_CIRCUIT_CACHE_ADDR"); circuitCacheAddr != "" {
		cfg.CircuitCache.Addr = circuitCacheAddr
	}
	if circuitCachePassword := os.Getenv("FOLD_CIRCUIT_CACHE_PASSWORD"); circuitCachePassword != "" {
		cfg.CircuitCache.Password = circuitCachePassword
	}
	if circuitCacheDB := os.Getenv("FOLD_CIRCUIT_CACHE_DB"); circuitCacheDB != "" {
		if db, err := strconv.Atoi(circuitCacheDB); err == nil {
			cfg.CircuitCache.DB = db
		}
	}

	if defaultLimit := os.Getenv("FOLD_SEARCH_DEFAULT_LIMIT"); defaultLimit != "" {
		if l, err := strconv.Atoi(defaultLimit); err == nil {
			cfg.Search.DefaultLimit = l
		}
	}
	if strengthWeight := os.Getenv("FOLD_SEARCH_STRENGTH_WEIGHT"); strengthWeight != "" {
		if w, err := strconv.ParseFloat(strengthWeight, 64); err == nil {
			cfg.Search.DefaultStrengthWeight = w
		}
	}
	if halfLifeDays := os.Getenv("FOLD_SEARCH_HALF_LIFE_DAYS"); halfLifeDays != "" {
		if h, err := strconv.ParseFloat(halfLifeDays, 64); err == nil {
			cfg.Search.DefaultHalfLifeDays = h
		}
	}

	if logLevel := os.Getenv("FOLD_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("FOLD_LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if metricsEnabled := os.Getenv("FOLD_METRICS_ENABLED"); metricsEnabled != "" {
		if enabled, err := strconv.ParseBool(metricsEnabled); err == nil {
			cfg.Observability.Metrics.Enabled = enabled
		}
	}
	if metricsPort := os.Getenv("FOLD_METRICS_PORT"); metricsPort != "" {
		if port, err := strconv.Atoi(metricsPort); err == nil {
			cfg.Observability.Metrics.Port = port
		}
	}
	if metricsPath := os.Getenv("FOLD_METRICS_PATH"); metricsPath != "" {
		cfg.Observability.Metrics.Path = metricsPath
	}

	if tracingEnabled := os.Getenv("FOLD_TRACING_ENABLED"); tracingEnabled != "" {
		if enabled, err := strconv.ParseBool(tracingEnabled); err == nil {
			cfg.Observability.Tracing.Enabled = enabled
		}
	}
	if tracingEndpoint := os.Getenv("FOLD_TRACING_ENDPOINT"); tracingEndpoint != "" {
		cfg.Observability.Tracing.Endpoint = tracingEndpoint
	}
	if sampleRate := os.Getenv("FOLD_TRACING_SAMPLE_RATE"); sampleRate != "" {
		if rate, err := strconv.ParseFloat(sampleRate, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = rate
		}
	}

	if sentryEnabled := os.Getenv("FOLD_SENTRY_ENABLED"); sentryEnabled != "" {
		if enabled, err := strconv.ParseBool(sentryEnabled); err == nil {
			cfg.Observability.Sentry.Enabled = enabled
		}
	}
	if sentryDSN := os.Getenv("FOLD_SENTRY_DSN"); sentryDSN != "" {
		cfg.Observability.Sentry.DSN = sentryDSN
	}
	if sentryEnv := os.Getenv("FOLD_SENTRY_ENVIRONMENT"); sentryEnv != "" {
		cfg.Observability.Sentry.Environment = sentryEnv
	}
	if sentrySampleRate := os.Getenv("FOLD_SENTRY_SAMPLE_RATE"); sentrySampleRate != "" {
		if rate, err := strconv.ParseFloat(sentrySampleRate, 64); err == nil {
			cfg.Observability.Sentry.SampleRate = rate
		}
	}
	if sentryRelease := os.Getenv("FOLD_SENTRY_RELEASE"); sentryRelease != "" {
		cfg.Observability.Sentry.Release = sentryRelease
	}

	return cfg
}

// merge merges two configs, preferring non-zero values from override.
func merge(base, override *Config) *Config {
	result := *base

	if override.Database.Path != "" {
		result.Database.Path = override.Database.Path
	}

	if override.Indexer.RootPath != "" {
		result.Indexer.RootPath = override.Indexer.RootPath
	}
	if override.Indexer.ChunkSize != 0 {
		result.Indexer.ChunkSize = override.Indexer.ChunkSize
	}
	if override.Indexer.ChunkOverlap != 0 {
		result.Indexer.ChunkOverlap = override.Indexer.ChunkOverlap
	}
	if override.Indexer.Concurrency != 0 {
		result.Indexer.Concurrency = override.Indexer.Concurrency
	}
	if len(override.Indexer.IncludeGlobs) > 0 {
		result.Indexer.IncludeGlobs = override.Indexer.IncludeGlobs
	}
	if len(override.Indexer.ExcludeGlobs) > 0 {
		result.Indexer.ExcludeGlobs = override.Indexer.ExcludeGlobs
	}

	if len(override.Embedding.Providers) > 0 {
		result.Embedding.Providers = override.Embedding.Providers
	}
	if override.Embedding.Dimensions != 0 {
		result.Embedding.Dimensions = override.Embedding.Dimensions
	}

	if len(override.LLM.Providers) > 0 {
		result.LLM.Providers = override.LLM.Providers
	}

	if override.GitSource.Enabled {
		result.GitSource.Enabled = override.GitSource.Enabled
	}
	if override.GitSource.MaxCommits != 0 {
		result.GitSource.MaxCommits = override.GitSource.MaxCommits
	}
	if override.GitSource.GitHubEnabled {
		result.GitSource.GitHubEnabled = override.GitSource.GitHubEnabled
	}
	if override.GitSource.GitHubToken != "" {
		result.GitSource.GitHubToken = override.GitSource.GitHubToken
	}

	if override.Worker.Concurrency != 0 {
		result.Worker.Concurrency = override.Worker.Concurrency
	}
	if override.Worker.HealthCheckInterval != 0 {
		result.Worker.HealthCheckInterval = override.Worker.HealthCheckInterval
	}
	if override.Worker.LeaseTimeout != 0 {
		result.Worker.LeaseTimeout = override.Worker.LeaseTimeout
	}

	if override.CircuitCache.Enabled {
		result.CircuitCache.Enabled = override.CircuitCache.Enabled
	}
	if override.CircuitCache.Addr != "" {
		result.CircuitCache.Addr = override.CircuitCache.Addr
	}
	if override.CircuitCache.Password != "" {
		result.CircuitCache.Password = override.CircuitCache.Password
	}
	if override.CircuitCache.DB != 0 {
		result.CircuitCache.DB = override.CircuitCache.DB
	}

	if override.Search.DefaultLimit != 0 {
		result.Search.DefaultLimit = override.Search.DefaultLimit
	}
	if override.Search.DefaultStrengthWeight != 0 {
		result.Search.DefaultStrengthWeight = override.Search.DefaultStrengthWeight
	}
	if override.Search.DefaultHalfLifeDays != 0 {
		result.Search.DefaultHalfLifeDays = override.Search.DefaultHalfLifeDays
	}

	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	if override.Observability.Metrics.Enabled != DefaultMetricsEnabled {
		result.Observability.Metrics.Enabled = override.Observability.Metrics.Enabled
	}
	if override.Observability.Metrics.Port != 0 {
		result.Observability.Metrics.Port = override.Observability.Metrics.Port
	}
	if override.Observability.Metrics.Path != "" {
		result.Observability.Metrics.Path = override.Observability.Metrics.Path
	}

	if override.Observability.Tracing.Enabled != DefaultTracingEnabled {
		result.Observability.Tracing.Enabled = override.Observability.Tracing.Enabled
	}
	if override.Observability.Tracing.Endpoint != "" {
		result.Observability.Tracing.Endpoint = override.Observability.Tracing.Endpoint
	}
	if override.Observability.Tracing.SampleRate != 0 {
		result.Observability.Tracing.SampleRate = override.Observability.Tracing.SampleRate
	}

	if override.Observability.Sentry.Enabled != DefaultSentryEnabled {
		result.Observability.Sentry.Enabled = override.Observability.Sentry.Enabled
	}
	if override.Observability.Sentry.DSN != "" {
		result.Observability.Sentry.DSN = override.Observability.Sentry.DSN
	}
	if override.Observability.Sentry.Environment != "" {
		result.Observability.Sentry.Environment = override.Observability.Sentry.Environment
	}
	if override.Observability.Sentry.SampleRate != 0 {
		result.Observability.Sentry.SampleRate = override.Observability.Sentry.SampleRate
	}
	if override.Observability.Sentry.Release != "" {
		result.Observability.Sentry.Release = override.Observability.Sentry.Release
	}

	return &result
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if c.Indexer.RootPath == "" {
		return fmt.Errorf("indexer root path cannot be empty")
	}
	if c.Indexer.ChunkSize < 1 {
		return fmt.Errorf("chunk size must be positive: %d", c.Indexer.ChunkSize)
	}
	if c.Indexer.ChunkOverlap < 0 {
		return fmt.Errorf("chunk overlap cannot be negative: %d", c.Indexer.ChunkOverlap)
	}
	if c.Indexer.ChunkOverlap >= c.Indexer.ChunkSize {
		return fmt.Errorf("chunk overlap (%d) must be less than chunk size (%d)",
			c.Indexer.ChunkOverlap, c.Indexer.ChunkSize)
	}
	if c.Indexer.Concurrency < 1 {
		return fmt.Errorf("indexer concurrency must be positive: %d", c.Indexer.Concurrency)
	}

	if c.Embedding.Dimensions < 1 {
		return fmt.Errorf("embedding dimensions must be positive: %d", c.Embedding.Dimensions)
	}

	if c.GitSource.Enabled && c.GitSource.MaxCommits < 1 {
		return fmt.Errorf("gitsource max_commits must be positive when enabled: %d", c.GitSource.MaxCommits)
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker concurrency must be positive: %d", c.Worker.Concurrency)
	}

	if c.CircuitCache.Enabled && c.CircuitCache.Addr == "" {
		return fmt.Errorf("circuit cache addr cannot be empty when enabled")
	}

	if c.Search.DefaultStrengthWeight < 0 || c.Search.DefaultStrengthWeight > 1 {
		return fmt.Errorf("search default strength weight must be between 0 and 1: %f", c.Search.DefaultStrengthWeight)
	}

	if !contains(ValidLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: %v)", c.Logging.Level, ValidLogLevels)
	}
	if !contains(ValidLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}

	if c.Observability.Metrics.Enabled {
		if c.Observability.Metrics.Port < 1 || c.Observability.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d (must be 1-65535)", c.Observability.Metrics.Port)
		}
		if c.Observability.Metrics.Path == "" {
			return fmt.Errorf("metrics path cannot be empty when metrics enabled")
		}
	}

	if c.Observability.Tracing.Enabled {
		if c.Observability.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing endpoint cannot be empty when tracing enabled")
		}
		if c.Observability.Tracing.SampleRate < 0 || c.Observability.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing sample rate must be between 0 and 1: %f", c.Observability.Tracing.SampleRate)
		}
	}

	if c.Observability.Sentry.Enabled {
		if c.Observability.Sentry.DSN == "" {
			return fmt.Errorf("sentry DSN cannot be empty when sentry enabled")
		}
		if c.Observability.Sentry.SampleRate < 0 || c.Observability.Sentry.SampleRate > 1 {
			return fmt.Errorf("sentry sample rate must be between 0 and 1: %f", c.Observability.Sentry.SampleRate)
		}
	}

	return nil
}

// contains checks if a slice contains a string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// Default returns a default configuration, for tests and documentation.
func Default() *Config {
	return defaults()
}
