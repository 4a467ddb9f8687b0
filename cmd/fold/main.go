package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ferg-cod3s/fold/internal/circuitcache"
	"github.com/ferg-cod3s/fold/internal/config"
	"github.com/ferg-cod3s/fold/internal/embedding"
	"github.com/ferg-cod3s/fold/internal/eventbus"
	"github.com/ferg-cod3s/fold/internal/gitsource"
	"github.com/ferg-cod3s/fold/internal/indexer"
	"github.com/ferg-cod3s/fold/internal/jobqueue"
	"github.com/ferg-cod3s/fold/internal/linker"
	"github.com/ferg-cod3s/fold/internal/llmprovider"
	"github.com/ferg-cod3s/fold/internal/mcp"
	"github.com/ferg-cod3s/fold/internal/memoryservice"
	"github.com/ferg-cod3s/fold/internal/observability"
	"github.com/ferg-cod3s/fold/internal/search"
	"github.com/ferg-cod3s/fold/internal/store"
	"github.com/ferg-cod3s/fold/internal/vectorstore/sqlite"
	"github.com/ferg-cod3s/fold/internal/worker"
	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries JSON-RPC frames; every log line goes to stderr.
	logger := observability.NewLogger(observability.LoggerConfig{
		Level:         cfg.Logging.Level,
		Format:        cfg.Logging.Format,
		Output:        os.Stderr,
		AddSource:     true,
		SentryEnabled: cfg.Observability.Sentry.Enabled,
	})
	logger.Info("fold starting",
		"version", Version,
		"database", cfg.Database.Path,
		"metrics_enabled", cfg.Observability.Metrics.Enabled,
		"tracing_enabled", cfg.Observability.Tracing.Enabled,
	)

	var metrics *observability.MetricsCollector
	if cfg.Observability.Metrics.Enabled {
		metrics = observability.NewMetricsCollector("fold")
		go startMetricsServer(cfg.Observability.Metrics, logger)
	}

	if cfg.Observability.Tracing.Enabled {
		tracerProvider, err := observability.NewTracerProvider(observability.TracerConfig{
			ServiceName:    "fold",
			ServiceVersion: Version,
			Environment:    cfg.Observability.Sentry.Environment,
			OTLPEndpoint:   cfg.Observability.Tracing.Endpoint,
			SamplingRate:   cfg.Observability.Tracing.SampleRate,
			Enabled:        true,
		})
		if err != nil {
			logger.Error("failed to initialize tracing provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shutdown tracer provider", "error", err)
			}
		}()
		logger.Info("tracing enabled", "endpoint", cfg.Observability.Tracing.Endpoint)
	}

	if cfg.Observability.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Observability.Sentry.DSN,
			Environment:      cfg.Observability.Sentry.Environment,
			Release:          cfg.Observability.Sentry.Release,
			TracesSampleRate: cfg.Observability.Sentry.SampleRate,
			EnableTracing:    true,
		}); err != nil {
			logger.Error("failed to initialize sentry", "error", err)
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
		logger.Info("sentry enabled", "environment", cfg.Observability.Sentry.Environment)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open metadata store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	vectors, err := sqlite.NewStore(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open vector store", "error", err)
		os.Exit(1)
	}
	defer vectors.Close()

	if err := seedProviders(ctx, st, cfg); err != nil {
		logger.Error("failed to seed providers", "error", err)
		os.Exit(1)
	}

	bus := eventbus.New()
	llmChain := llmprovider.New(st)

	if cfg.CircuitCache.Enabled {
		cache := circuitcache.New(cfg.CircuitCache.Addr, cfg.CircuitCache.Password, cfg.CircuitCache.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := cache.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Error("failed to connect to circuit cache, falling back to per-process circuit state", "error", err)
		} else {
			llmChain.SetCircuitCache(cache)
			defer cache.Close()
			logger.Info("distributed circuit cache enabled", "addr", cfg.CircuitCache.Addr)
		}
	}

	embedder := embedding.NewFallback(st, cfg.Embedding.Dimensions)
	memories := memoryservice.New(st, vectors, bus)
	lk := linker.New(st, vectors, llmChain, bus)
	pipeline := indexer.NewPipeline(st, vectors, bus, memories, llmChain, embedder, lk)
	queue := jobqueue.New(st, bus)
	ranker := search.NewRanker(vectors, embedder, st)

	var gitSource *gitsource.Source
	if cfg.GitSource.Enabled {
		gitSource = gitsource.New(memories, embedder, gitsource.Config{
			MaxCommits:    cfg.GitSource.MaxCommits,
			GitHubEnabled: cfg.GitSource.GitHubEnabled,
			GitHubToken:   cfg.GitSource.GitHubToken,
		})
		logger.Info("git history ingestion enabled", "max_commits", cfg.GitSource.MaxCommits, "github_enabled", cfg.GitSource.GitHubEnabled)
	}

	errHandler := observability.NewErrorHandler(logger, metrics, cfg.Observability.Sentry.Enabled)

	pool := worker.New(worker.Config{
		Store:       st,
		Queue:       queue,
		Pipeline:    pipeline,
		GitSource:   gitSource,
		LLM:         llmChain,
		Embedder:    embedder,
		Bus:         bus,
		ErrHandler:  errHandler,
		OwnerPrefix: fmt.Sprintf("fold-%d", os.Getpid()),
		Concurrency: cfg.Worker.Concurrency,
	})
	pool.Start(ctx)
	logger.Info("worker pool started", "concurrency", cfg.Worker.Concurrency)

	server := mcp.NewServer(os.Stdin, os.Stdout, mcp.Deps{
		Store:    st,
		Memories: memories,
		Queue:    queue,
		Ranker:   ranker,
		Embedder: embedder,
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("mcp server stopped", "error", err)
		}
	}

	pool.Stop()
}

// seedProviders registers the LLM and embedding providers configured in
// cfg with the metadata store, once. Later starts find the kind already
// populated and leave the store's provider state (circuit breaker
// counters, usage stats) alone rather than re-inserting.
func seedProviders(ctx context.Context, s *store.Store, cfg *config.Config) error {
	existingLLM, err := s.ListProvidersByKind(ctx, store.ProviderLLM)
	if err != nil {
		return err
	}
	if len(existingLLM) == 0 {
		for _, p := range cfg.LLM.Providers {
			if _, err := s.InsertProvider(ctx, toStoreProvider(store.ProviderLLM, p)); err != nil {
				return err
			}
		}
	}

	existingEmbedding, err := s.ListProvidersByKind(ctx, store.ProviderEmbedding)
	if err != nil {
		return err
	}
	if len(existingEmbedding) == 0 {
		for _, p := range cfg.Embedding.Providers {
			if _, err := s.InsertProvider(ctx, toStoreProvider(store.ProviderEmbedding, p)); err != nil {
				return err
			}
		}
	}
	return nil
}

func toStoreProvider(kind store.ProviderKind, p config.ProviderSpec) store.Provider {
	return store.Provider{
		Kind:       kind,
		Name:       p.Name,
		Endpoint:   p.Endpoint,
		Model:      p.Model,
		Priority:   p.Priority,
		APIKey:     p.APIKey,
		OAuthToken: p.OAuthToken,
		Enabled:    p.Enabled,
	}
}

// startMetricsServer runs the Prometheus exposition endpoint on its own
// port, separate from the stdio MCP transport.
func startMetricsServer(cfg config.MetricsConfig, logger *observability.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"healthy","component":"metrics"}`)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Info("starting metrics server", "addr", addr, "path", cfg.Path)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}
