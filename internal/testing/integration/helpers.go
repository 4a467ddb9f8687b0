package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ferg-cod3s/fold/internal/embedding"
	"github.com/ferg-cod3s/fold/internal/eventbus"
	"github.com/ferg-cod3s/fold/internal/foldtree"
	"github.com/ferg-cod3s/fold/internal/indexer"
	"github.com/ferg-cod3s/fold/internal/jobqueue"
	"github.com/ferg-cod3s/fold/internal/llmprovider"
	"github.com/ferg-cod3s/fold/internal/memoryservice"
	"github.com/ferg-cod3s/fold/internal/search"
	"github.com/ferg-cod3s/fold/internal/store"
	"github.com/ferg-cod3s/fold/internal/vectorstore/sqlite"
	"github.com/ferg-cod3s/fold/internal/worker"
)

// Harness wires an in-memory instance of fold's core components (C1, C2,
// C4, C6, C8, C9, C11, C12, C13) the way cmd/fold/main.go wires the real
// ones, minus any LLM provider network calls.
type Harness struct {
	Store    *store.Store
	Vectors  *sqlite.Store
	Bus      *eventbus.Bus
	Embedder embedding.Embedder
	Memories *memoryservice.Service
	Pipeline *indexer.Pipeline
	Queue    *jobqueue.Queue
	Ranker   *search.Ranker
	Pool     *worker.Pool

	rootDir string
}

// fakeSummarizer stands in for llmprovider.Chain: it returns a fixed
// title/body/keywords completion so the pipeline can run without a real
// provider, the same substitution indexer's own pipeline_test.go makes.
type fakeSummarizer struct{}

func (fakeSummarizer) Complete(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error) {
	return &llmprovider.Response{
		Text: "indexed file\n\nsummarized by the integration harness's fake provider\n\nkeywords: fixture, test",
	}, nil
}

// noopLinker skips C10 entirely; Harness scenarios that want real linking
// behavior should exercise internal/linker's own package tests instead.
type noopLinker struct{}

func (noopLinker) Link(ctx context.Context, m store.Memory, vec []float32) ([]foldtree.RelatedEntry, error) {
	return nil, nil
}

// NewHarness builds a fresh in-memory Harness and a cleanup func that
// releases its resources (including the temp fixture directory).
func NewHarness() (*Harness, func(), error) {
	root, err := os.MkdirTemp("", "fold-integration-*")
	if err != nil {
		return nil, nil, fmt.Errorf("create fixture dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(root) }

	st, err := store.Open(":memory:")
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("open metadata store: %w", err)
	}

	vectors, err := sqlite.NewStore(":memory:")
	if err != nil {
		st.Close()
		cleanup()
		return nil, nil, fmt.Errorf("open vector store: %w", err)
	}

	bus := eventbus.New()
	embedder := embedding.NewMock(64)
	memories := memoryservice.New(st, vectors, bus)
	pipeline := indexer.NewPipeline(st, vectors, bus, memories, fakeSummarizer{}, embedder, noopLinker{})
	queue := jobqueue.New(st, bus)
	ranker := search.NewRanker(vectors, embedder, st)
	pool := worker.New(worker.Config{
		Store:       st,
		Queue:       queue,
		Pipeline:    pipeline,
		Bus:         bus,
		OwnerPrefix: "integration-harness",
		Concurrency: 1,
	})

	finalCleanup := func() {
		pool.Stop()
		vectors.Close()
		st.Close()
		cleanup()
	}

	return &Harness{
		Store:    st,
		Vectors:  vectors,
		Bus:      bus,
		Embedder: embedder,
		Memories: memories,
		Pipeline: pipeline,
		Queue:    queue,
		Ranker:   ranker,
		Pool:     pool,
		rootDir:  root,
	}, finalCleanup, nil
}

// WriteFixture writes a file under the harness's fixture root at relPath,
// creating parent directories as needed, and returns the absolute path.
func (h *Harness) WriteFixture(relPath, content string) (string, error) {
	abs := filepath.Join(h.rootDir, relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create fixture parent dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write fixture file: %w", err)
	}
	return abs, nil
}

// NewProject registers and returns a Project rooted at the harness's
// fixture directory.
func (h *Harness) NewProject(ctx context.Context, id, slug, name string) (store.Project, error) {
	proj := store.Project{ID: id, Slug: slug, Name: name, RootPath: h.rootDir}
	if err := h.Store.InsertProject(ctx, proj); err != nil {
		return store.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return proj, nil
}

func searchParamsDefault() search.SearchParams {
	return search.SearchParams{Limit: 10, StrengthWeight: 0.2, HalfLifeDays: 30}
}
