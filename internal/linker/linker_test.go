package linker

import (
	"context"
	"testing"
	"time"

	"github.com/ferg-cod3s/fold/internal/embedding"
	"github.com/ferg-cod3s/fold/internal/eventbus"
	"github.com/ferg-cod3s/fold/internal/llmprovider"
	"github.com/ferg-cod3s/fold/internal/store"
	"github.com/ferg-cod3s/fold/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVectorStore struct {
	results []vectorstore.SearchResult
}

func (f *fakeVectorStore) CreateCollection(ctx context.Context, name string, dimensions int) error { return nil }
func (f *fakeVectorStore) EnsureCollection(ctx context.Context, name string, dimensions int) error { return nil }
func (f *fakeVectorStore) DeleteCollection(ctx context.Context, name string) error                 { return nil }
func (f *fakeVectorStore) Upsert(ctx context.Context, doc vectorstore.Document) error      { return nil }
func (f *fakeVectorStore) UpsertBatch(ctx context.Context, docs []vectorstore.Document) error {
	return nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeVectorStore) Get(ctx context.Context, id string) (*vectorstore.Document, error) {
	return nil, nil
}
func (f *fakeVectorStore) SearchVector(ctx context.Context, vector embedding.Vector, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	return f.results, nil
}
func (f *fakeVectorStore) SearchBM25(ctx context.Context, query string, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) SearchHybrid(ctx context.Context, query string, vector embedding.Vector, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) Count(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeVectorStore) Close() error                             { return nil }

type fakeLLMBackend struct{ text string }

func (f *fakeLLMBackend) Complete(ctx context.Context, req llmprovider.Request) (string, error) {
	return f.text, nil
}

func TestLinkPersistsHighConfidenceProposals(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.InsertProject(ctx, store.Project{ID: "proj-1", Slug: "acme", Name: "Acme"}))
	_, err = s.InsertProvider(ctx, store.Provider{Kind: store.ProviderLLM, Name: "openai", APIKey: "k", Enabled: true})
	require.NoError(t, err)

	vs := &fakeVectorStore{results: []vectorstore.SearchResult{
		{Document: vectorstore.Document{ID: "mem-2", Metadata: map[string]interface{}{"title": "session handler"}}, Score: 0.9},
	}}

	chain := llmprovider.New(s)
	// Route the chain's single configured provider through a canned backend
	// so the test never makes a network call.
	chain.SetBackendOverride(func(store.Provider) (llmprovider.Backend, error) {
		return &fakeLLMBackend{text: `{"target_id": "mem-2", "type": "modifies", "confidence": 0.9}`}, nil
	})

	l := New(s, vs, chain, eventbus.New())

	m := store.Memory{ID: "mem-1", ProjectID: "proj-1", Title: "auth handler", Body: "handles auth", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	related, err := l.Link(ctx, m, embedding.Vector{0.1, 0.2, 0.3})
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, "mem-2", related[0].TargetID)
	assert.Equal(t, store.LinkModifies, related[0].Type)

	links, err := s.ListLinksForMemory(ctx, "mem-1")
	require.NoError(t, err)
	require.Len(t, links, 1)
}

func TestLinkDropsProposalsBelowConfidenceThreshold(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	require.NoError(t, s.InsertProject(ctx, store.Project{ID: "proj-1", Slug: "acme", Name: "Acme"}))
	_, err = s.InsertProvider(ctx, store.Provider{Kind: store.ProviderLLM, Name: "openai", APIKey: "k", Enabled: true})
	require.NoError(t, err)

	vs := &fakeVectorStore{results: []vectorstore.SearchResult{
		{Document: vectorstore.Document{ID: "mem-2"}, Score: 0.5},
	}}
	chain := llmprovider.New(s)
	chain.SetBackendOverride(func(store.Provider) (llmprovider.Backend, error) {
		return &fakeLLMBackend{text: `{"target_id": "mem-2", "type": "related", "confidence": 0.2}`}, nil
	})

	l := New(s, vs, chain, eventbus.New())
	m := store.Memory{ID: "mem-1", ProjectID: "proj-1", Title: "x", Body: "y"}
	related, err := l.Link(ctx, m, embedding.Vector{0.1})
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestLinkNoOpWhenVectorStoreNil(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	l := New(s, nil, llmprovider.New(s), eventbus.New())
	related, err := l.Link(context.Background(), store.Memory{ID: "mem-1"}, embedding.Vector{0.1})
	require.NoError(t, err)
	assert.Nil(t, related)
}
