package llmprovider

import (
	"context"
	"testing"
	"time"

	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	text  string
	err   error
	calls *int // counts Complete attempts when non-nil
}

func (f *fakeBackend) Complete(ctx context.Context, req Request) (string, error) {
	if f.calls != nil {
		*f.calls++
	}
	return f.text, f.err
}

func newTestChain(t *testing.T) (*Chain, *store.Store) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func TestCompleteFallsBackToSecondProvider(t *testing.T) {
	chain, s := newTestChain(t)
	ctx := context.Background()

	primary, err := s.InsertProvider(ctx, store.Provider{Kind: store.ProviderLLM, Name: "openai", APIKey: "k1", Priority: 0, Enabled: true})
	require.NoError(t, err)
	secondary, err := s.InsertProvider(ctx, store.Provider{Kind: store.ProviderLLM, Name: "anthropic", APIKey: "k2", Priority: 1, Enabled: true})
	require.NoError(t, err)

	chain.backendOverride = func(p store.Provider) (backend, error) {
		if p.ID == primary.ID {
			return &fakeBackend{err: ferrors.New(ferrors.Transient, "test", "boom")}, nil
		}
		return &fakeBackend{text: "ok from secondary"}, nil
	}

	resp, err := chain.Complete(ctx, Request{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok from secondary", resp.Text)
	assert.Equal(t, secondary.ID, resp.ProviderID)
}

func TestCompleteReturnsProviderExhaustedWhenAllFail(t *testing.T) {
	chain, s := newTestChain(t)
	ctx := context.Background()
	_, err := s.InsertProvider(ctx, store.Provider{Kind: store.ProviderLLM, Name: "openai", APIKey: "k1", Enabled: true})
	require.NoError(t, err)

	chain.backendOverride = func(p store.Provider) (backend, error) {
		return &fakeBackend{err: ferrors.New(ferrors.Transient, "test", "boom")}, nil
	}

	_, err = chain.Complete(ctx, Request{UserPrompt: "hi"})
	assert.ErrorIs(t, err, ferrors.ErrProviderExhausted)
}

func TestCircuitOpensAfterThreeFailuresAndSkipsProvider(t *testing.T) {
	chain, s := newTestChain(t)
	ctx := context.Background()

	p, err := s.InsertProvider(ctx, store.Provider{Kind: store.ProviderLLM, Name: "openai", APIKey: "k1", Enabled: true})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordProviderFailure(ctx, p.ID, "boom"))
	}

	calls := 0
	chain.backendOverride = func(p store.Provider) (backend, error) {
		calls++
		return &fakeBackend{text: "should not be called"}, nil
	}

	_, err = chain.Complete(ctx, Request{UserPrompt: "hi"})
	assert.ErrorIs(t, err, ferrors.ErrProviderExhausted)
	assert.Equal(t, 0, calls, "circuit-open provider must not be invoked")
}

func TestCircuitClosesAfterTimeoutElapses(t *testing.T) {
	chain, s := newTestChain(t)
	ctx := context.Background()

	p, err := s.InsertProvider(ctx, store.Provider{Kind: store.ProviderLLM, Name: "openai", APIKey: "k1", Enabled: true})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordProviderFailure(ctx, p.ID, "boom"))
	}

	future := time.Now().Add(2 * time.Minute)
	chain.clock = func() time.Time { return future }
	chain.backendOverride = func(p store.Provider) (backend, error) {
		return &fakeBackend{text: "recovered"}, nil
	}

	resp, err := chain.Complete(ctx, Request{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Text)
}

func TestCompleteDoesNotRetryValidationErrors(t *testing.T) {
	chain, s := newTestChain(t)
	ctx := context.Background()
	_, err := s.InsertProvider(ctx, store.Provider{Kind: store.ProviderLLM, Name: "openai", APIKey: "k1", Enabled: true})
	require.NoError(t, err)

	calls := 0
	chain.backendOverride = func(p store.Provider) (backend, error) {
		return &fakeBackend{err: ferrors.New(ferrors.Validation, "test", "bad request"), calls: &calls}, nil
	}

	_, err = chain.Complete(ctx, Request{UserPrompt: "hi"})
	assert.ErrorIs(t, err, ferrors.ErrProviderExhausted)
	assert.Equal(t, 1, calls, "a validation failure must not be retried with backoff")
}

func TestIsRetriable(t *testing.T) {
	assert.True(t, isRetriable(ferrors.New(ferrors.Transient, "test", "rate limited")))
	assert.False(t, isRetriable(ferrors.New(ferrors.Validation, "test", "bad request")))
	assert.False(t, isRetriable(ferrors.New(ferrors.ProviderExhausted, "test", "internal error")))
}
