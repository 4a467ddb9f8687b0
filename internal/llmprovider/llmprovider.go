// Package llmprovider is Fold's LLM provider fallback chain (C5): a
// priority-ordered list of chat-completion backends (OpenAI, OpenRouter,
// Anthropic, Gemini) tried in order, each with its own retry-with-backoff
// and circuit breaker, so a single provider outage degrades gracefully
// instead of failing the whole summarization step.
package llmprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ferg-cod3s/fold/internal/authtoken"
	"github.com/ferg-cod3s/fold/internal/circuitcache"
	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/store"
)

// circuitOpenDuration is how long a provider is skipped after its third
// consecutive failure (spec.md §4.5 circuit breaker).
const circuitOpenDuration = 60 * time.Second

// failureThreshold is the number of consecutive failures that trips the
// circuit open.
const failureThreshold = 3

// maxRetriesPerProvider bounds the exponential backoff retry loop for a
// single provider before the chain moves to the next one.
const maxRetriesPerProvider = 3

// Request is a summarization or relationship-inference prompt.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
}

// Response is the provider's completion.
type Response struct {
	Text       string
	Model      string
	ProviderID string
}

// backend is the narrow interface each concrete provider client
// implements; Chain only needs to send a request and get text back.
type backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Backend is the exported form of backend, for packages that need to
// inject a fake provider client in tests without making real HTTP calls.
type Backend = backend

// Chain is the ordered fallback list of configured LLM providers.
type Chain struct {
	store    *store.Store
	clock    func() time.Time
	newHTTP  func(timeout time.Duration) *http.Client
	backendOverride func(store.Provider) (backend, error) // test seam
	cache    *circuitcache.Cache                          // nil disables cross-process circuit sharing
}

// SetCircuitCache attaches a distributed circuit cache. Once set, every
// Complete call also consults it before trying a provider, and updates it
// alongside the store-backed consecutive-failure count.
func (c *Chain) SetCircuitCache(cache *circuitcache.Cache) {
	c.cache = cache
}

// SetBackendOverride replaces every provider's backend with fn, bypassing
// the real HTTP dispatch in backendFor. Intended for tests.
func (c *Chain) SetBackendOverride(fn func(store.Provider) (Backend, error)) {
	c.backendOverride = fn
}

// New creates a Chain backed by the metadata store's provider table.
func New(s *store.Store) *Chain {
	return &Chain{
		store: s,
		clock: time.Now,
		newHTTP: func(timeout time.Duration) *http.Client {
			return &http.Client{Timeout: timeout}
		},
	}
}

// Complete walks the configured providers in priority order, skipping
// any whose circuit is open, retrying each with exponential backoff, and
// returning the first success. Returns ferrors.ErrProviderExhausted if
// every provider failed or none are configured with credentials.
func (c *Chain) Complete(ctx context.Context, req Request) (*Response, error) {
	providers, err := c.store.ListProvidersByKind(ctx, store.ProviderLLM)
	if err != nil {
		return nil, err
	}

	var lastErr error
	tried := 0
	for _, p := range providers {
		if !p.Enabled || !p.HasCredential() {
			continue
		}
		if c.circuitOpen(p) {
			continue
		}
		if c.cache != nil && c.cache.IsOpen(ctx, p.ID) {
			continue
		}
		if cred, isOAuth := p.Credential(); isOAuth && authtoken.Expired(cred) {
			_ = c.store.RecordProviderFailure(ctx, p.ID, "oauth token expired")
			continue
		}
		tried++

		backend, err := c.backendFor(p)
		if err != nil {
			lastErr = err
			continue
		}

		text, err := c.completeWithRetry(ctx, backend, req)
		if err != nil {
			lastErr = err
			_ = c.store.RecordProviderFailure(ctx, p.ID, err.Error())
			if c.cache != nil && p.ConsecutiveErrs+1 >= failureThreshold {
				_ = c.cache.MarkOpen(ctx, p.ID, circuitOpenDuration)
			}
			continue
		}

		_ = c.store.RecordProviderSuccess(ctx, p.ID)
		if c.cache != nil {
			_ = c.cache.Clear(ctx, p.ID)
		}
		return &Response{Text: text, Model: p.Model, ProviderID: p.ID}, nil
	}

	if tried == 0 {
		return nil, ferrors.New(ferrors.ProviderExhausted, "llmprovider.Complete", "no enabled provider with an open circuit and a credential")
	}
	return nil, ferrors.Wrap(ferrors.ProviderExhausted, "llmprovider.Complete", "all providers failed", lastErr)
}

// AllDown reports whether every configured LLM provider is currently
// circuit-open, i.e. there is no point attempting a call right now. The
// job worker (C12) uses this to detect a provider outage and pause the
// enclosing job rather than burning through per-file retries.
func (c *Chain) AllDown(ctx context.Context) (bool, error) {
	providers, err := c.store.ListProvidersByKind(ctx, store.ProviderLLM)
	if err != nil {
		return false, err
	}
	configured := 0
	for _, p := range providers {
		if !p.Enabled || !p.HasCredential() {
			continue
		}
		configured++
		if !c.circuitOpen(p) && !(c.cache != nil && c.cache.IsOpen(ctx, p.ID)) {
			return false, nil
		}
	}
	return configured > 0, nil
}

// circuitOpen reports whether p's circuit breaker is currently tripped:
// three or more consecutive failures and less than circuitOpenDuration
// elapsed since the last one (spec.md §4.5/§4.6 "single success resets").
func (c *Chain) circuitOpen(p store.Provider) bool {
	if p.ConsecutiveErrs < failureThreshold {
		return false
	}
	if p.LastErrorAt == nil {
		return false
	}
	return c.clock().Sub(*p.LastErrorAt) < circuitOpenDuration
}

// completeWithRetry retries a single provider with exponential backoff,
// grounded on the cenkalti/backoff/v5 retry loop the rest of the example
// pack uses for outbound HTTP calls. Only errors classified as transient by
// isRetriable are retried; a 400/401/403/404 or any other non-retriable
// failure stops the loop immediately and lets Chain.Complete move on to the
// next configured provider instead of burning the retry budget on a
// request that will never succeed.
func (c *Chain) completeWithRetry(ctx context.Context, b backend, req Request) (string, error) {
	return backoff.Retry(ctx, func() (string, error) {
		text, err := b.Complete(ctx, req)
		if err != nil {
			if isRetriable(err) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}
		return text, nil
	}, backoff.WithMaxTries(maxRetriesPerProvider), backoff.WithBackOff(backoff.NewExponentialBackOff()))
}

// isRetriable reports whether err warrants another backoff attempt: a
// rate-limit (429) or service-unavailable (503) response, or a
// timeout-classified network failure. Everything else — malformed
// requests, auth failures, other 4xx/5xx responses — is treated as
// permanent so the chain fails over to the next provider instead of
// retrying a request that will not succeed.
func isRetriable(err error) bool {
	var fe *ferrors.Error
	if errors.As(err, &fe) && fe.Kind == ferrors.Transient {
		return true
	}
	return isTimeout(err)
}

// isTimeout reports whether err represents a network or context timeout.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// backendFor constructs the concrete client for a configured provider row.
func (c *Chain) backendFor(p store.Provider) (backend, error) {
	if c.backendOverride != nil {
		return c.backendOverride(p)
	}
	cred, _ := p.Credential()
	client := c.newHTTP(30 * time.Second)

	switch p.Name {
	case "openai":
		return &openAIBackend{client: client, apiKey: cred, model: p.Model, endpoint: endpointOr(p.Endpoint, "https://api.openai.com/v1/chat/completions")}, nil
	case "openrouter":
		return &openAIBackend{client: client, apiKey: cred, model: p.Model, endpoint: endpointOr(p.Endpoint, "https://openrouter.ai/api/v1/chat/completions")}, nil
	case "anthropic":
		return &anthropicBackend{client: client, apiKey: cred, model: p.Model, endpoint: endpointOr(p.Endpoint, "https://api.anthropic.com/v1/messages")}, nil
	case "gemini":
		return &geminiBackend{client: client, apiKey: cred, model: p.Model, endpoint: endpointOr(p.Endpoint, "https://generativelanguage.googleapis.com/v1beta/models")}, nil
	default:
		return nil, ferrors.New(ferrors.Validation, "llmprovider.backendFor", fmt.Sprintf("unknown provider %q", p.Name))
	}
}

func endpointOr(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func doJSON(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return ferrors.Wrap(ferrors.Validation, "llmprovider.doJSON", "marshal request", err)
		}
		reader = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return ferrors.Wrap(ferrors.Validation, "llmprovider.doJSON", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return ferrors.Wrap(ferrors.Transient, "llmprovider.doJSON", "request timed out", err)
		}
		return ferrors.Wrap(ferrors.ProviderExhausted, "llmprovider.doJSON", "http request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusServiceUnavailable:
		return ferrors.New(ferrors.Transient, "llmprovider.doJSON", fmt.Sprintf("provider returned %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return ferrors.New(ferrors.ProviderExhausted, "llmprovider.doJSON", fmt.Sprintf("provider returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return ferrors.New(ferrors.Validation, "llmprovider.doJSON", fmt.Sprintf("provider returned %d", resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return ferrors.Wrap(ferrors.Transient, "llmprovider.doJSON", "decode response", err)
		}
	}
	return nil
}
