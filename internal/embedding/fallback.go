package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"time"

	"github.com/ferg-cod3s/fold/internal/authtoken"
	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/store"
)

// MaxBatchSize is the largest batch any single embed request sends to a
// provider before re-chunking into multiple calls (spec.md §6.4
// "MAX_BATCH_SIZE=100").
const MaxBatchSize = 100

const (
	fallbackFailureThreshold = 3
	fallbackCircuitOpen      = 60 * time.Second
)

// FallbackEmbedder walks a priority-ordered list of configured embedding
// providers (stored in the metadata store), each with its own circuit
// breaker, and falls back to a deterministic hash embedding only when no
// provider is configured at all. If at least one provider is configured
// but every one fails, FallbackEmbedder returns a hard error rather than
// silently degrading to the hash fallback (spec.md §6.4 "hard error when
// providers configured but all fail").
type FallbackEmbedder struct {
	store      *store.Store
	clock      func() time.Time
	dimensions int
	buildFor   func(store.Provider) (Embedder, error)
}

// NewFallback creates a FallbackEmbedder backed by the metadata store's
// provider table.
func NewFallback(s *store.Store, hashDimensions int) *FallbackEmbedder {
	if hashDimensions <= 0 {
		hashDimensions = 384
	}
	return &FallbackEmbedder{
		store: s, clock: time.Now, dimensions: hashDimensions,
		buildFor: defaultEmbedderFor,
	}
}

// defaultEmbedderFor builds the embedder for one configured provider row.
// Anthropic has no public embeddings endpoint (spec.md §6.4 lists request
// shapes only for OpenAI and Gemini), so a provider row named "anthropic"
// is rejected here rather than silently degraded to a hash vector; §6.4 is
// explicit that a hard error beats a poisoned vector write.
func defaultEmbedderFor(p store.Provider) (Embedder, error) {
	cred, _ := p.Credential()
	switch p.Name {
	case "openai":
		return NewOpenAI(cred, p.Model, 0), nil
	case "gemini":
		return NewGemini(cred, p.Model, 0), nil
	default:
		return nil, ferrors.New(ferrors.Validation, "embedding.defaultEmbedderFor", "unknown embedding provider: "+p.Name)
	}
}

// Embed generates an embedding for a single text input.
func (f *FallbackEmbedder) Embed(ctx context.Context, text string) (*Embedding, error) {
	embs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// EmbedBatch walks the configured embedding providers in priority order.
func (f *FallbackEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	providers, err := f.store.ListProvidersByKind(ctx, store.ProviderEmbedding)
	if err != nil {
		return nil, err
	}

	configured := 0
	var lastErr error
	for _, p := range providers {
		if !p.Enabled || !p.HasCredential() {
			continue
		}
		configured++
		if f.circuitOpen(p) {
			continue
		}
		if cred, isOAuth := p.Credential(); isOAuth && authtoken.Expired(cred) {
			_ = f.store.RecordProviderFailure(ctx, p.ID, "oauth token expired")
			continue
		}

		embedder, err := f.buildFor(p)
		if err != nil {
			lastErr = err
			continue
		}

		embs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			lastErr = err
			_ = f.store.RecordProviderFailure(ctx, p.ID, err.Error())
			continue
		}
		_ = f.store.RecordProviderSuccess(ctx, p.ID)
		return embs, nil
	}

	if configured == 0 {
		return f.hashEmbedBatch(texts), nil
	}
	return nil, ferrors.Wrap(ferrors.ProviderExhausted, "embedding.EmbedBatch", "all configured embedding providers failed", lastErr)
}

// AllDown reports whether every configured embedding provider is
// currently circuit-open. Mirrors llmprovider.Chain.AllDown; the job
// worker (C12) uses it to detect an embedding outage and pause the
// enclosing job.
func (f *FallbackEmbedder) AllDown(ctx context.Context) (bool, error) {
	providers, err := f.store.ListProvidersByKind(ctx, store.ProviderEmbedding)
	if err != nil {
		return false, err
	}
	configured := 0
	for _, p := range providers {
		if !p.Enabled || !p.HasCredential() {
			continue
		}
		configured++
		if !f.circuitOpen(p) {
			return false, nil
		}
	}
	return configured > 0, nil
}

func (f *FallbackEmbedder) circuitOpen(p store.Provider) bool {
	if p.ConsecutiveErrs < fallbackFailureThreshold || p.LastErrorAt == nil {
		return false
	}
	return f.clock().Sub(*p.LastErrorAt) < fallbackCircuitOpen
}

// hashEmbedBatch produces the deterministic hash-based embedding used
// when no embedding provider is configured at all (spec.md §6.4).
func (f *FallbackEmbedder) hashEmbedBatch(texts []string) []*Embedding {
	out := make([]*Embedding, len(texts))
	for i, text := range texts {
		out[i] = &Embedding{Text: text, Vector: generateDeterministicVector(text, f.dimensions, "hash-fallback"), Model: "hash-fallback"}
	}
	return out
}

// Dimensions returns the vector dimensionality used by the hash fallback;
// a configured provider may return vectors of a different width.
func (f *FallbackEmbedder) Dimensions() int { return f.dimensions }

// Model identifies this as the fallback chain rather than one backend.
func (f *FallbackEmbedder) Model() string { return "fallback-chain" }

// generateDeterministicVector creates a reproducible unit vector from
// text and a namespace seed, grounded on MockEmbedder.generateVector's
// hash-to-float approach.
func generateDeterministicVector(text string, dimensions int, namespace string) Vector {
	hash := sha256.Sum256([]byte(namespace + ":" + text))
	vector := make(Vector, dimensions)
	for i := 0; i < dimensions; i++ {
		offset := (i * 4) % len(hash)
		seed := binary.BigEndian.Uint32(hash[offset:])
		seed64 := int64(seed)
		if seed64 > math.MaxInt32 {
			seed64 %= math.MaxInt32
		}
		vector[i] = float32(seed64) / float32(math.MaxInt32)
	}
	return normalize(vector)
}
