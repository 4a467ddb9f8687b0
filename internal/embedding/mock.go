package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ferg-cod3s/fold/internal/ferrors"
)

// MockEmbedder hashes text into a deterministic unit vector. It stands in
// for a real provider in tests and local development so the rest of the
// pipeline (chunking, C8 persistence, C13 search) can run without network
// credentials.
type MockEmbedder struct {
	dimensions int
	model      string
}

// NewMock creates a mock embedder that produces vectors of the given width.
func NewMock(dimensions int) *MockEmbedder {
	return &MockEmbedder{
		dimensions: dimensions,
		model:      fmt.Sprintf("mock-%d", dimensions),
	}
}

// Embed generates a deterministic embedding from the text's hash.
func (m *MockEmbedder) Embed(ctx context.Context, text string) (*Embedding, error) {
	if text == "" {
		return nil, ferrors.New(ferrors.Validation, "embedding.Mock.Embed", "cannot embed empty text")
	}

	return &Embedding{
		Text:   text,
		Vector: m.generateVector(text),
		Model:  m.model,
	}, nil
}

// EmbedBatch embeds each text independently; the mock embedder has no
// network round trip to amortize across a batch.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error) {
	embeddings := make([]*Embedding, len(texts))

	for i, text := range texts {
		emb, err := m.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text at index %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return embeddings, nil
}

// Dimensions returns the configured vector width.
func (m *MockEmbedder) Dimensions() int {
	return m.dimensions
}

// Model returns the "mock-<dimensions>" identifier.
func (m *MockEmbedder) Model() string {
	return m.model
}

// generateVector hashes text with SHA256 and spreads the digest across
// dimensions to produce a reproducible, roughly-uniform unit vector,
// grounded on fallback.go's generateDeterministicVector (which namespaces
// the same hash-to-float approach for the no-provider-configured fallback).
func (m *MockEmbedder) generateVector(text string) Vector {
	hash := sha256.Sum256([]byte(text))

	vector := make(Vector, m.dimensions)
	for i := 0; i < m.dimensions; i++ {
		offset := (i * 4) % len(hash)
		seed := binary.BigEndian.Uint32(hash[offset:])

		seed64 := int64(seed)
		if seed64 > math.MaxInt32 {
			seed64 = seed64 % math.MaxInt32
		}
		vector[i] = float32(seed64) / float32(math.MaxInt32)
	}

	return normalize(vector)
}

// normalize scales a vector to unit length, leaving the zero vector as is.
func normalize(v Vector) Vector {
	var sumSquares float32
	for _, val := range v {
		sumSquares += val * val
	}

	if sumSquares == 0 {
		return v
	}

	magnitude := float32(math.Sqrt(float64(sumSquares)))

	normalized := make(Vector, len(v))
	for i, val := range v {
		normalized[i] = val / magnitude
	}

	return normalized
}

// MockProvider builds MockEmbedders from a project's provider config, so
// "mock" can be selected as an embedding provider the same way "openai" or
// "gemini" are.
type MockProvider struct{}

// Name identifies this provider as "mock".
func (p *MockProvider) Name() string {
	return "mock"
}

// Create builds a MockEmbedder, reading an optional "dimensions" key
// (default 384) from config.
func (p *MockProvider) Create(config map[string]interface{}) (Embedder, error) {
	dimensions := 384

	if dim, ok := config["dimensions"].(int); ok {
		dimensions = dim
	} else if dim, ok := config["dimensions"].(float64); ok {
		dimensions = int(dim)
	}

	if dimensions <= 0 {
		return nil, ferrors.New(ferrors.Validation, "embedding.MockProvider.Create", fmt.Sprintf("dimensions must be positive, got %d", dimensions))
	}

	return NewMock(dimensions), nil
}
