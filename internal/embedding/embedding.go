// Package embedding generates the dense vectors the indexer (C8) writes into
// the vector store: a pluggable Embedder interface, a provider registry so a project's
// configured embedding provider (openai, gemini, mock, ...) can be swapped
// without touching callers, and a deterministic hash fallback (see
// fallback.go) for when no provider is configured at all.
package embedding

import (
	"context"
)

// Vector is a dense embedding, one float32 per dimension.
type Vector []float32

// Embedding is one text's vector plus the model identifier that produced
// it, so a chunk's stored embedding can be traced back to the provider/model
// that generated it even after providers are reconfigured (spec.md §4.6).
type Embedding struct {
	Text   string
	Vector Vector
	Model  string
}

// Embedder turns text into vectors. Implementations cover the configured
// third-party providers (OpenAI, Gemini), the mock embedder used in tests,
// and the hash-based FallbackEmbedder.
type Embedder interface {
	// Embed generates an embedding for a single text input.
	Embed(ctx context.Context, text string) (*Embedding, error)

	// EmbedBatch generates embeddings for multiple texts in one round trip,
	// re-batching internally if the provider caps request size (spec.md
	// §6.4 MAX_BATCH_SIZE).
	EmbedBatch(ctx context.Context, texts []string) ([]*Embedding, error)

	// Dimensions returns the vector width this embedder produces. C8
	// rejects a vector whose width doesn't match the project's vector
	// collection.
	Dimensions() int

	// Model identifies the embedding model, stored alongside each vector.
	Model() string
}

// Provider is a factory that builds an Embedder from a project's stored
// provider configuration (credential, model name, ...).
type Provider interface {
	// Name returns the provider identifier matched against store.Provider.Name.
	Name() string

	// Create instantiates an embedder from the given configuration.
	Create(config map[string]interface{}) (Embedder, error)
}

// ProviderRegistry looks up an embedding Provider by name.
type ProviderRegistry interface {
	Register(provider Provider) error
	Get(name string) (Provider, error)
	List() []string
}
