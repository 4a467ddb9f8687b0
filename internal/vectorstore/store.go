// Package vectorstore provides storage abstractions for vectors and metadata with hybrid search.
package vectorstore

import (
	"context"
	"time"
	
	"github.com/ferg-cod3s/fold/internal/embedding"
)

// Document represents a stored chunk with its vector embedding.
type Document struct {
	ID         string                 // Unique document identifier
	Collection string                 // Owning collection (empty is the default, ungrouped collection)
	Content    string                 // Original text content
	Vector     embedding.Vector       // Dense embedding vector
	Metadata   map[string]interface{} // Arbitrary metadata (file path, language, etc.)
	CreatedAt  time.Time              // When the document was stored
	UpdatedAt  time.Time              // Last update timestamp
}

// SearchResult represents a single search result with relevance score.
type SearchResult struct {
	Document Document // The matched document
	Score    float32  // Relevance score (higher is better)
	Method   string   // Search method used ("bm25", "vector", "hybrid")
}

// SearchOptions configures search behavior.
type SearchOptions struct {
	Collection string                 // Restrict the search to one collection; empty searches the default collection
	Limit      int                    // Maximum number of results
	Offset     int                    // Results to skip before Limit is applied
	Threshold  float32                // Minimum score threshold
	Filters    map[string]interface{} // Metadata filters (e.g., language="go")
	Rerank     bool                   // Apply reranking to results
}

// CollectionPrefix namespaces every project's collection name, so a store
// shared by several callers can tell fold's collections apart from
// anything else using the same backing database.
const CollectionPrefix = "fold_"

// CollectionName returns the collection name for a project slug
// (spec.md §4.2/§8's "{prefix}{slug}" per-project vector collection).
func CollectionName(slug string) string {
	return CollectionPrefix + slug
}

// VectorStore provides hybrid search over stored documents, partitioned
// into named collections (spec.md §4.2: one collection per project).
type VectorStore interface {
	// CreateCollection creates a collection sized for vectors of the given
	// dimensionality. Creating a collection that already exists with a
	// different dimensionality drops and recreates it (spec.md §8
	// "recreate on embedding-dimension mismatch"); same dimensionality is
	// a no-op.
	CreateCollection(ctx context.Context, name string, dimensions int) error

	// EnsureCollection is CreateCollection's idempotent form: it creates
	// the collection if absent, recreates it on a dimension mismatch, and
	// otherwise does nothing. Callers that don't know whether a project's
	// collection already exists should call this instead of CreateCollection.
	EnsureCollection(ctx context.Context, name string, dimensions int) error

	// DeleteCollection removes a collection and every document in it.
	// Deleting a collection that does not exist is not an error.
	DeleteCollection(ctx context.Context, name string) error

	// Upsert inserts or updates a document with its vector.
	Upsert(ctx context.Context, doc Document) error

	// UpsertBatch efficiently inserts or updates multiple documents.
	UpsertBatch(ctx context.Context, docs []Document) error

	// Delete removes a document by ID.
	Delete(ctx context.Context, id string) error

	// Get retrieves a document by ID.
	Get(ctx context.Context, id string) (*Document, error)

	// SearchVector performs dense vector similarity search.
	SearchVector(ctx context.Context, vector embedding.Vector, opts SearchOptions) ([]SearchResult, error)

	// SearchBM25 performs sparse keyword search using BM25.
	SearchBM25(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)

	// SearchHybrid combines vector and BM25 search with fusion.
	SearchHybrid(ctx context.Context, query string, vector embedding.Vector, opts SearchOptions) ([]SearchResult, error)

	// Count returns the total number of documents.
	Count(ctx context.Context) (int64, error)

	// Close releases resources.
	Close() error
}

// IndexStats provides statistics about the vector store.
type IndexStats struct {
	TotalDocuments int64             // Total documents indexed
	TotalChunks    int64             // Total chunks (same as documents for now)
	Languages      map[string]int64  // Document count per language
	LastIndexedAt  time.Time         // Timestamp of last indexing operation
	IndexSize      int64             // Storage size in bytes
}

// StatsProvider provides statistics about stored data.
type StatsProvider interface {
	// Stats returns current index statistics.
	Stats(ctx context.Context) (*IndexStats, error)
}

