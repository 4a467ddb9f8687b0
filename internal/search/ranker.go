package search

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/ferg-cod3s/fold/internal/embedding"
	"github.com/ferg-cod3s/fold/internal/store"
	"github.com/ferg-cod3s/fold/internal/vectorstore"
)

// overfetchFactor is M in spec.md §4.13's "k = limit × M" over-fetch rule.
const overfetchFactor = 3

// SearchParams configures one C13 search call.
type SearchParams struct {
	Limit           int
	MemoryType      string  // optional store.MemoryKind filter
	IncludeRelated  bool
	StrengthWeight  float64 // in [0,1]; 0 = pure relevance, 1 = pure decay strength
	HalfLifeDays    float64 // > 0
}

// ScoredMemory is one ranked search hit, hydrated from the metadata store.
// With IncludeRelated, MatchedChunks holds up to three of the memory's chunks
// in file order; they are not limited to the chunks that matched the query.
type ScoredMemory struct {
	Memory       store.Memory
	Relevance    float64 // raw vector/rollup score before decay blending
	Strength     float64 // decay-weighted recency/frequency score
	Final        float64 // blended score used for ranking
	MatchedChunks []store.Chunk
}

// Ranker is C13: decay-weighted semantic search over the vector store,
// hydrated from the metadata store.
type Ranker struct {
	vectors  vectorstore.VectorStore
	embedder embedding.Embedder
	store    *store.Store
	clock    func() time.Time
}

// NewRanker creates a Ranker.
func NewRanker(vectors vectorstore.VectorStore, embedder embedding.Embedder, s *store.Store) *Ranker {
	return &Ranker{vectors: vectors, embedder: embedder, store: s, clock: time.Now}
}

// Search implements spec.md §4.13's full algorithm: embed the query,
// over-fetch from the vector store, roll up chunk hits to their parent
// memory, blend relevance with a recency/frequency decay score, sort,
// hydrate, and fire-and-forget a retrieval touch on the returned memories.
func (r *Ranker) Search(ctx context.Context, projectID, query string, params SearchParams) ([]ScoredMemory, error) {
	if params.Limit <= 0 {
		params.Limit = 10
	}
	if params.HalfLifeDays <= 0 {
		params.HalfLifeDays = 30
	}

	proj, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	filters := map[string]interface{}{"project_id": projectID}
	if params.MemoryType != "" {
		filters["kind"] = params.MemoryType
	}

	hits, err := r.vectors.SearchVector(ctx, emb.Vector, vectorstore.SearchOptions{
		Collection: vectorstore.CollectionName(proj.Slug),
		Limit:      params.Limit * overfetchFactor,
		Filters:    filters,
	})
	if err != nil {
		return nil, err
	}

	rolled := rollup(hits)

	now := r.clock()
	scored := make([]ScoredMemory, 0, len(rolled))
	for memoryID, group := range rolled {
		m, err := r.store.GetMemory(ctx, memoryID)
		if err != nil {
			continue // derivative store ahead of metadata store; skip rather than fail the whole search
		}

		strength := decayStrength(now, m, params.HalfLifeDays)
		final := (1-params.StrengthWeight)*group.relevance + params.StrengthWeight*strength

		scored = append(scored, ScoredMemory{
			Memory: *m, Relevance: group.relevance, Strength: strength, Final: final,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Final != scored[j].Final {
			return scored[i].Final > scored[j].Final
		}
		if !scored[i].Memory.UpdatedAt.Equal(scored[j].Memory.UpdatedAt) {
			return scored[i].Memory.UpdatedAt.After(scored[j].Memory.UpdatedAt)
		}
		return scored[i].Memory.ID < scored[j].Memory.ID
	})

	if len(scored) > params.Limit {
		scored = scored[:params.Limit]
	}

	if params.IncludeRelated {
		r.attachChunks(ctx, scored)
	}

	r.touchRetrieval(ctx, scored)
	return scored, nil
}

type rolledGroup struct {
	relevance float64
}

// rollup groups chunk hits by parent_memory_id, contributing the maximum
// chunk score plus a log(1+group_size) tie-break bonus; memory-level hits
// compete on their own score directly (spec.md §4.13 step 3).
func rollup(hits []vectorstore.SearchResult) map[string]rolledGroup {
	groups := map[string][]float64{}
	for _, h := range hits {
		docType, _ := h.Document.Metadata["type"].(string)
		if docType == "chunk" {
			parentID, _ := h.Document.Metadata["parent_memory_id"].(string)
			if parentID == "" {
				continue
			}
			groups[parentID] = append(groups[parentID], float64(h.Score))
		} else {
			groups[h.Document.ID] = append(groups[h.Document.ID], float64(h.Score))
		}
	}

	out := make(map[string]rolledGroup, len(groups))
	for id, scores := range groups {
		max := scores[0]
		for _, s := range scores[1:] {
			if s > max {
				max = s
			}
		}
		out[id] = rolledGroup{relevance: max + math.Log(1+float64(len(scores)))*0.01}
	}
	return out
}

// decayStrength implements spec.md §4.13 step 4: half recency, half
// frequency. saturating(n) = n / (n + 10) caps the frequency term so a
// heavily-retrieved memory can't dominate purely on volume.
func decayStrength(now time.Time, m *store.Memory, halfLifeDays float64) float64 {
	ageDays := now.Sub(m.UpdatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := 0.5 * math.Exp(-math.Ln2*ageDays/halfLifeDays)
	frequency := 0.5 * saturating(float64(m.RetrievalCount))
	return recency + frequency
}

func saturating(n float64) float64 {
	return n / (n + 10)
}

// attachChunks hydrates the first three of each result's chunks, ordered by
// start line, for display (spec.md §4.13 step 6). Which chunks matched the
// query is not taken into account.
func (r *Ranker) attachChunks(ctx context.Context, scored []ScoredMemory) {
	const maxChunksPerResult = 3
	for i := range scored {
		chunks, err := r.store.ListChunksForMemory(ctx, scored[i].Memory.ID)
		if err != nil {
			continue
		}
		if len(chunks) > maxChunksPerResult {
			chunks = chunks[:maxChunksPerResult]
		}
		scored[i].MatchedChunks = chunks
	}
}

// touchRetrieval bumps retrieval_count/last_accessed for the returned
// memories; spec.md §4.13 step 7 calls this a fire-and-forget side effect,
// so a failure here must never fail the search itself.
func (r *Ranker) touchRetrieval(ctx context.Context, scored []ScoredMemory) {
	if len(scored) == 0 {
		return
	}
	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.Memory.ID
	}
	go func() {
		_ = r.store.TouchRetrieval(context.Background(), ids)
	}()
}
