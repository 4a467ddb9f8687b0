// Package memoryservice implements C9, the single entry point through
// which every memory mutation flows. It is responsible for the three-store
// write ordering spec.md §4.9 requires: the metadata store (C1, source of
// truth) is written first, then the fold tree (C3), then the vector store
// (C2) last, since both C3 and C2 are reconstructible derivatives of C1 and
// a failure partway through should never leave C1 pointing at state the
// other two don't have yet. Every successful Add, Update, Delete and
// DestroyProject publishes an event on the bus (C4) so the job worker and
// any MCP subscribers observe it; UpdateLinks publishes none.
package memoryservice

import (
	"context"
	"time"

	"github.com/ferg-cod3s/fold/internal/embedding"
	"github.com/ferg-cod3s/fold/internal/eventbus"
	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/foldtree"
	"github.com/ferg-cod3s/fold/internal/idgen"
	"github.com/ferg-cod3s/fold/internal/store"
	"github.com/ferg-cod3s/fold/internal/vectorstore"
)

// Service is the C9 memory service.
type Service struct {
	store   *store.Store
	trees   *treeRegistry
	vectors vectorstore.VectorStore
	bus     *eventbus.Bus
}

// New creates a Service. vectors may be nil when a project has no
// embedding configured yet (spec.md §4.6 "vector store is optional until
// an embedding provider is configured").
func New(s *store.Store, vectors vectorstore.VectorStore, bus *eventbus.Bus) *Service {
	return &Service{store: s, trees: newTreeRegistry(), vectors: vectors, bus: bus}
}

// treeRegistry lazily opens one foldtree.Tree per project root, since
// every memory operation needs its project's tree and projects rarely
// change root paths mid-process.
type treeRegistry struct {
	byRoot map[string]*foldtree.Tree
}

func newTreeRegistry() *treeRegistry { return &treeRegistry{byRoot: map[string]*foldtree.Tree{}} }

func (r *treeRegistry) treeFor(rootPath string) *foldtree.Tree {
	if t, ok := r.byRoot[rootPath]; ok {
		return t
	}
	t := foldtree.New(rootPath)
	r.byRoot[rootPath] = t
	return t
}

// AddInput carries everything needed to create or replace a memory.
type AddInput struct {
	Project      store.Project
	Kind         store.MemoryKind
	Source       store.MemorySource
	Title        string
	Author       string
	Keywords     []string
	Tags         []string
	Context      string
	FilePath     string
	Language     string
	StartLine    int
	EndLine      int
	Body         string
	ContentHash  string
	OriginalDate *time.Time
	// Related is resolved to Related entries by the caller (typically the
	// linker, C10); the memory service only persists what it is given.
	Related []foldtree.RelatedEntry
	// Embedder, when non-nil, produces the memory's dense vector for the
	// vector store. Nil means a plain metadata/fold-tree write with no
	// vector-store entry.
	Embedder embedding.Embedder
}

// Add creates a new memory, or replaces an existing one with the same
// deterministic id (spec.md §4.9 "re-indexing a file upserts its memory").
// File-sourced memories get a deterministic id derived from the project
// slug and path so repeated indexing runs converge on the same row;
// agent-sourced memories get a fresh opaque id each time.
func (s *Service) Add(ctx context.Context, in AddInput) (*store.Memory, error) {
	id := idgen.New()
	if in.Source == store.SourceFile || in.Source == store.SourceGit {
		id = idgen.DeterministicMemoryID(in.Project.Slug, in.FilePath)
	}

	now := time.Now().UTC()
	m := store.Memory{
		ID: id, ProjectID: in.Project.ID, Kind: in.Kind, Source: in.Source,
		Title: in.Title, Author: in.Author, Keywords: in.Keywords, Tags: in.Tags,
		Context: in.Context, FilePath: in.FilePath, Language: in.Language,
		StartLine: in.StartLine, EndLine: in.EndLine, Body: in.Body,
		ContentHash: in.ContentHash, OriginalDate: in.OriginalDate,
		CreatedAt: now, UpdatedAt: now,
	}

	if err := s.store.UpsertMemory(ctx, m); err != nil {
		return nil, err
	}

	tree := s.trees.treeFor(in.Project.RootPath)
	if err := tree.Write(m, in.Related); err != nil {
		return nil, err
	}

	if in.Embedder != nil && s.vectors != nil {
		if err := s.upsertVector(ctx, in.Project.Slug, m, in.Embedder); err != nil {
			return nil, err
		}
	}

	s.publish(eventbus.KindMemoryCreated, in.Project.ID, m)
	return &m, nil
}

func (s *Service) upsertVector(ctx context.Context, projectSlug string, m store.Memory, embedder embedding.Embedder) error {
	emb, err := embedder.Embed(ctx, m.Title+"\n\n"+m.Body)
	if err != nil {
		return err
	}
	collection := vectorstore.CollectionName(projectSlug)
	if err := s.vectors.EnsureCollection(ctx, collection, embedder.Dimensions()); err != nil {
		return err
	}
	doc := vectorstore.Document{
		ID:         m.ID,
		Collection: collection,
		Content:    m.Body,
		Vector:     emb.Vector,
		Metadata: map[string]interface{}{
			"type":       "memory",
			"title":      m.Title,
			"project_id": m.ProjectID,
			"kind":       string(m.Kind),
			"file_path":  m.FilePath,
			"language":   m.Language,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	return s.vectors.Upsert(ctx, doc)
}

// Update mutates an existing memory's fields in place, re-writing all three
// stores. Callers that only change relationships should use UpdateLinks
// instead, which skips the vector-store re-embed.
func (s *Service) Update(ctx context.Context, m store.Memory, related []foldtree.RelatedEntry, embedder embedding.Embedder) (*store.Memory, error) {
	m.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateMemory(ctx, m); err != nil {
		return nil, err
	}

	proj, err := s.store.GetProject(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}
	tree := s.trees.treeFor(proj.RootPath)
	if err := tree.Write(m, related); err != nil {
		return nil, err
	}

	if embedder != nil && s.vectors != nil {
		if err := s.upsertVector(ctx, proj.Slug, m, embedder); err != nil {
			return nil, err
		}
	}

	s.publish(eventbus.KindMemoryUpdated, m.ProjectID, m)
	return &m, nil
}

// UpdateLinks rewrites only a memory's fold-tree "Related" footer, used by
// the linker (C10) after inferring new relationships. It does not touch
// the metadata store row or the vector store.
func (s *Service) UpdateLinks(ctx context.Context, projectRootPath, memoryID string, related []foldtree.RelatedEntry) error {
	tree := s.trees.treeFor(projectRootPath)
	return tree.UpdateMemoryLinks(memoryID, related)
}

// Get retrieves a memory by id and records a retrieval touch for the decay
// ranker (C13).
func (s *Service) Get(ctx context.Context, id string) (*store.Memory, error) {
	m, err := s.store.GetMemory(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = s.store.TouchRetrieval(ctx, []string{id})
	return m, nil
}

// Delete removes a memory from all three stores. Order matches Add/Update:
// the metadata store row is the authoritative record of deletion, so it
// goes first; the two derivatives are then cleaned up best-effort.
func (s *Service) Delete(ctx context.Context, projectRootPath, memoryID string) error {
	m, err := s.store.GetMemory(ctx, memoryID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteMemory(ctx, memoryID); err != nil {
		return err
	}

	tree := s.trees.treeFor(projectRootPath)
	if err := tree.Delete(memoryID); err != nil {
		return err
	}

	if s.vectors != nil {
		if err := s.vectors.Delete(ctx, memoryID); err != nil {
			if kind, ok := ferrors.KindOf(err); !ok || kind != ferrors.NotFound {
				return err
			}
		}
	}

	s.publish(eventbus.KindMemoryDeleted, m.ProjectID, memoryID)
	return nil
}

// DestroyProject removes a project and everything derived from it: the
// metadata store row (which cascades to its memories, chunks, links, and
// jobs via foreign keys) and its vector store collection (spec.md §3
// Project "Destroyed" invariant: "cascades to ... the corresponding
// vector collection"). The metadata delete goes first, matching Add/
// Update/Delete's ordering, since it is the authoritative record that the
// project is gone even if the vector-store cleanup below fails.
func (s *Service) DestroyProject(ctx context.Context, project store.Project) error {
	if err := s.store.DeleteProject(ctx, project.ID); err != nil {
		return err
	}

	if s.vectors != nil {
		if err := s.vectors.DeleteCollection(ctx, vectorstore.CollectionName(project.Slug)); err != nil {
			return err
		}
	}

	s.publish(eventbus.KindMemoryDeleted, project.ID, project.ID)
	return nil
}

func (s *Service) publish(kind eventbus.Kind, projectID string, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Kind: kind, ProjectID: projectID, Payload: payload, At: time.Now().UTC()})
}
