package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ferg-cod3s/fold/internal/embedding"
	"github.com/ferg-cod3s/fold/internal/eventbus"
	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/foldtree"
	"github.com/ferg-cod3s/fold/internal/idgen"
	"github.com/ferg-cod3s/fold/internal/llmprovider"
	"github.com/ferg-cod3s/fold/internal/memoryservice"
	"github.com/ferg-cod3s/fold/internal/store"
	"github.com/ferg-cod3s/fold/internal/vectorstore"
)

// MaxFileSize bounds which files index_project will consider (spec.md
// §4.8 "skip files above MAX_FILE_SIZE=100_000 bytes").
const MaxFileSize = 100_000

// DefaultConcurrency is how many files the pipeline processes at once
// (spec.md §4.8 "bounded concurrency N (default 4)").
const DefaultConcurrency = 4

// Summarizer is the narrow slice of llmprovider.Chain the pipeline needs,
// so tests can substitute a fake without a real provider chain.
type Summarizer interface {
	Complete(ctx context.Context, req llmprovider.Request) (*llmprovider.Response, error)
}

// Linker proposes relationships for a newly added memory; satisfied by
// *linker.Linker. Declared locally to avoid an import cycle (linker
// depends on llmprovider and store, not on indexer).
type Linker interface {
	Link(ctx context.Context, m store.Memory, memoryVector []float32) ([]foldtree.RelatedEntry, error)
}

// Pipeline is C8: it brings a project's derived state (C1/C2/C3) into
// agreement with its filesystem by walking the tree, summarizing each
// file via the LLM (C5), handing the result to the memory service (C9),
// invoking the linker (C10), and optionally chunking+embedding+upserting
// into the vector store (C2) through C6/C7.
type Pipeline struct {
	walker     Walker
	chunkers   []Chunker
	llm        Summarizer
	embedder   embedding.Embedder
	memories   *memoryservice.Service
	store      *store.Store
	vectors    vectorstore.VectorStore
	linker     Linker
	bus        *eventbus.Bus
	hashCache  map[string]string // (projectID + "/" + path) -> content hash, last-indexed
	hashCacheMu sync.Mutex
}

// NewPipeline wires C8 from its already-constructed dependencies.
func NewPipeline(s *store.Store, vectors vectorstore.VectorStore, bus *eventbus.Bus, memories *memoryservice.Service, llm Summarizer, embedder embedding.Embedder, lk Linker) *Pipeline {
	return &Pipeline{
		walker:    NewFileWalker(MaxFileSize),
		chunkers:  []Chunker{NewCodeChunker(2000, 200), NewMarkdownChunker(2000)},
		llm:       llm,
		embedder:  embedder,
		memories:  memories,
		store:     s,
		vectors:   vectors,
		linker:    lk,
		bus:       bus,
		hashCache: map[string]string{},
	}
}

// IndexProjectResult summarizes one index_project run.
type IndexProjectResult struct {
	Total    int
	Indexed  int
	Skipped  int
	Errors   int
	Duration time.Duration
}

// ProgressFunc is invoked once per file as index_project makes progress.
type ProgressFunc func(completed, total int, path string)

// IndexProject enumerates files under project.RootPath and runs the
// per-file pipeline with bounded concurrency (spec.md §4.8).
func (p *Pipeline) IndexProject(ctx context.Context, project store.Project, author string, progress ProgressFunc) (IndexProjectResult, error) {
	start := time.Now()

	var paths []string
	err := p.walker.Walk(ctx, project.RootPath, project.ExcludeGlobs, func(path string, info os.FileInfo) error {
		if info.IsDir() || info.Size() == 0 || info.Size() > MaxFileSize {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return IndexProjectResult{}, err
	}

	result := IndexProjectResult{Total: len(paths)}
	var mu sync.Mutex
	sem := make(chan struct{}, DefaultConcurrency)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()

			content, err := os.ReadFile(path)
			if err != nil {
				mu.Lock()
				result.Errors++
				mu.Unlock()
				return
			}

			rel, _ := filepath.Rel(project.RootPath, path)
			outcome, err := p.indexSingleFileLocked(ctx, project, rel, string(content), author)

			mu.Lock()
			switch {
			case err != nil:
				result.Errors++
			case outcome == outcomeSkipped:
				result.Skipped++
			default:
				result.Indexed++
			}
			mu.Unlock()

			if progress != nil {
				progress(i+1, len(paths), rel)
			}
		}(i, path)
	}
	wg.Wait()

	result.Duration = time.Since(start)
	return result, nil
}

type fileOutcome int

const (
	outcomeIndexed fileOutcome = iota
	outcomeSkipped
)

// indexSingleFileLocked serialises hash-cache access; the heavier work
// (LLM call, store writes) still runs concurrently across files.
func (p *Pipeline) indexSingleFileLocked(ctx context.Context, project store.Project, relPath, content, author string) (fileOutcome, error) {
	contentHash := generateContentHash(content)
	cacheKey := project.ID + "/" + relPath

	p.hashCacheMu.Lock()
	if cached, ok := p.hashCache[cacheKey]; ok && cached == contentHash {
		p.hashCacheMu.Unlock()
		return outcomeSkipped, nil
	}
	p.hashCacheMu.Unlock()

	if _, err := p.IndexSingleFile(ctx, project, relPath, content, author); err != nil {
		return outcomeIndexed, err
	}

	p.hashCacheMu.Lock()
	p.hashCache[cacheKey] = contentHash
	p.hashCacheMu.Unlock()
	return outcomeIndexed, nil
}

// IndexSingleFile runs the per-file pipeline for one file outside of a
// full index_project pass — the webhook path (spec.md §4.8
// "index_single_file(project, path, content, author) -> Memory").
func (p *Pipeline) IndexSingleFile(ctx context.Context, project store.Project, relPath, content, author string) (*store.Memory, error) {
	if p.llm == nil {
		return nil, ferrors.New(ferrors.ProviderExhausted, "indexer.IndexSingleFile", "no LLM provider available")
	}

	language := detectLanguage(relPath)
	summary, err := p.summarize(ctx, content, relPath, language)
	if err != nil {
		return nil, err
	}

	memoryID := idgen.DeterministicMemoryID(project.Slug, relPath)

	var vec embedding.Vector
	if p.embedder != nil {
		if emb, err := p.embedder.Embed(ctx, summary.Title+"\n\n"+summary.Body); err == nil {
			vec = emb.Vector
		}
	}

	m, err := p.memories.Add(ctx, memoryservice.AddInput{
		Project: project, Kind: store.KindCodebase, Source: store.SourceFile,
		Title: summary.Title, Author: author, Keywords: summary.Keywords, Tags: summary.Tags,
		FilePath: relPath, Language: language, Body: summary.Body, ContentHash: generateContentHash(content),
		Embedder: p.embedder,
	})
	if err != nil {
		return nil, err
	}
	_ = memoryID // memories.Add recomputes the same id internally for file sources

	if p.linker != nil && len(vec) > 0 {
		related, err := p.linker.Link(ctx, *m, vec)
		if err == nil && len(related) > 0 {
			_ = p.memories.UpdateLinks(ctx, project.RootPath, m.ID, related)
		}
	}

	p.indexChunks(ctx, project, m, content, language)

	p.publish(eventbus.KindJobProgress, project.ID, map[string]interface{}{"path": relPath, "memory_id": m.ID})
	return m, nil
}

// indexChunks runs C7 over the file, persists chunks in C1, embeds them
// through C6, and upserts into C2. A failure here stops chunk indexing
// for this file and never fails the enclosing file (spec.md §4.8 step 8);
// the failure is not logged.
func (p *Pipeline) indexChunks(ctx context.Context, project store.Project, m *store.Memory, content, language string) {
	if p.store == nil {
		return
	}
	var chunker Chunker
	for _, c := range p.chunkers {
		if c.Supports(filepath.Ext(m.FilePath)) {
			chunker = c
			break
		}
	}
	if chunker == nil {
		return
	}

	chunks, err := chunker.Chunk(ctx, content, m.FilePath)
	if err != nil || len(chunks) == 0 {
		return
	}

	storeChunks := make([]store.Chunk, 0, len(chunks))
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		storeChunks = append(storeChunks, store.Chunk{
			ID: idgen.DeterministicChunkID(m.ID, c.Hash), MemoryID: m.ID, ProjectID: project.ID,
			NodeType: store.ChunkNodeType(c.Type.ToNodeType()), NodeName: chunkName(c), Content: c.Content,
			StartLine: c.StartLine, EndLine: c.EndLine, StartByte: c.StartByte, EndByte: c.EndByte,
			Language: language, ContentHash: c.Hash,
			CreatedAt: time.Now().UTC(),
		})
		texts = append(texts, c.Content)
	}
	if err := p.store.InsertChunksBatch(ctx, storeChunks); err != nil {
		return
	}

	if p.embedder == nil || p.vectors == nil {
		return
	}
	embeddings, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return
	}

	collection := vectorstore.CollectionName(project.Slug)
	if err := p.vectors.EnsureCollection(ctx, collection, p.embedder.Dimensions()); err != nil {
		return
	}

	docs := make([]vectorstore.Document, 0, len(storeChunks))
	for i, sc := range storeChunks {
		if i >= len(embeddings) {
			break
		}
		doc := vectorstore.Document{
			ID: sc.ID, Collection: collection, Content: sc.Content, Vector: embeddings[i].Vector,
			Metadata: map[string]interface{}{
				"type": "chunk", "parent_memory_id": m.ID, "project_id": project.ID,
				"node_type": string(sc.NodeType), "start_line": sc.StartLine, "end_line": sc.EndLine, "language": language,
			},
			CreatedAt: sc.CreatedAt, UpdatedAt: sc.CreatedAt,
		}
		docs = append(docs, doc)
	}
	_ = p.vectors.UpsertBatch(ctx, docs)
}

// chunkName pulls whichever name field a chunker stamped into Metadata,
// for store.Chunk.NodeName.
func chunkName(c Chunk) string {
	for _, key := range []string{"function_name", "type_name", "struct_name", "interface_name", "heading"} {
		if name := c.Metadata[key]; name != "" {
			return name
		}
	}
	return ""
}

type codeSummary struct {
	Title    string
	Body     string
	Keywords []string
	Tags     []string
}

// summarize calls the LLM provider chain (C5) to produce a structured
// summary and rejects empty results (spec.md §4.8 "Reject empty
// summaries").
func (p *Pipeline) summarize(ctx context.Context, content, path, language string) (*codeSummary, error) {
	prompt := fmt.Sprintf("File: %s (%s)\n\n%s", path, language, truncateForPrompt(content, 8000))
	resp, err := p.llm.Complete(ctx, llmprovider.Request{
		SystemPrompt: "Summarize this source file in 2-4 sentences. Then list 3-8 keywords. Respond as plain text: a title line, a blank line, the summary, a blank line, then 'keywords: a, b, c'.",
		UserPrompt:   prompt,
		MaxTokens:    512,
	})
	if err != nil {
		return nil, err
	}
	title, body, keywords := parseSummaryResponse(resp.Text)
	if body == "" {
		return nil, ferrors.New(ferrors.Validation, "indexer.summarize", "LLM returned an empty summary")
	}
	return &codeSummary{Title: title, Body: body, Keywords: keywords}, nil
}

func (p *Pipeline) publish(kind eventbus.Kind, projectID string, payload interface{}) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(eventbus.Event{Kind: kind, ProjectID: projectID, Payload: payload, At: time.Now().UTC()})
}

func truncateForPrompt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// parseSummaryResponse pulls a title, body, and keyword list out of the
// loosely-structured plain-text format the summarize prompt asks for:
// a title line, a blank line, the body, a blank line, then a
// "keywords: a, b, c" line. Any line it can't place falls into the body.
func parseSummaryResponse(text string) (title, body string, keywords []string) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return "", "", nil
	}
	title = strings.TrimSpace(lines[0])

	var bodyLines []string
	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToLower(trimmed), "keywords:") {
			for _, kw := range strings.Split(trimmed[len("keywords:"):], ",") {
				if kw = strings.TrimSpace(kw); kw != "" {
					keywords = append(keywords, kw)
				}
			}
			continue
		}
		if trimmed == "" && len(bodyLines) == 0 {
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	body = strings.TrimSpace(strings.Join(bodyLines, "\n"))
	return title, body, keywords
}
