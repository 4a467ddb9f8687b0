// Package linker implements C10: given a newly added memory, it finds up
// to K semantically nearest candidates in the vector store, asks the LLM
// provider chain to classify any real relationships among them, and
// persists the ones the model is confident about as typed links.
package linker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ferg-cod3s/fold/internal/eventbus"
	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/foldtree"
	"github.com/ferg-cod3s/fold/internal/llmprovider"
	"github.com/ferg-cod3s/fold/internal/store"
	"github.com/ferg-cod3s/fold/internal/vectorstore"
)

// DefaultK is the number of nearest candidates considered per memory.
const DefaultK = 10

// ConfidenceThreshold is the minimum model-reported confidence a proposed
// link must clear to be persisted.
const ConfidenceThreshold = 0.6

var closedLinkTypes = map[store.LinkType]bool{
	store.LinkModifies: true, store.LinkContains: true, store.LinkAffects: true,
	store.LinkImplements: true, store.LinkDecides: true, store.LinkSupersedes: true,
	store.LinkReferences: true, store.LinkRelated: true, store.LinkParent: true,
	store.LinkBlocks: true, store.LinkCausedBy: true,
}

// Linker is the C10 component.
type Linker struct {
	store   *store.Store
	vectors vectorstore.VectorStore
	llm     *llmprovider.Chain
	bus     *eventbus.Bus
	k       int
}

// New creates a Linker. vectors may be nil, in which case Link is a no-op
// (no candidates to compare against), matching the optional-vector-store
// rule the memory service also applies.
func New(s *store.Store, vectors vectorstore.VectorStore, llm *llmprovider.Chain, bus *eventbus.Bus) *Linker {
	return &Linker{store: s, vectors: vectors, llm: llm, bus: bus, k: DefaultK}
}

type proposedLink struct {
	TargetID   string  `json:"target_id"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Link finds candidates near m's vector, asks the LLM to classify
// relationships, and persists the ones that clear ConfidenceThreshold.
// It returns the RelatedEntry list so the caller can rewrite the fold-tree
// footer via C3 without a second store round-trip.
func (l *Linker) Link(ctx context.Context, m store.Memory, memoryVector []float32) ([]foldtree.RelatedEntry, error) {
	if l.vectors == nil || len(memoryVector) == 0 {
		return nil, nil
	}

	proj, err := l.store.GetProject(ctx, m.ProjectID)
	if err != nil {
		return nil, err
	}

	results, err := l.vectors.SearchVector(ctx, memoryVector, vectorstore.SearchOptions{
		Collection: vectorstore.CollectionName(proj.Slug),
		Limit:      l.k,
		Filters:    map[string]interface{}{"project_id": m.ProjectID, "type": "memory"},
	})
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0, len(results))
	for _, r := range results {
		if r.Document.ID == m.ID {
			continue
		}
		title, _ := r.Document.Metadata["title"].(string)
		filePath, _ := r.Document.Metadata["file_path"].(string)
		candidates = append(candidates, candidate{
			ID: r.Document.ID, Title: title, Snippet: truncate(r.Document.Content, 400),
			Hint: pathHint(m.FilePath, filePath),
		})
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	proposals, err := l.classify(ctx, m, candidates)
	if err != nil {
		return nil, err
	}

	var related []foldtree.RelatedEntry
	for _, p := range proposals {
		if p.Confidence <= ConfidenceThreshold {
			continue
		}
		lt := store.LinkType(p.Type)
		if !closedLinkTypes[lt] || p.TargetID == m.ID {
			continue
		}

		link, err := l.store.InsertLink(ctx, store.Link{
			ProjectID: m.ProjectID, SourceID: m.ID, TargetID: p.TargetID,
			Type: lt, Provenance: store.ProvenanceAI, Confidence: p.Confidence,
		})
		if err != nil {
			if kind, ok := ferrors.KindOf(err); ok && kind == ferrors.Conflict {
				continue // already linked, idempotent no-op
			}
			return nil, err
		}

		title := titleFor(candidates, p.TargetID)
		related = append(related, foldtree.RelatedEntry{TargetID: link.TargetID, Type: link.Type, Title: title})
		l.publish(m.ProjectID, link)
	}
	return related, nil
}

type candidate struct {
	ID      string
	Title   string
	Snippet string
	Hint    string // cheap path-based relation guess, empty if none applies
}

func (l *Linker) classify(ctx context.Context, m store.Memory, candidates []candidate) ([]proposedLink, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "New memory %q (id=%s):\n%s\n\nCandidate related memories:\n", m.Title, m.ID, truncate(m.Body, 800))
	for i, c := range candidates {
		if c.Hint != "" {
			fmt.Fprintf(&b, "%d. id=%s title=%q (path hint: %s)\n%s\n\n", i+1, c.ID, c.Title, c.Hint, c.Snippet)
		} else {
			fmt.Fprintf(&b, "%d. id=%s title=%q\n%s\n\n", i+1, c.ID, c.Title, c.Snippet)
		}
	}
	b.WriteString("\nFor each candidate that has a real relationship to the new memory, respond with one JSON object per line: " +
		`{"target_id": "...", "type": "modifies|contains|affects|implements|decides|supersedes|references|related|parent|blocks|caused_by", "confidence": 0.0-1.0}` +
		". Omit candidates with no relationship. Respond with JSON lines only.")

	resp, err := l.llm.Complete(ctx, llmprovider.Request{
		SystemPrompt: "You classify relationships between pieces of project knowledge. Be conservative: only propose a relationship you are confident about.",
		UserPrompt:   b.String(),
		MaxTokens:    1024,
	})
	if err != nil {
		return nil, err
	}

	return parseProposedLinks(resp.Text), nil
}

func parseProposedLinks(text string) []proposedLink {
	var out []proposedLink
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var p proposedLink
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

func titleFor(candidates []candidate, id string) string {
	for _, c := range candidates {
		if c.ID == id {
			return c.Title
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func (l *Linker) publish(projectID string, link *store.Link) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Kind: eventbus.KindLinkCreated, ProjectID: projectID, Payload: link})
}
