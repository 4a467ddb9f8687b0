// Package foldtree is Fold's on-disk reconstructible mirror of the
// metadata store (C3): one Markdown file per memory under a two-level
// hash-bucketed directory layout, with YAML frontmatter carrying the
// structured fields and a "Related" footer of wiki-style links. The fold
// tree is a derivative of the metadata store, never the source of truth;
// it exists so a human (or another tool) can browse and grep knowledge
// without a database connection.
package foldtree

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ferg-cod3s/fold/internal/ferrors"
	"github.com/ferg-cod3s/fold/internal/store"
)

// Tree manages the fold-tree directory for a single project.
type Tree struct {
	root string // <project root>/.fold
}

// New creates a Tree rooted at <projectRoot>/.fold.
func New(projectRoot string) *Tree {
	return &Tree{root: filepath.Join(projectRoot, ".fold")}
}

// Root returns the tree's root directory.
func (t *Tree) Root() string { return t.root }

// Init creates the fold-tree root, its bucket directories are created
// lazily on first write, and writes project.toml + a .gitignore entry so
// temp files left by an interrupted write are not committed; the tree's
// Markdown files themselves are not ignored (spec.md §4.3 "project init").
func (t *Tree) Init(p store.Project) error {
	if err := os.MkdirAll(t.root, 0o755); err != nil {
		return ferrors.Wrap(ferrors.StorageCorrupt, "foldtree.Init", "create root", err)
	}

	toml := fmt.Sprintf(
		"slug = %q\nname = %q\nroot_path = %q\ncreated_at = %q\n",
		p.Slug, p.Name, p.RootPath, time.Now().UTC().Format(time.RFC3339),
	)
	if err := atomicWrite(filepath.Join(t.root, "project.toml"), []byte(toml)); err != nil {
		return err
	}

	gitignorePath := filepath.Join(filepath.Dir(t.root), ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		if err := os.WriteFile(gitignorePath, []byte("# Fold knowledge tree: temp files from interrupted writes.\n/.fold/*.tmp\n"), 0o644); err != nil {
			return ferrors.Wrap(ferrors.StorageCorrupt, "foldtree.Init", "write .gitignore", err)
		}
	}
	return nil
}

// bucketPath returns the two-level hash-bucketed directory for a memory
// id: the first two hex characters select the outer bucket, the next two
// the inner bucket, keeping any single directory from growing unbounded
// (spec.md §4.3 "hash-bucketed directories").
func (t *Tree) bucketPath(memoryID string) string {
	id := strings.ReplaceAll(memoryID, "-", "")
	if len(id) < 4 {
		id = (id + "0000")[:4]
	}
	return filepath.Join(t.root, id[0:2], id[2:4])
}

// PathFor returns the absolute file path a memory's Markdown file lives
// (or would live) at.
func (t *Tree) PathFor(memoryID string) string {
	return filepath.Join(t.bucketPath(memoryID), memoryID+".md")
}

// frontmatter mirrors the subset of store.Memory written to the YAML
// header of each fold-tree file.
type frontmatter struct {
	ID           string   `yaml:"id"`
	Kind         string   `yaml:"kind"`
	Source       string   `yaml:"source"`
	Title        string   `yaml:"title,omitempty"`
	Author       string   `yaml:"author,omitempty"`
	Keywords     []string `yaml:"keywords,omitempty"`
	Tags         []string `yaml:"tags,omitempty"`
	Context      string   `yaml:"context,omitempty"`
	FilePath     string   `yaml:"file_path,omitempty"`
	Language     string   `yaml:"language,omitempty"`
	StartLine    int      `yaml:"start_line,omitempty"`
	EndLine      int      `yaml:"end_line,omitempty"`
	ContentHash  string   `yaml:"content_hash,omitempty"`
	OriginalDate string   `yaml:"original_date,omitempty"`
	CreatedAt    string   `yaml:"created_at"`
	UpdatedAt    string   `yaml:"updated_at"`
}

// RelatedEntry is one line of the "Related" footer.
type RelatedEntry struct {
	TargetID string
	Type     store.LinkType
	Title    string
}

// Write renders a memory and its related links to its fold-tree file using
// a temp-file-then-rename so a reader never observes a half-written file
// (grounded on the teacher's indexer.StateManager.Save atomic-write
// pattern).
func (t *Tree) Write(m store.Memory, related []RelatedEntry) error {
	fm := frontmatter{
		ID: m.ID, Kind: string(m.Kind), Source: string(m.Source), Title: m.Title, Author: m.Author,
		Keywords: m.Keywords, Tags: m.Tags, Context: m.Context, FilePath: m.FilePath, Language: m.Language,
		StartLine: m.StartLine, EndLine: m.EndLine, ContentHash: m.ContentHash,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339), UpdatedAt: m.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if m.OriginalDate != nil {
		fm.OriginalDate = m.OriginalDate.UTC().Format(time.RFC3339)
	}

	header, err := yaml.Marshal(fm)
	if err != nil {
		return ferrors.Wrap(ferrors.StorageCorrupt, "foldtree.Write", "marshal frontmatter", err)
	}

	var buf strings.Builder
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	if m.Title != "" {
		buf.WriteString("# " + m.Title + "\n\n")
	}
	buf.WriteString(m.Body)
	buf.WriteString("\n")

	if len(related) > 0 {
		buf.WriteString("\n## Related\n\n")
		for _, r := range related {
			label := r.Title
			if label == "" {
				label = r.TargetID
			}
			buf.WriteString(fmt.Sprintf("- [[%s]] (%s)\n", label, r.Type))
		}
	}

	path := t.PathFor(m.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ferrors.Wrap(ferrors.StorageCorrupt, "foldtree.Write", "create bucket dir", err)
	}
	return atomicWrite(path, []byte(buf.String()))
}

// Read parses a fold-tree file back into a frontmatter + body pair. Used
// by reindex/repair tooling to reconcile the tree against the metadata
// store without needing the database.
func Read(path string) (frontmatter, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return frontmatter{}, "", ferrors.Wrap(ferrors.NotFound, "foldtree.Read", "read file", err)
	}
	parts := strings.SplitN(string(raw), "---\n", 3)
	if len(parts) < 3 {
		return frontmatter{}, "", ferrors.New(ferrors.StorageCorrupt, "foldtree.Read", "malformed frontmatter")
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		return frontmatter{}, "", ferrors.Wrap(ferrors.StorageCorrupt, "foldtree.Read", "unmarshal frontmatter", err)
	}
	return fm, parts[2], nil
}

// Delete removes a memory's fold-tree file. A missing file is not an
// error: the tree is a derivative and may already be out of sync.
func (t *Tree) Delete(memoryID string) error {
	err := os.Remove(t.PathFor(memoryID))
	if err != nil && !os.IsNotExist(err) {
		return ferrors.Wrap(ferrors.StorageCorrupt, "foldtree.Delete", "remove file", err)
	}
	return nil
}

// UpdateMemoryLinks rewrites only the "Related" footer of an
// already-written file, used by the linker (C10) after it infers new
// relationships without needing the full memory body again.
func (t *Tree) UpdateMemoryLinks(memoryID string, related []RelatedEntry) error {
	path := t.PathFor(memoryID)
	fm, body, err := Read(path)
	if err != nil {
		return err
	}

	bodyWithoutFooter := body
	if idx := strings.Index(body, "\n## Related\n"); idx >= 0 {
		bodyWithoutFooter = body[:idx]
	}

	header, err := yaml.Marshal(fm)
	if err != nil {
		return ferrors.Wrap(ferrors.StorageCorrupt, "foldtree.UpdateMemoryLinks", "marshal frontmatter", err)
	}

	var buf strings.Builder
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimRight(bodyWithoutFooter, "\n"))
	buf.WriteString("\n")

	if len(related) > 0 {
		buf.WriteString("\n## Related\n\n")
		for _, r := range related {
			label := r.Title
			if label == "" {
				label = r.TargetID
			}
			buf.WriteString(fmt.Sprintf("- [[%s]] (%s)\n", label, r.Type))
		}
	}

	return atomicWrite(path, []byte(buf.String()))
}

// atomicWrite writes data to a temp file in the same directory as path and
// renames it into place, so concurrent readers never see a partial write.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ferrors.Wrap(ferrors.StorageCorrupt, "foldtree.atomicWrite", "write temp file", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ferrors.Wrap(ferrors.StorageCorrupt, "foldtree.atomicWrite", "rename temp file", err)
	}
	return nil
}
