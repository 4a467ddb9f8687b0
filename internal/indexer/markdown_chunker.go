package indexer

import (
	"context"
	"strings"
	"time"
)

// MarkdownChunker splits Markdown documents into heading-bounded chunks,
// one per section, the same granularity spec.md §3 calls a "heading" chunk
// for spec/decision/general memories.
type MarkdownChunker struct {
	maxChunkSize int
}

// NewMarkdownChunker creates a markdown chunker with a configurable maximum
// chunk size; sections longer than maxChunkSize are split on paragraph
// boundaries.
func NewMarkdownChunker(maxChunkSize int) *MarkdownChunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 2000
	}
	return &MarkdownChunker{maxChunkSize: maxChunkSize}
}

// Supports reports whether this chunker handles the given extension.
func (c *MarkdownChunker) Supports(fileExtension string) bool {
	switch strings.ToLower(fileExtension) {
	case ".md", ".markdown", ".mdx":
		return true
	default:
		return false
	}
}

// Chunk splits markdown content into one chunk per heading section (a
// heading of any level starts a new section), falling back to paragraph
// splitting within oversized sections.
func (c *MarkdownChunker) Chunk(ctx context.Context, content string, filePath string) ([]Chunk, error) {
	lines := strings.Split(content, "\n")

	type section struct {
		heading   string
		startLine int
		endLine   int
		body      []string
	}

	var sections []section
	cur := section{heading: "", startLine: 1}
	for i, line := range lines {
		lineNo := i + 1
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			if len(cur.body) > 0 || cur.heading != "" {
				cur.endLine = lineNo - 1
				sections = append(sections, cur)
			}
			cur = section{heading: strings.TrimSpace(strings.TrimLeft(line, "#")), startLine: lineNo}
			continue
		}
		cur.body = append(cur.body, line)
	}
	cur.endLine = len(lines)
	if len(cur.body) > 0 || cur.heading != "" {
		sections = append(sections, cur)
	}

	if len(sections) == 0 {
		return []Chunk{c.makeChunk(content, filePath, "", 1, len(lines))}, nil
	}

	var chunks []Chunk
	for _, sec := range sections {
		body := strings.Join(sec.body, "\n")
		full := body
		if sec.heading != "" {
			full = "# " + sec.heading + "\n" + body
		}
		if len(full) <= c.maxChunkSize || sec.heading == "" {
			chunks = append(chunks, c.makeChunk(full, filePath, sec.heading, sec.startLine, sec.endLine))
			continue
		}
		chunks = append(chunks, c.splitParagraphs(sec.heading, sec.body, filePath, sec.startLine)...)
	}
	return chunks, nil
}

// splitParagraphs breaks an oversized section into paragraph-bounded chunks.
func (c *MarkdownChunker) splitParagraphs(heading string, bodyLines []string, filePath string, startLine int) []Chunk {
	var chunks []Chunk
	var buf strings.Builder
	lineNo := startLine
	chunkStart := startLine

	flush := func(endLine int) {
		if buf.Len() == 0 {
			return
		}
		chunks = append(chunks, c.makeChunk(buf.String(), filePath, heading, chunkStart, endLine))
		buf.Reset()
	}

	for _, line := range bodyLines {
		if strings.TrimSpace(line) == "" && buf.Len() >= c.maxChunkSize {
			flush(lineNo)
			chunkStart = lineNo + 1
		}
		buf.WriteString(line)
		buf.WriteString("\n")
		lineNo++
	}
	flush(lineNo - 1)
	return chunks
}

func (c *MarkdownChunker) makeChunk(content, filePath, heading string, startLine, endLine int) Chunk {
	metadata := make(map[string]string)
	if heading != "" {
		metadata["heading"] = heading
	}
	return Chunk{
		ID:        generateChunkID(filePath, string(ChunkTypeHeading), heading, startLine),
		Content:   content,
		FilePath:  filePath,
		Language:  "markdown",
		Type:      ChunkTypeHeading,
		StartLine: startLine,
		EndLine:   endLine,
		Metadata:  metadata,
		Hash:      generateContentHash(content),
		IndexedAt: time.Now(),
	}
}
