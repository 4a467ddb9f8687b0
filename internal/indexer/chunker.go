package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// CodeChunker implements C7 for programming-language source: AST-aligned
// ranges for Go, brace-depth scanning for the rest, and for anything it
// doesn't recognise one whole-file chunk, or a sliding window once the file
// exceeds maxChunkSize (spec.md §4.7).
type CodeChunker struct {
	maxChunkSize int // Maximum characters per chunk
	overlapSize  int // Characters to overlap between adjacent sliding-window chunks
}

// NewCodeChunker creates a new code chunker with configurable sizes.
func NewCodeChunker(maxChunkSize, overlapSize int) *CodeChunker {
	if maxChunkSize <= 0 {
		maxChunkSize = 2000 // Default
	}
	if overlapSize <= 0 {
		overlapSize = 200 // Default
	}
	return &CodeChunker{
		maxChunkSize: maxChunkSize,
		overlapSize:  overlapSize,
	}
}

// Supports returns true if this chunker handles the given file extension.
func (c *CodeChunker) Supports(fileExtension string) bool {
	supported := map[string]bool{
		".go":    true,
		".py":    true,
		".js":    true,
		".jsx":   true,
		".ts":    true,
		".tsx":   true,
		".java":  true,
		".cpp":   true,
		".cc":    true,
		".cxx":   true,
		".c++":   true,
		".c":     true,
		".rs":    true,
		".rb":    true,
		".php":   true,
		".cs":    true,
		".scala": true,
		".kt":    true,
		".swift": true,
	}
	return supported[strings.ToLower(fileExtension)]
}

// Chunk splits code content into semantic chunks based on language-specific
// constructs. Multi-chunk results get a trailing-context overlap prepended
// to each chunk after the first, so a vector hit on chunk N still carries
// enough of chunk N-1 to be useful on its own (spec.md §4.13 rolls hits up
// to their parent memory, but a single chunk is often what gets displayed).
func (c *CodeChunker) Chunk(ctx context.Context, content string, filePath string) ([]Chunk, error) {
	ext := strings.ToLower(filepath.Ext(filePath))

	var chunks []Chunk
	var err error
	switch ext {
	case ".go":
		chunks, err = c.chunkGoCode(ctx, content, filePath)
	case ".py":
		chunks = c.chunkPythonCode(content, filePath)
	case ".js", ".jsx", ".ts", ".tsx":
		chunks = c.chunkJavaScriptCode(content, filePath)
	case ".java":
		chunks = c.chunkJavaCode(content, filePath)
	case ".cpp", ".cc", ".cxx", ".c++", ".c":
		chunks = c.chunkCCode(content, filePath)
	case ".rs":
		chunks = c.chunkRustCode(content, filePath)
	default:
		return c.chunkGenericCode(content, filePath)
	}
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return c.chunkGenericCode(content, filePath)
	}
	return c.addOverlapToChunks(chunks), nil
}

// chunkGoCode chunks Go source at function and struct-type granularity
// using the standard library parser, falling back to generic chunking on
// a parse error (e.g. a file with syntax the parser rejects).
func (c *CodeChunker) chunkGoCode(ctx context.Context, content string, filePath string) ([]Chunk, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, content, parser.ParseComments)
	if err != nil {
		return c.chunkGenericCode(content, filePath)
	}

	lines := strings.Split(content, "\n")
	var chunks []Chunk

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			startPos, endPos := fset.Position(d.Pos()), fset.Position(d.End())
			fnContent := strings.Join(lines[startPos.Line-1:endPos.Line], "\n")
			chunk := c.createCodeChunk(fnContent, filePath, "go", ChunkTypeFunction, startPos.Line, endPos.Line, d.Name.Name)
			chunk.StartByte, chunk.EndByte = startPos.Offset, endPos.Offset
			if recv := c.getReceiverName(d); recv != "" {
				chunk.Metadata["receiver"] = recv
			}
			chunks = append(chunks, chunk)
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				typeSpec, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				if _, ok := typeSpec.Type.(*ast.StructType); !ok {
					continue
				}
				startPos, endPos := fset.Position(typeSpec.Pos()), fset.Position(typeSpec.End())
				structContent := strings.Join(lines[startPos.Line-1:endPos.Line], "\n")
				chunk := c.createCodeChunk(structContent, filePath, "go", ChunkTypeStruct, startPos.Line, endPos.Line, typeSpec.Name.Name)
				chunk.StartByte, chunk.EndByte = startPos.Offset, endPos.Offset
				chunks = append(chunks, chunk)
			}
		}
	}

	return chunks, nil
}

// getReceiverName extracts the receiver type name from a Go function
// declaration, empty for a free function.
func (c *CodeChunker) getReceiverName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return ""
	}
	switch t := fn.Recv.List[0].Type.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		if ident, ok := t.X.(*ast.Ident); ok {
			return ident.Name
		}
	}
	return ""
}

// lineClassifier recognises the start of a new semantic chunk on one line,
// returning the chunk's type and name if it matched.
type lineClassifier func(line string) (chunkType ChunkType, name string, matched bool)

// scanBraceChunks is the shared brace-depth scanner behind every
// regex-based language chunker below: it tracks `{`/`}` balance from the
// line a classifier matches and closes the chunk once the braces return to
// depth zero. requireClosingBrace additionally demands the closing line
// end in "}", which disambiguates a C function body from a mid-expression
// brace balance of zero.
func (c *CodeChunker) scanBraceChunks(content, filePath, language string, classify lineClassifier, requireClosingBrace bool) []Chunk {
	lines := strings.Split(content, "\n")
	var chunks []Chunk

	current := ""
	currentType := ChunkTypeUnknown
	currentStart := 1
	currentName := ""
	braceCount := 0

	flushOpen := func(throughLine int) {
		if current != "" {
			chunks = append(chunks, c.createCodeChunk(current, filePath, language, currentType, currentStart, throughLine, currentName))
		}
	}

	for i, line := range lines {
		lineNum := i + 1
		braceCount += strings.Count(line, "{") - strings.Count(line, "}")

		if chunkType, name, matched := classify(line); matched {
			if current != "" && braceCount <= 0 {
				flushOpen(lineNum - 1)
			}
			current = line + "\n"
			currentType = chunkType
			currentStart = lineNum
			currentName = name
			braceCount = strings.Count(line, "{") - strings.Count(line, "}")
			continue
		}

		if current == "" {
			continue
		}
		current += line + "\n"

		closed := braceCount <= 0 && strings.TrimSpace(line) != ""
		if requireClosingBrace {
			closed = closed && strings.HasSuffix(strings.TrimSpace(line), "}")
		}
		if closed {
			flushOpen(lineNum)
			current, currentType, currentName = "", ChunkTypeUnknown, ""
		}
	}

	flushOpen(len(lines))
	return chunks
}

var (
	pythonFnRegex    = regexp.MustCompile(`^\s*def\s+(\w+)\s*\(`)
	pythonClassRegex = regexp.MustCompile(`^\s*class\s+(\w+)`)

	jsFnRegex    = regexp.MustCompile(`^\s*(?:function\s+(\w+)|(?:const|let|var)\s+(\w+)\s*=\s*(?:\([^)]*\)\s*=>|function))`)
	jsClassRegex = regexp.MustCompile(`^\s*class\s+(\w+)`)

	javaMethodRegex = regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static)?\s*(?:\w+\s+)+\s*(\w+)\s*\(`)
	javaClassRegex  = regexp.MustCompile(`^\s*(?:public|private|protected)?\s*class\s+(\w+)`)

	cFnRegex = regexp.MustCompile(`^\s*(?:\w+\s+)+\s*\**\s*(\w+)\s*\(`)

	rustFnRegex     = regexp.MustCompile(`^\s*fn\s+(\w+)\s*\(`)
	rustStructRegex = regexp.MustCompile(`^\s*struct\s+(\w+)`)
	rustImplRegex   = regexp.MustCompile(`^\s*impl\s+(?:\w+::)?(\w+)`)
)

// chunkPythonCode chunks Python source at def/class boundaries.
func (c *CodeChunker) chunkPythonCode(content, filePath string) []Chunk {
	classify := func(line string) (ChunkType, string, bool) {
		if m := pythonFnRegex.FindStringSubmatch(line); m != nil {
			return ChunkTypeFunction, m[1], true
		}
		if m := pythonClassRegex.FindStringSubmatch(line); m != nil {
			return ChunkTypeClass, m[1], true
		}
		return "", "", false
	}
	return c.scanBraceChunks(content, filePath, detectLanguage(filePath), classify, false)
}

// chunkJavaScriptCode chunks JavaScript/TypeScript source at function,
// arrow-function, and class boundaries.
func (c *CodeChunker) chunkJavaScriptCode(content, filePath string) []Chunk {
	classify := func(line string) (ChunkType, string, bool) {
		if m := jsFnRegex.FindStringSubmatch(line); m != nil {
			name := m[1]
			if name == "" {
				name = m[2]
			}
			return ChunkTypeFunction, name, true
		}
		if m := jsClassRegex.FindStringSubmatch(line); m != nil {
			return ChunkTypeClass, m[1], true
		}
		return "", "", false
	}
	return c.scanBraceChunks(content, filePath, detectLanguage(filePath), classify, false)
}

// chunkJavaCode chunks Java source at method and class boundaries.
func (c *CodeChunker) chunkJavaCode(content, filePath string) []Chunk {
	classify := func(line string) (ChunkType, string, bool) {
		if m := javaClassRegex.FindStringSubmatch(line); m != nil {
			return ChunkTypeClass, m[1], true
		}
		if m := javaMethodRegex.FindStringSubmatch(line); m != nil {
			return ChunkTypeFunction, m[len(m)-1], true
		}
		return "", "", false
	}
	return c.scanBraceChunks(content, filePath, "java", classify, false)
}

// chunkCCode chunks C/C++ source at function boundaries, skipping
// prototype declarations (lines ending in ";" rather than opening a body).
func (c *CodeChunker) chunkCCode(content, filePath string) []Chunk {
	classify := func(line string) (ChunkType, string, bool) {
		if strings.Contains(line, ";") {
			return "", "", false
		}
		if m := cFnRegex.FindStringSubmatch(line); m != nil {
			return ChunkTypeFunction, m[len(m)-1], true
		}
		return "", "", false
	}
	return c.scanBraceChunks(content, filePath, detectLanguage(filePath), classify, true)
}

// chunkRustCode chunks Rust source at fn, struct, and impl boundaries.
func (c *CodeChunker) chunkRustCode(content, filePath string) []Chunk {
	classify := func(line string) (ChunkType, string, bool) {
		if m := rustFnRegex.FindStringSubmatch(line); m != nil {
			return ChunkTypeFunction, m[1], true
		}
		if m := rustStructRegex.FindStringSubmatch(line); m != nil {
			return ChunkTypeStruct, m[1], true
		}
		if m := rustImplRegex.FindStringSubmatch(line); m != nil {
			return ChunkTypeInterface, m[1], true
		}
		return "", "", false
	}
	return c.scanBraceChunks(content, filePath, "rust", classify, false)
}

// chunkGenericCode implements fallback chunking for unrecognised
// languages: one chunk for small files, otherwise a fixed-size sliding
// window that never splits a word, with c.overlapSize characters of
// re-read between adjacent windows.
func (c *CodeChunker) chunkGenericCode(content, filePath string) ([]Chunk, error) {
	if len(content) <= c.maxChunkSize {
		return []Chunk{c.createCodeChunk(content, filePath, detectLanguage(filePath), ChunkTypeUnknown, 1, countLines(content), "")}, nil
	}

	var chunks []Chunk
	runes := []rune(content)
	totalLen := len(runes)

	for start := 0; start < totalLen; start += c.maxChunkSize - c.overlapSize {
		end := start + c.maxChunkSize
		if end > totalLen {
			end = totalLen
		}
		if end < totalLen {
			for end > start && !unicode.IsSpace(runes[end-1]) {
				end--
			}
		}

		chunkContent := string(runes[start:end])
		if strings.TrimSpace(chunkContent) != "" {
			startLine := 1
			endLine := countLines(chunkContent)
			if start > 0 {
				startLine = countLines(string(runes[:start])) + 1
				endLine = startLine + countLines(chunkContent) - 1
			}
			chunk := c.createCodeChunk(chunkContent, filePath, detectLanguage(filePath), ChunkTypeUnknown, startLine, endLine, "")
			chunk.StartByte = len(string(runes[:start]))
			chunk.EndByte = chunk.StartByte + len(chunkContent)
			chunks = append(chunks, chunk)
		}

		if end >= totalLen {
			break
		}
	}

	return chunks, nil
}

// estimateTokens gives a rough token count for sizing overlap windows;
// four characters per token is the same heuristic the rest of the corpus
// uses for provider context budgets.
func (c *CodeChunker) estimateTokens(content string) int {
	return len(content) / 4
}

// calculateOverlapSize returns how many trailing characters of a chunk
// should carry forward into the next one: 20% of its estimated tokens,
// converted back to characters.
func (c *CodeChunker) calculateOverlapSize(content string) int {
	overlapTokens := c.estimateTokens(content) / 5
	return overlapTokens * 4
}

// extractOverlapContent returns the trailing overlapSize characters of
// content, trimmed forward to the next line or word boundary so the
// overlap never starts mid-token.
func (c *CodeChunker) extractOverlapContent(content string, overlapSize int) string {
	if overlapSize <= 0 || len(content) <= overlapSize {
		return content
	}
	tail := content[len(content)-overlapSize:]
	if idx := strings.Index(tail, "\n"); idx >= 0 {
		return tail[idx+1:]
	}
	if idx := strings.Index(tail, " "); idx >= 0 {
		return tail[idx+1:]
	}
	return tail
}

// addOverlapToChunks prepends trailing context from each chunk onto the
// next, so a chunk read in isolation still carries a few lines of the
// construct that preceded it.
func (c *CodeChunker) addOverlapToChunks(chunks []Chunk) []Chunk {
	if len(chunks) <= 1 {
		return chunks
	}
	out := make([]Chunk, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		overlap := c.extractOverlapContent(prev.Content, c.calculateOverlapSize(prev.Content))
		cur := chunks[i]
		if overlap != "" {
			cur.Content = overlap + "\n" + cur.Content
		}
		out[i] = cur
	}
	return out
}

// createCodeChunk builds a Chunk, stamping the function/type name into
// metadata under the key its chunk type expects.
func (c *CodeChunker) createCodeChunk(content, filePath, language string, chunkType ChunkType, startLine, endLine int, name string) Chunk {
	metadata := make(map[string]string)
	if name != "" {
		switch chunkType {
		case ChunkTypeFunction:
			metadata["function_name"] = name
		case ChunkTypeClass:
			metadata["type_name"] = name
		case ChunkTypeStruct:
			metadata["struct_name"] = name
		case ChunkTypeInterface:
			metadata["interface_name"] = name
		}
	}

	return Chunk{
		ID:        generateChunkID(filePath, string(chunkType), name, startLine),
		Content:   content,
		FilePath:  filePath,
		Language:  language,
		Type:      chunkType,
		StartLine: startLine,
		EndLine:   endLine,
		Metadata:  metadata,
		Hash:      generateContentHash(content),
		IndexedAt: time.Now(),
	}
}

// generateChunkID creates a unique identifier for a chunk.
func generateChunkID(filePath, chunkType, name string, line int) string {
	return fmt.Sprintf("%s:%s:%s:%d", filePath, chunkType, name, line)
}

// generateContentHash creates a hash of the content for deduplication.
func generateContentHash(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
