package linker

import (
	"path/filepath"
	"strings"
)

// pathHint is a cheap, path-only guess at how two memories relate,
// folded into the classification prompt as a hint so the model doesn't
// have to rediscover an obvious test/doc/import relationship from the
// snippet text alone. It never decides a link by itself; classify still
// has the final say and a hint that turns out wrong costs nothing since
// low-confidence proposals are dropped anyway.
func pathHint(sourcePath, candidatePath string) string {
	if sourcePath == "" || candidatePath == "" {
		return ""
	}
	if isTestPairing(sourcePath, candidatePath) {
		return "test_pairing"
	}
	if isDocPath(candidatePath) {
		return "documentation"
	}
	if sameDir := filepath.Dir(sourcePath) == filepath.Dir(candidatePath); sameDir {
		return "same_directory"
	}
	if ext := strings.ToLower(filepath.Ext(sourcePath)); ext != "" && ext == strings.ToLower(filepath.Ext(candidatePath)) {
		return "same_language"
	}
	return ""
}

func isTestPairing(a, b string) bool {
	aExt := strings.ToLower(filepath.Ext(a))
	bExt := strings.ToLower(filepath.Ext(b))
	aBase := strings.TrimSuffix(filepath.Base(a), filepath.Ext(a))
	bBase := strings.TrimSuffix(filepath.Base(b), filepath.Ext(b))

	if aExt == ".go" || bExt == ".go" {
		if stripSuffix(strings.ToLower(aBase), "_test") == stripSuffix(strings.ToLower(bBase), "_test") && aBase != bBase {
			return true
		}
	}
	if isJSOrTS(aExt) || isJSOrTS(bExt) {
		aClean := cleanJSBase(aBase)
		bClean := cleanJSBase(bBase)
		if strings.EqualFold(aClean, bClean) && aBase != bBase {
			return true
		}
	}
	if aExt == ".py" || bExt == ".py" {
		if stripAffix(strings.ToLower(aBase), "test_") == stripAffix(strings.ToLower(bBase), "test_") && aBase != bBase {
			return true
		}
	}
	return false
}

func stripSuffix(s, suffix string) string {
	return strings.TrimSuffix(s, suffix)
}

func stripAffix(s, prefix string) string {
	s = strings.TrimPrefix(s, prefix)
	return strings.TrimSuffix(s, "_test")
}

func isJSOrTS(ext string) bool {
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		return true
	default:
		return false
	}
}

func cleanJSBase(base string) string {
	base = strings.ReplaceAll(base, ".test", "")
	base = strings.ReplaceAll(base, ".spec", "")
	return base
}

func isDocPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".md", ".rst", ".txt", ".adoc", ".asciidoc":
		return true
	}
	dir := strings.ToLower(filepath.Dir(path))
	if strings.Contains(dir, "docs") || strings.Contains(dir, "documentation") || strings.Contains(dir, "wiki") {
		return true
	}
	return strings.HasPrefix(strings.ToUpper(filepath.Base(path)), "README")
}
