// Package idgen generates the two flavours of id Fold uses: opaque ids for
// entities created by users or background processes, and deterministic ids
// for file-sourced memories and chunks, whose identity must agree across
// machines and runs.
package idgen

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"

	"github.com/google/uuid"
)

// New returns a fresh opaque id.
func New() string {
	return uuid.New().String()
}

// DeterministicMemoryID derives a file-sourced memory's id from its project
// slug and normalised path: first 32 hex characters of
// SHA256(slug + "/" + path), formatted as a UUID-shaped string. The path is
// normalised to forward slashes and lowercased before hashing so the same
// logical file produces the same id regardless of OS or case-folding
// differences between machines, per the spec's cross-implementation
// agreement requirement.
func DeterministicMemoryID(slug, filePath string) string {
	norm := normalisePath(filePath)
	sum := sha256.Sum256([]byte(slug + "/" + norm))
	return formatUUIDShape(hex.EncodeToString(sum[:])[:32])
}

// DeterministicChunkID derives a chunk's id from its parent memory id and
// content hash: hash(memory_id + content_hash), formatted the same way.
func DeterministicChunkID(memoryID, contentHash string) string {
	sum := sha256.Sum256([]byte(memoryID + contentHash))
	return formatUUIDShape(hex.EncodeToString(sum[:])[:32])
}

func normalisePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.ToLower(strings.TrimPrefix(p, "/"))
}

// formatUUIDShape arranges 32 hex characters into the canonical
// xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx grouping. It is purely cosmetic: the
// bytes are exactly the leading 32 hex digits of the SHA-256 digest, with no
// version/variant bits rewritten, so two independent implementations that
// spell out this same grouping will always agree.
func formatUUIDShape(hex32 string) string {
	if len(hex32) != 32 {
		panic("idgen: expected 32 hex characters")
	}
	return hex32[0:8] + "-" + hex32[8:12] + "-" + hex32[12:16] + "-" + hex32[16:20] + "-" + hex32[20:32]
}
