package split

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentID derives a deterministic identifier from passage content:
// SHA-256 over the UTF-8 bytes, rendered as lowercase hex. Identical
// content always yields the same id, so re-ingesting unchanged content
// is an upsert at the storage layer rather than a duplicate.
func ContentID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
