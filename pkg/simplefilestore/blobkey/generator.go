// Package blobkey generates storage keys for uploaded blobs.
package blobkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator builds sharded, owner-scoped blob keys of the form
// blobs/{owner}/{ab}/{cdef...}. The random component is a fresh UUID, so a
// key can be generated before the content hash is known and never collides
// with a concurrent upload of the same content.
type Generator struct {
	// ShardLength controls how many hex characters form the shard
	// directory (default 2).
	ShardLength int
}

// New creates a generator with default sharding.
func New() *Generator {
	return &Generator{ShardLength: 2}
}

// Key returns a fresh blob key scoped to the given owner hint.
func (g *Generator) Key(ownerID string) string {
	shardLen := g.ShardLength
	if shardLen <= 0 || shardLen > 8 {
		shardLen = 2
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("blobs/%s/%s/%s", ownerSegment(ownerID), id[:shardLen], id[shardLen:])
}

// ownerSegment makes an arbitrary owner id safe to embed in a key path.
// Plain identifiers pass through for debuggability; anything else is hashed.
func ownerSegment(ownerID string) string {
	if ownerID != "" && isPlain(ownerID) {
		return ownerID
	}
	sum := sha256.Sum256([]byte(ownerID))
	return hex.EncodeToString(sum[:8])
}

func isPlain(s string) bool {
	if len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
