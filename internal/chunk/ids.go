package chunk

import (
	"encoding/hex"
	"fmt"

	"github.com/go-crypt/x/blake2b"

	"auditrag/internal/hierarchy"
)

// idPrefixLen is how many hex characters of the digest form the chunk id.
const idPrefixLen = 16

// factKey builds the identity string for a fact chunk. Two chunks built
// from the same document, node, period and fiscal year always collide,
// which is what makes rebuilds idempotent.
func factKey(sourceID, nodeID string, period hierarchy.PeriodType, fiscalYear int) string {
	return fmt.Sprintf("%s|%s|%s|%d", sourceID, nodeID, period, fiscalYear)
}

// clauseKey builds the identity string for a legal paragraph chunk. The
// paragraph label keeps multiple paragraphs under one clause distinct.
func clauseKey(sourceID, nodeID, paragraph string) string {
	return fmt.Sprintf("%s|%s|para:%s|%s|%d", sourceID, nodeID, paragraph, hierarchy.PeriodSnapshot, 0)
}

// sectionKey builds the identity string for a section entry. It hashes the
// rendered text, so a section whose members changed gets a new id and its
// old point is dropped as stale.
func sectionKey(sourceID, text string) string {
	return fmt.Sprintf("%s|section|%s", sourceID, text)
}

// digestID hashes an identity string with BLAKE2b-256 and returns the
// 16-hex chunk id together with the full 64-hex digest.
func digestID(key string) (id, digest string) {
	sum := blake2b.Sum256([]byte(key))
	digest = hex.EncodeToString(sum[:])
	return digest[:idPrefixLen], digest
}
