package versionstore

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentHash computes the FILE.hash value for a file's bytes. It is
// never combined with VCS state: staleness is decided purely from this
// hash compared against what is already persisted, per Store.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
