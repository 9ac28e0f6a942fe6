// Package checksum computes the content fingerprints used as chunk identity.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// String hashes the exact bytes of s.
func String(s string) string {
	return Sum([]byte(s))
}

// Set builds a lookup set from a list of digests.
func Set(hashes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		out[h] = struct{}{}
	}
	return out
}
