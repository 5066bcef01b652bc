// Package binenc implements the deterministic little-endian binary codec
// and SHA-256 checksums shared by every on-disk structure in Wax: header
// pages, WAL records, the TOC, and the footer.
package binenc

import "crypto/sha256"

// Sum256 hashes an arbitrary byte span with SHA-256.
func Sum256(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// Sum256Many hashes the concatenation of several byte spans without
// allocating an intermediate buffer.
func Sum256Many(parts ...[]byte) [32]byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Equal256 compares two 32-byte digests.
func Equal256(a, b [32]byte) bool {
	return a == b
}
