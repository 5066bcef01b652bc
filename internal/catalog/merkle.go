package catalog

import (
	"github.com/waxstore/wax/internal/binenc"
)

// MerkleRoot computes a binary Merkle tree over the frame table, in frame
// order. Each leaf is the SHA-256 of that frame's encoded bytes; an odd
// level is completed by duplicating its last node, the standard fix for
// an unbalanced tree. An empty frame table hashes to the all-zero root.
func MerkleRoot(frames []*FrameMeta) [32]byte {
	if len(frames) == 0 {
		return [32]byte{}
	}

	level := make([][32]byte, len(frames))
	for i, f := range frames {
		e := binenc.NewEncoder(256)
		f.Encode(e)
		level[i] = binenc.Sum256(e.Bytes())
	}

	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, binenc.Sum256Many(level[i][:], level[i+1][:]))
			} else {
				next = append(next, binenc.Sum256Many(level[i][:], level[i][:]))
			}
		}
		level = next
	}
	return level[0]
}
