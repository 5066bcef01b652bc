package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerkleRootEmptyIsZero(t *testing.T) {
	assert.Equal(t, [32]byte{}, MerkleRoot(nil))
}

func TestMerkleRootDeterministicAndOrderSensitive(t *testing.T) {
	f1 := &FrameMeta{ID: 1, Status: StatusActive}
	f2 := &FrameMeta{ID: 2, Status: StatusActive}
	f3 := &FrameMeta{ID: 3, Status: StatusActive}

	r1 := MerkleRoot([]*FrameMeta{f1, f2, f3})
	r2 := MerkleRoot([]*FrameMeta{f1, f2, f3})
	assert.Equal(t, r1, r2)

	reordered := MerkleRoot([]*FrameMeta{f3, f2, f1})
	assert.NotEqual(t, r1, reordered)
}

func TestMerkleRootChangesWithContent(t *testing.T) {
	f1 := &FrameMeta{ID: 1, Status: StatusActive}
	f2 := &FrameMeta{ID: 1, Status: StatusDeleted}

	r1 := MerkleRoot([]*FrameMeta{f1})
	r2 := MerkleRoot([]*FrameMeta{f2})
	assert.NotEqual(t, r1, r2)
}

func TestMerkleRootHandlesOddFrameCount(t *testing.T) {
	frames := []*FrameMeta{
		{ID: 1, Status: StatusActive},
		{ID: 2, Status: StatusActive},
		{ID: 3, Status: StatusActive},
	}
	root := MerkleRoot(frames)
	assert.NotEqual(t, [32]byte{}, root)
}
