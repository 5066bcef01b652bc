package headerpage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := NewEmpty(1 << 20)
	p.Generation = 7
	p.FooterOffset = 9000
	p.WALWritePos = 128
	p.WALCheckpoint = 64
	p.WALCommittedSeq = 3
	p.TOCSHA256 = [32]byte{1, 2, 3}
	p.Snapshot = ReplaySnapshot{Present: true, WritePos: 128, CheckpointPos: 64, CommittedSeq: 3, EntryCount: 5}

	buf := Encode(p)
	require.Len(t, buf, PageSize)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, p.Generation, got.Generation)
	assert.Equal(t, p.FooterOffset, got.FooterOffset)
	assert.Equal(t, p.WALWritePos, got.WALWritePos)
	assert.Equal(t, p.TOCSHA256, got.TOCSHA256)
	assert.Equal(t, p.Snapshot, got.Snapshot)
}

func TestDecodeWithoutSnapshotLeavesItAbsent(t *testing.T) {
	p := NewEmpty(4096)
	buf := Encode(p)

	got, err := Decode(buf)
	require.NoError(t, err)
	assert.False(t, got.Snapshot.Present)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := Encode(NewEmpty(4096))
	copy(buf[0:4], "XXXX")
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	buf := Encode(NewEmpty(4096))
	buf[200] ^= 0xff
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestDecodeRejectsWrongLength(t *testing.T) {
	_, err := Decode(make([]byte, PageSize-1))
	assert.Error(t, err)
}

func TestDecodeRejectsUnsupportedSpecMajor(t *testing.T) {
	p := NewEmpty(4096)
	p.SpecMajor = specMajor + 1
	buf := Encode(p)
	_, err := Decode(buf)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSelectActivePicksHigherGeneration(t *testing.T) {
	pa := NewEmpty(4096)
	pa.Generation = 5
	pb := NewEmpty(4096)
	pb.Generation = 9

	active, isA, err := SelectActive(Encode(pa), Encode(pb))
	require.NoError(t, err)
	assert.False(t, isA)
	assert.Equal(t, uint64(9), active.Generation)
}

func TestSelectActiveFallsBackToValidPageWhenOtherCorrupt(t *testing.T) {
	pa := NewEmpty(4096)
	pa.Generation = 5
	goodA := Encode(pa)

	badB := Encode(NewEmpty(4096))
	badB[0] = 'X'

	active, isA, err := SelectActive(goodA, badB)
	require.NoError(t, err)
	assert.True(t, isA)
	assert.Equal(t, uint64(5), active.Generation)
}

func TestSelectActiveFailsWhenBothCorrupt(t *testing.T) {
	bad := Encode(NewEmpty(4096))
	bad[0] = 'X'

	_, _, err := SelectActive(bad, bad)
	assert.Error(t, err)
}
