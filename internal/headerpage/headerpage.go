// Package headerpage implements the dual-mirrored 4 KiB header page
// described in spec.md §4.5/§6: on open, both page A (offset 0) and page
// B (offset 0x1000) are read and validated, and the one with the higher
// generation that passes its checksum wins.
package headerpage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/waxstore/wax/internal/binenc"
)

const (
	PageSize   = 4096
	OffsetA    = 0x0000
	OffsetB    = 0x1000
	WALOffset  = 0x2000

	magicWAX1 = "WAX1"

	specMajor = 1
	specMinor = 0

	replaySnapshotMagic = "WALSNAP1"
	replaySnapshotSize  = 72
)

// ErrCorrupt is returned when a page fails its magic, version, or
// checksum check.
var ErrCorrupt = errors.New("headerpage: corrupt")

// ReplaySnapshot is the optional 72-byte record of the WAL cursor state
// as of the last commit (spec.md §6, wal_replay_state_snapshot_enabled).
// Commit writes it when enabled; Open does not read it and always scans
// the WAL from the checkpoint.
type ReplaySnapshot struct {
	Present       bool
	WritePos      uint64
	CheckpointPos uint64
	CommittedSeq  uint64
	EntryCount    uint64
}

// Page is the decoded form of one 4 KiB header page.
type Page struct {
	PackedVersion   uint16
	SpecMajor       uint8
	SpecMinor       uint8
	Generation      uint64
	FileGeneration  uint64
	FooterOffset    uint64
	WALOffset       uint64
	WALSize         uint64
	WALWritePos     uint64
	WALCheckpoint   uint64
	WALCommittedSeq uint64
	TOCSHA256       [32]byte
	HeaderSHA256    [32]byte
	Snapshot        ReplaySnapshot
}

// PackedVersion returns the (major<<8)|minor packed format version for
// the current build.
func PackedVersion() uint16 { return uint16(specMajor)<<8 | uint16(specMinor) }

// NewEmpty returns the header page written by create() for a brand new
// store, with generation 1 (spec.md §8 Seed Scenario 1: create → open →
// generation == 1) and the WAL cursors at the start of the ring.
func NewEmpty(walSize uint64) *Page {
	return &Page{
		PackedVersion: PackedVersion(),
		SpecMajor:     specMajor,
		SpecMinor:     specMinor,
		Generation:    1,
		WALOffset:     WALOffset,
		WALSize:       walSize,
	}
}

// Encode serializes p to exactly PageSize bytes, computing the header
// checksum over the page with the checksum field itself zeroed.
func Encode(p *Page) []byte {
	buf := make([]byte, PageSize)
	copy(buf[0:4], magicWAX1)
	binary.LittleEndian.PutUint16(buf[4:6], p.PackedVersion)
	buf[6] = p.SpecMajor
	buf[7] = p.SpecMinor
	binary.LittleEndian.PutUint64(buf[8:16], p.Generation)
	binary.LittleEndian.PutUint64(buf[16:24], p.FileGeneration)
	binary.LittleEndian.PutUint64(buf[24:32], p.FooterOffset)
	binary.LittleEndian.PutUint64(buf[32:40], p.WALOffset)
	binary.LittleEndian.PutUint64(buf[40:48], p.WALSize)
	binary.LittleEndian.PutUint64(buf[48:56], p.WALWritePos)
	binary.LittleEndian.PutUint64(buf[56:64], p.WALCheckpoint)
	binary.LittleEndian.PutUint64(buf[64:72], p.WALCommittedSeq)
	copy(buf[72:104], p.TOCSHA256[:])
	// 104:136 left zero for the checksum computation pass below.

	if p.Snapshot.Present {
		s := buf[136 : 136+replaySnapshotSize]
		copy(s[0:8], replaySnapshotMagic)
		binary.LittleEndian.PutUint64(s[8:16], p.Snapshot.WritePos)
		binary.LittleEndian.PutUint64(s[16:24], p.Snapshot.CheckpointPos)
		binary.LittleEndian.PutUint64(s[24:32], p.Snapshot.CommittedSeq)
		binary.LittleEndian.PutUint64(s[32:40], p.Snapshot.EntryCount)
	}

	sum := binenc.Sum256(buf)
	copy(buf[104:136], sum[:])
	return buf
}

// Decode validates and parses exactly PageSize bytes.
func Decode(buf []byte) (*Page, error) {
	if len(buf) != PageSize {
		return nil, fmt.Errorf("headerpage: expected %d bytes, got %d", PageSize, len(buf))
	}
	if string(buf[0:4]) != magicWAX1 {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	p := &Page{
		PackedVersion:   binary.LittleEndian.Uint16(buf[4:6]),
		SpecMajor:       buf[6],
		SpecMinor:       buf[7],
		Generation:      binary.LittleEndian.Uint64(buf[8:16]),
		FileGeneration:  binary.LittleEndian.Uint64(buf[16:24]),
		FooterOffset:    binary.LittleEndian.Uint64(buf[24:32]),
		WALOffset:       binary.LittleEndian.Uint64(buf[32:40]),
		WALSize:         binary.LittleEndian.Uint64(buf[40:48]),
		WALWritePos:     binary.LittleEndian.Uint64(buf[48:56]),
		WALCheckpoint:   binary.LittleEndian.Uint64(buf[56:64]),
		WALCommittedSeq: binary.LittleEndian.Uint64(buf[64:72]),
	}
	copy(p.TOCSHA256[:], buf[72:104])
	copy(p.HeaderSHA256[:], buf[104:136])

	if p.SpecMajor != specMajor {
		return nil, fmt.Errorf("%w: unsupported spec major version %d", ErrCorrupt, p.SpecMajor)
	}

	check := make([]byte, PageSize)
	copy(check, buf)
	var zero [32]byte
	copy(check[104:136], zero[:])
	if binenc.Sum256(check) != p.HeaderSHA256 {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	if string(buf[136:144]) == replaySnapshotMagic {
		s := buf[136 : 136+replaySnapshotSize]
		p.Snapshot = ReplaySnapshot{
			Present:       true,
			WritePos:      binary.LittleEndian.Uint64(s[8:16]),
			CheckpointPos: binary.LittleEndian.Uint64(s[16:24]),
			CommittedSeq:  binary.LittleEndian.Uint64(s[24:32]),
			EntryCount:    binary.LittleEndian.Uint64(s[32:40]),
		}
	}

	return p, nil
}

// SelectActive reads both pages and returns the valid one with the
// higher generation. If both are invalid, it fails with ErrCorrupt.
func SelectActive(rawA, rawB []byte) (active *Page, activeIsA bool, err error) {
	pa, errA := Decode(rawA)
	pb, errB := Decode(rawB)

	switch {
	case errA == nil && errB == nil:
		if pa.Generation >= pb.Generation {
			return pa, true, nil
		}
		return pb, false, nil
	case errA == nil:
		return pa, true, nil
	case errB == nil:
		return pb, false, nil
	default:
		return nil, false, fmt.Errorf("headerpage: both pages invalid: A: %v, B: %w", errA, errB)
	}
}
