package walring

import (
	"fmt"

	"github.com/waxstore/wax/internal/bda"
	"github.com/waxstore/wax/internal/binenc"
)

// Entry is one decoded WAL record yielded during a scan, along with the
// ring position it started at (useful for diagnostics and for computing
// the new writePos after recovery).
type Entry struct {
	Sequence uint64
	Payload  []byte
	Pos      uint64
}

// ScanResult summarizes a recovery scan.
type ScanResult struct {
	Entries []Entry
	// StoppedAt is the ring position the scan stopped at: either a
	// sentinel, the end of an exact wrap, or the first corrupt record.
	StoppedAt uint64
	// Corrupt is true if the scan stopped because of a checksum or
	// sequencing inconsistency (as opposed to a clean sentinel).
	Corrupt bool
	Err     error
}

// Scan implements the reader/recovery protocol of spec.md §4.4: starting
// at checkpointPos, read records until a sentinel, a wrap back to
// checkpointPos, or a corrupt record. Only the pending region from
// checkpointPos onward is read; a corrupt record there ends the scan at
// its position with Corrupt set and is not returned as an error. Records
// before checkpointPos are not read or validated.
func Scan(dev bda.Device, offset, size, checkpointPos uint64) (*ScanResult, error) {
	res := &ScanResult{}
	pos := checkpointPos
	lastSeq := uint64(0)
	haveLastSeq := false

	for {
		hdrBuf := make([]byte, RecordHeaderSize)
		if err := bda.ReadExactly(dev, hdrBuf, int64(offset+pos)); err != nil {
			return nil, fmt.Errorf("walring: scan: read header at %d: %w", pos, err)
		}
		hdr, err := DecodeHeader(hdrBuf)
		if err != nil {
			return nil, err
		}

		if hdr.IsSentinel() {
			res.StoppedAt = pos
			return res, nil
		}

		if hdr.IsPadding() {
			pos = advance(pos, uint64(RecordHeaderSize)+uint64(hdr.PayloadLength), size)
			if pos == checkpointPos {
				res.StoppedAt = pos
				return res, nil
			}
			continue
		}

		payload := make([]byte, hdr.PayloadLength)
		if err := bda.ReadExactly(dev, payload, int64(offset+pos)+RecordHeaderSize); err != nil {
			return nil, fmt.Errorf("walring: scan: read payload at %d: %w", pos, err)
		}
		gotSum := binenc.Sum256(payload)
		corrupt := gotSum != hdr.PayloadSHA256
		if !corrupt && haveLastSeq && hdr.Sequence <= lastSeq {
			corrupt = true
		}

		if corrupt {
			res.StoppedAt = pos
			res.Corrupt = true
			return res, nil
		}

		res.Entries = append(res.Entries, Entry{Sequence: hdr.Sequence, Payload: payload, Pos: pos})
		lastSeq = hdr.Sequence
		haveLastSeq = true

		pos = advance(pos, uint64(RecordHeaderSize)+uint64(hdr.PayloadLength), size)
		if pos == checkpointPos {
			res.StoppedAt = pos
			return res, nil
		}
	}
}

func advance(pos, n, size uint64) uint64 {
	pos += n
	if pos >= size {
		pos -= size
	}
	return pos
}

// Dedup filters entries down to those whose sequence number is strictly
// greater than lastApplied, so replaying an already-applied prefix is a
// no-op (spec.md §4.4: "idempotent... detect already applied by sequence
// number and ignore").
func Dedup(entries []Entry, lastApplied uint64) []Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Sequence > lastApplied {
			out = append(out, e)
		}
	}
	return out
}
