package walring

import (
	"errors"
	"fmt"

	"github.com/waxstore/wax/internal/bda"
)

// ErrFull is returned by Append when the new record would overwrite the
// pending region [checkpointPos, writePos), signalling the coordinator to
// force a commit (advancing checkpointPos) and retry.
var ErrFull = errors.New("walring: ring full, commit required")

// FsyncKind selects when Append fsyncs the device, per spec.md §6
// wal_fsync_policy.
type FsyncKind uint8

const (
	FsyncOnCommit FsyncKind = iota
	FsyncAlways
	FsyncEveryBytes
)

// FsyncPolicy configures Ring's fsync behavior.
type FsyncPolicy struct {
	Kind       FsyncKind
	EveryBytes uint64 // only meaningful when Kind == FsyncEveryBytes
}

// Ring is the fixed-size circular WAL region described in spec.md §4.4.
// It owns the two persisted cursors (writePos, checkpointPos) and the
// monotonically increasing sequence counter; the coordinator is
// responsible for persisting those cursors into the header page at
// commit time.
type Ring struct {
	dev    bda.Device
	offset uint64
	size   uint64

	writePos      uint64
	checkpointPos uint64
	nextSeq       uint64

	policy           FsyncPolicy
	bytesSinceSync   uint64
}

// New constructs a Ring bound to an already-sized device region. writePos
// and checkpointPos are positions relative to offset, within [0, size);
// nextSeq is the sequence number the next
// appended record will use.
func New(dev bda.Device, offset, size, writePos, checkpointPos, nextSeq uint64, policy FsyncPolicy) *Ring {
	return &Ring{
		dev:           dev,
		offset:        offset,
		size:          size,
		writePos:      writePos,
		checkpointPos: checkpointPos,
		nextSeq:       nextSeq,
		policy:        policy,
	}
}

func (r *Ring) WritePos() uint64      { return r.writePos }
func (r *Ring) CheckpointPos() uint64 { return r.checkpointPos }
func (r *Ring) NextSequence() uint64  { return r.nextSeq }
func (r *Ring) Size() uint64          { return r.size }
func (r *Ring) Offset() uint64        { return r.offset }

// SetCheckpoint is called by the coordinator after a successful commit
// to advance the durable tail.
func (r *Ring) SetCheckpoint(pos uint64) { r.checkpointPos = pos }

// ringDistance returns the forward distance from a to b within the ring,
// treating the ring as size bytes long.
func (r *Ring) ringDistance(a, b uint64) uint64 {
	if b >= a {
		return b - a
	}
	return r.size - a + b
}

// PendingBytes returns the number of bytes appended since the last
// commit (between checkpointPos and writePos, in ring order).
func (r *Ring) PendingBytes() uint64 {
	return r.ringDistance(r.checkpointPos, r.writePos)
}

// NeedsProactiveCommit reports whether pending bytes have crossed the
// configured proactive-commit thresholds (spec.md §4.4, §6).
func (r *Ring) NeedsProactiveCommit(thresholdPercent int, maxBytes, minPendingBytes uint64) bool {
	pending := r.PendingBytes()
	if pending < minPendingBytes {
		return false
	}
	floor := maxBytes
	pct := uint64(thresholdPercent) * r.size / 100
	if pct > floor {
		floor = pct
	}
	return floor > 0 && pending >= floor
}

func (r *Ring) absolute(relPos uint64) int64 {
	return int64(r.offset + relPos)
}

// remainingBeforeWrap is the number of contiguous bytes from writePos to
// the physical end of the ring.
func (r *Ring) remainingBeforeWrap() uint64 {
	return r.size - r.writePos
}

// Append writes one data record carrying payload, following the writer
// protocol of spec.md §4.4: pad-and-wrap if the record would not fit
// contiguously, refuse if it would overwrite the pending region, then
// write header+payload and fsync per policy. It returns the sequence
// number assigned to the record.
func (r *Ring) Append(payload []byte) (uint64, error) {
	recLen := uint64(RecordHeaderSize + len(payload))
	if recLen > r.size {
		return 0, fmt.Errorf("walring: record of %d bytes does not fit in a %d byte ring", recLen, r.size)
	}

	if rem := r.remainingBeforeWrap(); rem < recLen {
		if err := r.padAndWrap(rem); err != nil {
			return 0, err
		}
	}

	if err := r.checkNoOverwrite(recLen); err != nil {
		return 0, err
	}

	seq := r.nextSeq
	rec := NewDataRecord(seq, payload)
	if err := bda.WriteAll(r.dev, rec, r.absolute(r.writePos)); err != nil {
		return 0, fmt.Errorf("walring: append: %w", err)
	}
	r.writePos += recLen
	r.nextSeq++
	r.bytesSinceSync += recLen

	if err := r.maybeSync(); err != nil {
		return 0, err
	}
	return seq, nil
}

// padAndWrap fills the remaining rem bytes before the physical ring end
// with a padding record (or zero filler, if rem is too small even for a
// bare header) and wraps writePos back to 0.
func (r *Ring) padAndWrap(rem uint64) error {
	if err := r.checkNoOverwrite(rem); err != nil {
		return err
	}
	// Wrapping onto a checkpoint at 0 while records are still pending
	// would leave writePos == checkpointPos, which reads as an empty ring.
	if r.checkpointPos == 0 && r.writePos != 0 {
		return ErrFull
	}
	var filler []byte
	if rem >= RecordHeaderSize {
		filler = NewPaddingRecord(int(rem))
	} else {
		filler = make([]byte, rem)
	}
	if len(filler) > 0 {
		if err := bda.WriteAll(r.dev, filler, r.absolute(r.writePos)); err != nil {
			return fmt.Errorf("walring: pad: %w", err)
		}
	}
	r.writePos = 0
	r.bytesSinceSync += rem
	return nil
}

// checkNoOverwrite refuses to advance writePos by n bytes if doing so
// would cross into the pending (not yet checkpointed) region.
func (r *Ring) checkNoOverwrite(n uint64) error {
	if r.checkpointPos == r.writePos {
		// Ring is fully checkpointed; any n up to the full ring size is safe.
		if n > r.size {
			return ErrFull
		}
		return nil
	}
	pendingSpan := r.ringDistance(r.checkpointPos, r.writePos)
	if n > r.size-pendingSpan {
		return ErrFull
	}
	return nil
}

func (r *Ring) maybeSync() error {
	switch r.policy.Kind {
	case FsyncAlways:
		return r.syncNow()
	case FsyncEveryBytes:
		if r.bytesSinceSync >= r.policy.EveryBytes {
			return r.syncNow()
		}
	}
	return nil
}

func (r *Ring) syncNow() error {
	if err := r.dev.Sync(); err != nil {
		return fmt.Errorf("walring: fsync: %w", err)
	}
	r.bytesSinceSync = 0
	return nil
}

// FlushFull performs the unconditional WAL fsync that precedes every
// commit (spec.md §4.7 step 2), regardless of fsync policy.
func (r *Ring) FlushFull() error {
	if err := r.dev.Sync(); err != nil {
		return fmt.Errorf("walring: fsync_full: %w", err)
	}
	r.bytesSinceSync = 0
	return nil
}
