// Package store implements the Wax store coordinator: the single
// writer-lease state machine that owns the catalog, the WAL ring, and
// the commit protocol described in spec.md §4.7.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/waxstore/wax/internal/bda"
	"github.com/waxstore/wax/internal/catalog"
	"github.com/waxstore/wax/internal/filelock"
	"github.com/waxstore/wax/internal/footer"
	"github.com/waxstore/wax/internal/headerpage"
	"github.com/waxstore/wax/internal/ioexec"
	"github.com/waxstore/wax/internal/lease"
	"github.com/waxstore/wax/internal/rwmutex"
	"github.com/waxstore/wax/internal/walring"
)

// Named commit checkpoints, used by crash-recovery tests to interrupt
// Commit at an exact, spec-defined point (spec.md §4.7).
const (
	CheckpointAfterTOCWriteBeforeFooter        = "after_toc_write_before_footer"
	CheckpointAfterFooterFsyncBeforeHeader     = "after_footer_fsync_before_header"
	CheckpointAfterHeaderWriteBeforeFinalFsync = "after_header_write_before_final_fsync"
)

type stagedIndex struct {
	bytes []byte
	kind  catalog.IndexManifestKind
}

// Coordinator is a single open Wax store. It is safe for concurrent use:
// any number of readers may call the read-only operations concurrently
// with at most one writer lease holder mutating state between
// AcquireWriter and Commit/ReleaseWriter.
type Coordinator struct {
	path string
	opts Options

	flock  *filelock.Lock
	dev    *bda.FileDevice
	ioExec *ioexec.Executor
	cache  *bda.PayloadCache

	leaseMgr *lease.Manager

	// opLock guards every field below against concurrent readers and
	// the single writer's publish step. Readers take RLock; the writer
	// takes Lock only for the instant it publishes a new snapshot.
	opLock *rwmutex.RWLock

	header         *headerpage.Page
	activeIsA      bool
	fileGeneration uint64
	footerOffset   uint64
	toc            *catalog.TOC
	committed      map[catalog.FrameID]*catalog.FrameMeta
	order          []catalog.FrameID
	nextSegmentID  uint64

	ring *walring.Ring

	// pendingMu is the unfair hot-path mutex guarding the writer's
	// working state (spec.md §4.8 "unfair mutex ... pending-ops queue").
	pendingMu       rwmutex.Unfair
	writerHeld      bool
	writerTok       lease.Token
	working         map[catalog.FrameID]*catalog.FrameMeta
	workingOrder    []catalog.FrameID
	pendingPayloads map[catalog.FrameID][]byte
	nextFrameID     catalog.FrameID
	stagedLex       *stagedIndex
	stagedVector    *stagedIndex

	closedMu sync.Mutex
	closed   bool
}

// Stats reports the coordinator counters named in spec.md §4.7.
type Stats struct {
	FrameCount      int
	PendingFrames   int
	WALPendingBytes uint64
	WALSize         uint64
	Generation      uint64
}

// Create initializes a brand-new store at path: two header pages, a
// zeroed WAL region, and an empty TOC + footer. path must not already
// exist as a non-empty file.
func Create(path string, walSize uint64, opts Options) (c *Coordinator, err error) {
	opts = opts.withDefaults()
	if walSize == 0 {
		walSize = DefaultWALSize
	}

	if info, statErr := os.Stat(path); statErr == nil && info.Size() > 0 {
		return nil, fmt.Errorf("%w: %s", ErrPathConflict, path)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: create: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(path)
		}
	}()
	dev := bda.NewFileDeviceFromFile(f)

	lk, err := filelock.Acquire(f, filelock.Exclusive)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("store: create: acquire file lock: %w", err)
	}

	totalSize := uint64(headerpage.WALOffset) + walSize
	if err := bda.EnsureSize(dev, int64(totalSize)); err != nil {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("store: create: %w", err)
	}

	emptyTOC := catalog.NewEmpty()
	tocBytes := emptyTOC.Finalize()
	tocOffset := totalSize
	if err := bda.WriteAll(dev, tocBytes, int64(tocOffset)); err != nil {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("store: create: write toc: %w", err)
	}

	ft := &footer.Footer{TOCLength: uint64(len(tocBytes)), TOCSHA256: emptyTOC.SelfHash, Generation: 1}
	footerOffset := tocOffset + uint64(len(tocBytes))
	if err := bda.WriteAll(dev, footer.Encode(ft), int64(footerOffset)); err != nil {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("store: create: write footer: %w", err)
	}

	hp := headerpage.NewEmpty(walSize)
	hp.FooterOffset = footerOffset
	hp.TOCSHA256 = emptyTOC.SelfHash
	for _, off := range []int64{headerpage.OffsetA, headerpage.OffsetB} {
		if err := bda.WriteAll(dev, headerpage.Encode(hp), off); err != nil {
			lk.Unlock()
			dev.Close()
			return nil, fmt.Errorf("store: create: write header: %w", err)
		}
	}
	if err := dev.Sync(); err != nil {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("store: create: %w", err)
	}

	c = &Coordinator{
		path:         path,
		opts:         opts,
		flock:        lk,
		dev:          dev,
		ioExec:       ioexec.New(opts.IOThreadPoolConcurrency, opts.IOThreadPoolLabel),
		cache:        bda.NewPayloadCache(opts.PayloadCacheCapacity),
		leaseMgr:     lease.New(),
		opLock:       rwmutex.New(),
		header:       hp,
		activeIsA:    true,
		footerOffset: footerOffset,
		toc:          emptyTOC,
		committed:    map[catalog.FrameID]*catalog.FrameMeta{},
		ring:         walring.New(dev, headerpage.WALOffset, walSize, 0, 0, 1, opts.WALFsyncPolicy),
	}
	opts.Logger.Info("store created", slog.String("path", path), slog.Uint64("wal_size", walSize))
	return c, nil
}

// Open opens an existing store: selects the valid header page with the
// highest generation, recovers any WAL records past the checkpoint, and
// publishes a read snapshot.
func Open(path string, opts Options) (*Coordinator, error) {
	opts = opts.withDefaults()

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	dev := bda.NewFileDeviceFromFile(f)

	lk, err := filelock.Acquire(f, filelock.Exclusive)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("store: open: acquire file lock: %w", err)
	}

	rawA := make([]byte, headerpage.PageSize)
	rawB := make([]byte, headerpage.PageSize)
	if err := bda.ReadExactly(dev, rawA, headerpage.OffsetA); err != nil {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("store: open: read header A: %w", err)
	}
	if err := bda.ReadExactly(dev, rawB, headerpage.OffsetB); err != nil {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("store: open: read header B: %w", err)
	}
	hp, activeIsA, err := headerpage.SelectActive(rawA, rawB)
	if err != nil {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("%w: %v", ErrHeaderCorrupt, err)
	}

	footerOffset := hp.FooterOffset
	ft, err := footer.ReadAt(dev, int64(footerOffset))
	if err != nil {
		// The header's recorded footer offset is suspect; fall back to a
		// backward scan for the last valid footer record (spec.md §4.6).
		size, sizeErr := dev.Size()
		if sizeErr != nil {
			lk.Unlock()
			dev.Close()
			return nil, fmt.Errorf("%w: %v", ErrTOCCorrupt, sizeErr)
		}
		scannedOffset, scannedFooter, scanErr := footer.Scan(dev, size, footer.DefaultScanWindow)
		if scanErr != nil {
			lk.Unlock()
			dev.Close()
			return nil, fmt.Errorf("%w: header footer offset %d unreadable (%v), scan fallback failed: %v", ErrTOCCorrupt, hp.FooterOffset, err, scanErr)
		}
		opts.Logger.Warn("header footer offset unreadable, recovered via backward scan",
			slog.Uint64("header_footer_offset", hp.FooterOffset), slog.Int64("scanned_footer_offset", scannedOffset))
		footerOffset = uint64(scannedOffset)
		ft = scannedFooter
	}
	tocBuf := make([]byte, ft.TOCLength)
	if err := bda.ReadExactly(dev, tocBuf, int64(footerOffset-ft.TOCLength)); err != nil {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("%w: %v", ErrTOCCorrupt, err)
	}
	toc, err := catalog.Parse(tocBuf)
	if err != nil {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("%w: %v", ErrTOCCorrupt, err)
	}
	if toc.SelfHash != ft.TOCSHA256 {
		lk.Unlock()
		dev.Close()
		return nil, fmt.Errorf("%w: toc hash does not match footer", ErrTOCCorrupt)
	}

	c := &Coordinator{
		path:         path,
		opts:         opts,
		flock:        lk,
		dev:          dev,
		ioExec:       ioexec.New(opts.IOThreadPoolConcurrency, opts.IOThreadPoolLabel),
		cache:        bda.NewPayloadCache(opts.PayloadCacheCapacity),
		leaseMgr:     lease.New(),
		opLock:       rwmutex.New(),
		header:       hp,
		activeIsA:    activeIsA,
		footerOffset: footerOffset,
		toc:          toc,
		committed:    map[catalog.FrameID]*catalog.FrameMeta{},
		ring:         walring.New(dev, hp.WALOffset, hp.WALSize, hp.WALWritePos, hp.WALCheckpoint, hp.WALCommittedSeq+1, opts.WALFsyncPolicy),
	}
	for _, fm := range toc.Frames {
		c.committed[fm.ID] = fm
		c.order = append(c.order, fm.ID)
	}
	c.nextSegmentID = nextSegmentIDAfter(toc)

	if err := c.recoverWAL(); err != nil {
		lk.Unlock()
		dev.Close()
		return nil, err
	}

	opts.Logger.Info("store opened", slog.String("path", path), slog.Uint64("generation", hp.Generation))
	return c, nil
}

// recoverWAL replays any WAL records past the header's checkpoint
// position and, if any were found, performs a recovery commit so the
// store reaches a fully durable state before serving traffic.
func (c *Coordinator) recoverWAL() error {
	scan, err := walring.Scan(c.dev, c.ring.Offset(), c.ring.Size(), c.ring.CheckpointPos())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWALCorrupt, err)
	}
	entries := walring.Dedup(scan.Entries, c.header.WALCommittedSeq)
	if len(entries) == 0 {
		return nil
	}

	c.opts.Logger.Info("replaying wal records", slog.Int("count", len(entries)))

	tok, err := c.leaseMgr.Acquire(context.Background(), lease.Policy{Kind: lease.PolicyFailImmediate})
	if err != nil {
		return fmt.Errorf("store: recovery: %w", err)
	}
	c.beginWorkingState(tok)

	var lastSeq uint64
	for _, e := range entries {
		w, err := catalog.DecodeWALEntry(e.Payload)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrWALCorrupt, err)
		}
		if err := c.applyEntryToWorking(w); err != nil {
			return fmt.Errorf("%w: %v", ErrWALCorrupt, err)
		}
		lastSeq = e.Sequence
	}
	// Continue the ring after the replayed records so the recovery commit
	// checkpoints past them and later appends use fresh sequence numbers.
	c.ring = walring.New(c.dev, c.ring.Offset(), c.ring.Size(), scan.StoppedAt, c.ring.CheckpointPos(), lastSeq+1, c.opts.WALFsyncPolicy)

	if err := c.commitLocked(); err != nil {
		return fmt.Errorf("store: recovery commit: %w", err)
	}
	return c.leaseMgr.Release(tok)
}

// AcquireWriter blocks (or fails, or times out) per policy until the
// single writer lease is available, then returns an opaque token.
func (c *Coordinator) AcquireWriter(ctx context.Context, policy lease.Policy) (lease.Token, error) {
	if c.isClosed() {
		return lease.Token{}, ErrClosed
	}
	tok, err := c.leaseMgr.Acquire(ctx, policy)
	if err != nil {
		switch err {
		case lease.ErrBusy:
			return lease.Token{}, fmt.Errorf("%w", ErrWriterBusy)
		case lease.ErrTimeout:
			return lease.Token{}, fmt.Errorf("%w", ErrWriterTimeout)
		default:
			return lease.Token{}, err
		}
	}
	c.beginWorkingState(tok)
	return tok, nil
}

// ReleaseWriter discards the writer's uncommitted working state and frees
// the lease. WAL records already appended by the writer's operations stay
// in the ring: the next Commit checkpoints past them without applying
// them, and an Open before that replays them.
func (c *Coordinator) ReleaseWriter(tok lease.Token) error {
	c.pendingMu.Lock()
	c.resetWorkingStateLocked()
	c.pendingMu.Unlock()
	return c.leaseMgr.Release(tok)
}

func (c *Coordinator) beginWorkingState(tok lease.Token) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.writerHeld = true
	c.writerTok = tok
	c.working = make(map[catalog.FrameID]*catalog.FrameMeta, len(c.committed))
	c.opLock.RLock()
	for id, fm := range c.committed {
		c.working[id] = fm.Clone()
	}
	c.workingOrder = append([]catalog.FrameID(nil), c.order...)
	maxID := catalog.FrameID(0)
	haveAny := len(c.order) > 0
	for _, id := range c.order {
		if id >= maxID {
			maxID = id
		}
	}
	c.opLock.RUnlock()
	if haveAny {
		c.nextFrameID = maxID + 1
	} else {
		c.nextFrameID = 0
	}
	c.pendingPayloads = map[catalog.FrameID][]byte{}
	c.stagedLex = nil
	c.stagedVector = nil
}

func (c *Coordinator) resetWorkingStateLocked() {
	c.writerHeld = false
	c.working = nil
	c.workingOrder = nil
	c.pendingPayloads = nil
	c.stagedLex = nil
	c.stagedVector = nil
}

func (c *Coordinator) requireWriterLocked(tok lease.Token) error {
	if !c.writerHeld || tok != c.writerTok {
		return ErrNoWriterHeld
	}
	return nil
}

// Stats returns a point-in-time snapshot of store counters.
func (c *Coordinator) Stats() Stats {
	c.opLock.RLock()
	defer c.opLock.RUnlock()
	c.pendingMu.Lock()
	pending := len(c.workingOrder) - len(c.order)
	if pending < 0 {
		pending = 0
	}
	c.pendingMu.Unlock()
	return Stats{
		FrameCount:      len(c.committed),
		PendingFrames:   pending,
		WALPendingBytes: c.ring.PendingBytes(),
		WALSize:         c.ring.Size(),
		Generation:      c.header.Generation,
	}
}

// Close releases the file lock and underlying device. It fails if a
// writer lease is currently outstanding.
func (c *Coordinator) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	if c.closed {
		return nil
	}
	if _, held := c.leaseMgr.Holder(); held {
		return fmt.Errorf("store: close: %w", ErrWriterBusy)
	}
	c.closed = true
	if err := c.flock.Unlock(); err != nil {
		return err
	}
	return c.dev.Close()
}

func (c *Coordinator) isClosed() bool {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()
	return c.closed
}

func nextSegmentIDAfter(t *catalog.TOC) uint64 {
	max := uint64(0)
	for _, s := range t.SegmentCatalog {
		if s.SegmentID >= max {
			max = s.SegmentID + 1
		}
	}
	return max
}
