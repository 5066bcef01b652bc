package store

import (
	"fmt"
	"log/slog"

	"github.com/waxstore/wax/internal/bda"
	"github.com/waxstore/wax/internal/binenc"
	"github.com/waxstore/wax/internal/catalog"
	"github.com/waxstore/wax/internal/footer"
	"github.com/waxstore/wax/internal/headerpage"
	"github.com/waxstore/wax/internal/lease"
)

// Commit flushes the WAL, writes a fresh TOC and footer, flips the
// active header page, and publishes the new state to readers. It
// implements the five-step algorithm and three named checkpoints of
// spec.md §4.7.
func (c *Coordinator) Commit(tok lease.Token) error {
	c.pendingMu.Lock()
	if err := c.requireWriterLocked(tok); err != nil {
		c.pendingMu.Unlock()
		return err
	}
	c.pendingMu.Unlock()
	return c.commitLocked()
}

// commitLocked runs the commit algorithm against the current working
// state. It is shared by Commit and by WAL recovery, which replays
// pending entries into the working state and then commits them without
// re-appending to the WAL.
func (c *Coordinator) commitLocked() error {
	// Step 1: any remaining WAL records. In this build every mutating
	// op appends to the WAL synchronously when issued, so there is
	// nothing left to flush here; staged index blobs never touch the
	// WAL at all (spec.md §4.7 stage_lex_index/stage_vector_index).

	// Step 2.
	if err := c.ring.FlushFull(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	c.pendingMu.Lock()
	newFrames := make(map[catalog.FrameID]*catalog.FrameMeta, len(c.working))
	for id, fm := range c.working {
		newFrames[id] = fm
	}
	newOrder := append([]catalog.FrameID(nil), c.workingOrder...)
	pendingPayloads := c.pendingPayloads
	stagedLex := c.stagedLex
	stagedVector := c.stagedVector
	c.pendingMu.Unlock()

	heapOffset := c.footerOffset + footer.Size
	newSegments := append([]catalog.SegmentEntry(nil), c.toc.SegmentCatalog...)

	for _, id := range newOrder {
		payload, ok := pendingPayloads[id]
		if !ok || len(payload) == 0 {
			continue
		}
		fm := newFrames[id]
		if err := bda.WriteAll(c.dev, payload, int64(heapOffset)); err != nil {
			return fmt.Errorf("store: commit: write payload: %w", err)
		}
		fm.PayloadOffset = heapOffset
		heapOffset += uint64(len(payload))
	}

	var newIndexes []catalog.IndexManifest
	newIndexes = append(newIndexes, c.toc.Indexes...)
	var newTimeIndex *catalog.IndexManifest
	if c.toc.TimeIndex != nil {
		v := *c.toc.TimeIndex
		newTimeIndex = &v
	}

	for _, staged := range []*stagedIndex{stagedLex, stagedVector} {
		if staged == nil {
			continue
		}
		segID := c.nextSegmentID
		c.nextSegmentID++
		sum := binenc.Sum256(staged.bytes)
		if err := bda.WriteAll(c.dev, staged.bytes, int64(heapOffset)); err != nil {
			return fmt.Errorf("store: commit: write staged index: %w", err)
		}
		newSegments = append(newSegments, catalog.SegmentEntry{
			SegmentID: segID,
			Offset:    heapOffset,
			Length:    uint64(len(staged.bytes)),
			SHA256:    sum,
		})
		manifest := catalog.IndexManifest{SegmentID: segID, Kind: staged.kind, Length: uint64(len(staged.bytes)), SHA256: sum}
		if staged.kind == catalog.IndexKindTime {
			newTimeIndex = &manifest
		} else {
			newIndexes = append(newIndexes, manifest)
		}
		heapOffset += uint64(len(staged.bytes))
	}

	orderedFrames := make([]*catalog.FrameMeta, 0, len(newOrder))
	for _, id := range newOrder {
		orderedFrames = append(orderedFrames, newFrames[id])
	}

	newTOC := &catalog.TOC{
		Version:        catalog.TOCVersion,
		Frames:         orderedFrames,
		Indexes:        newIndexes,
		TimeIndex:      newTimeIndex,
		SegmentCatalog: newSegments,
	}
	tocBytes := newTOC.Finalize()
	tocOffset := heapOffset
	if err := bda.WriteAll(c.dev, tocBytes, int64(tocOffset)); err != nil {
		return fmt.Errorf("store: commit: write toc: %w", err)
	}
	if err := c.dev.Sync(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	c.fireCheckpoint(CheckpointAfterTOCWriteBeforeFooter)

	newFooterOffset := tocOffset + uint64(len(tocBytes))
	newGeneration := c.header.Generation + 1
	lastSeq := c.ring.NextSequence() - 1
	ft := &footer.Footer{
		TOCLength:    uint64(len(tocBytes)),
		TOCSHA256:    newTOC.SelfHash,
		Generation:   newGeneration,
		CommittedSeq: lastSeq,
	}
	if err := bda.WriteAll(c.dev, footer.Encode(ft), int64(newFooterOffset)); err != nil {
		return fmt.Errorf("store: commit: write footer: %w", err)
	}
	if err := c.dev.Sync(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	c.fireCheckpoint(CheckpointAfterFooterFsyncBeforeHeader)

	newWritePos := c.ring.WritePos()
	hp := &headerpage.Page{
		PackedVersion:   headerpage.PackedVersion(),
		SpecMajor:       c.header.SpecMajor,
		SpecMinor:       c.header.SpecMinor,
		Generation:      newGeneration,
		FileGeneration:  c.header.FileGeneration + 1,
		FooterOffset:    newFooterOffset,
		WALOffset:       c.ring.Offset(),
		WALSize:         c.ring.Size(),
		WALWritePos:     newWritePos,
		WALCheckpoint:   newWritePos,
		WALCommittedSeq: lastSeq,
		TOCSHA256:       newTOC.SelfHash,
	}
	if c.opts.WALReplayStateSnapshotEnabled {
		hp.Snapshot = headerpage.ReplaySnapshot{
			Present:       true,
			WritePos:      newWritePos,
			CheckpointPos: newWritePos,
			CommittedSeq:  lastSeq,
			EntryCount:    uint64(len(orderedFrames)),
		}
	}

	inactiveOffset := int64(headerpage.OffsetB)
	if !c.activeIsA {
		inactiveOffset = headerpage.OffsetA
	}
	if err := bda.WriteAll(c.dev, headerpage.Encode(hp), inactiveOffset); err != nil {
		return fmt.Errorf("store: commit: write header: %w", err)
	}
	c.fireCheckpoint(CheckpointAfterHeaderWriteBeforeFinalFsync)

	// Step 6.
	if err := c.dev.Sync(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	c.ring.SetCheckpoint(newWritePos)

	c.opLock.Lock()
	c.header = hp
	c.activeIsA = !c.activeIsA
	c.footerOffset = newFooterOffset
	c.toc = newTOC
	c.committed = newFrames
	c.order = newOrder
	c.opLock.Unlock()

	c.pendingMu.Lock()
	c.working = make(map[catalog.FrameID]*catalog.FrameMeta, len(newFrames))
	for id, fm := range newFrames {
		c.working[id] = fm.Clone()
	}
	c.workingOrder = append([]catalog.FrameID(nil), newOrder...)
	c.pendingPayloads = map[catalog.FrameID][]byte{}
	c.stagedLex = nil
	c.stagedVector = nil
	c.pendingMu.Unlock()

	c.opts.Logger.Info("commit complete", slog.Uint64("generation", newGeneration), slog.Int("frames", len(orderedFrames)))
	return nil
}

func (c *Coordinator) fireCheckpoint(name string) {
	if c.opts.DebugCrashHook != nil {
		c.opts.DebugCrashHook(name)
	}
}
