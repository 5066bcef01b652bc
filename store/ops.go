package store

import (
	"fmt"

	"github.com/waxstore/wax/internal/bda"
	"github.com/waxstore/wax/internal/binenc"
	"github.com/waxstore/wax/internal/catalog"
	"github.com/waxstore/wax/internal/compress"
	"github.com/waxstore/wax/internal/lease"
)

// PutMeta carries the caller-supplied subset of FrameMeta that Put does
// not derive itself (id, offsets, and hashes are always computed by the
// coordinator).
type PutMeta struct {
	Role              catalog.FrameRole
	URI               *string
	Title             *string
	Tags              []string
	Labels            []string
	Metadata          map[string]string
	SearchText        string
	TimestampMS       *int64
	ContentDatesMS    []int64
	ParentID          *catalog.FrameID
	ChunkIndex        uint32
	ChunkCount        uint32
	ChunkManifest     *catalog.ChunkManifestRef
	CanonicalEncoding catalog.CanonicalEncoding
}

// applyEntryToWorking folds one WAL entry into the writer's working
// catalog, used both when a live op is issued and when recovery replays
// a WAL entry.
func (c *Coordinator) applyEntryToWorking(w *catalog.WALEntry) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	return catalog.Apply(c.working, &c.workingOrder, c.pendingPayloads, w)
}

// Put assigns the next FrameId, appends a putFrame WAL entry (carrying
// the compressed payload), and applies it to the writer's working
// catalog immediately. The new frame is invisible to readers until
// Commit.
func (c *Coordinator) Put(tok lease.Token, canonicalBytes []byte, meta PutMeta) (catalog.FrameID, error) {
	c.pendingMu.Lock()
	if err := c.requireWriterLocked(tok); err != nil {
		c.pendingMu.Unlock()
		return 0, err
	}
	id := c.nextFrameID
	c.nextFrameID++
	c.pendingMu.Unlock()

	canonicalSum := binenc.Sum256(canonicalBytes)
	stored, err := compress.Compress(canonicalBytes, meta.CanonicalEncoding)
	if err != nil {
		return 0, fmt.Errorf("store: put: compress: %w", err)
	}
	storedSum := binenc.Sum256(stored)

	fm := &catalog.FrameMeta{
		ID:                id,
		TimestampMS:       meta.TimestampMS,
		URI:               meta.URI,
		Title:             meta.Title,
		CanonicalLength:   uint64(len(canonicalBytes)),
		StoredLength:      uint64(len(stored)),
		CanonicalEncoding: meta.CanonicalEncoding,
		CanonicalSHA256:   canonicalSum,
		StoredSHA256:      storedSum,
		Role:              meta.Role,
		ParentID:          meta.ParentID,
		Status:            catalog.StatusActive,
		Tags:              meta.Tags,
		Metadata:          meta.Metadata,
		SearchText:        meta.SearchText,
		ChunkIndex:        meta.ChunkIndex,
		ChunkCount:        meta.ChunkCount,
		ChunkManifest:     meta.ChunkManifest,
	}
	if meta.TimestampMS != nil {
		fm.AnchorTimestampMS = *meta.TimestampMS
	}
	if len(meta.Labels) > 0 {
		fm.Labels = make(map[string]struct{}, len(meta.Labels))
		for _, l := range meta.Labels {
			fm.Labels[l] = struct{}{}
		}
	}
	if meta.ContentDatesMS != nil {
		dates := append([]int64(nil), meta.ContentDatesMS...)
		fm.ContentDatesMS = &dates
	}

	w := &catalog.WALEntry{Op: catalog.OpPutFrame, PutFrame: fm, PutFramePayload: stored}
	if err := c.appendWAL(w); err != nil {
		return 0, err
	}
	if err := c.applyEntryToWorking(w); err != nil {
		return 0, err
	}
	return id, nil
}

// Delete marks an active frame deleted. The frame's metadata is
// retained; it simply stops participating in the live set.
func (c *Coordinator) Delete(tok lease.Token, id catalog.FrameID) error {
	c.pendingMu.Lock()
	if err := c.requireWriterLocked(tok); err != nil {
		c.pendingMu.Unlock()
		return err
	}
	fm, ok := c.working[id]
	c.pendingMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: frame %d", ErrFrameMissing, id)
	}
	if fm.Status != catalog.StatusActive {
		return fmt.Errorf("%w: frame %d", ErrFrameNotActive, id)
	}

	w := &catalog.WALEntry{Op: catalog.OpDeleteFrame, DeleteFrameID: id}
	if err := c.appendWAL(w); err != nil {
		return err
	}
	return c.applyEntryToWorking(w)
}

// Supersede links old -> new: both frames must already exist. The link
// fields are updated when this entry is applied (immediately, though
// visible to readers only after Commit).
func (c *Coordinator) Supersede(tok lease.Token, oldID, newID catalog.FrameID) error {
	c.pendingMu.Lock()
	if err := c.requireWriterLocked(tok); err != nil {
		c.pendingMu.Unlock()
		return err
	}
	_, oldOK := c.working[oldID]
	_, newOK := c.working[newID]
	c.pendingMu.Unlock()
	if !oldOK {
		return fmt.Errorf("%w: frame %d", ErrFrameMissing, oldID)
	}
	if !newOK {
		return fmt.Errorf("%w: frame %d", ErrFrameMissing, newID)
	}

	w := &catalog.WALEntry{Op: catalog.OpSupersedeFrame, SupersedeOldID: oldID, SupersedeNewID: newID}
	if err := c.appendWAL(w); err != nil {
		return err
	}
	return c.applyEntryToWorking(w)
}

// PutEmbedding appends a putEmbedding WAL entry associating a vector
// with an existing frame.
func (c *Coordinator) PutEmbedding(tok lease.Token, id catalog.FrameID, vector []float64) error {
	c.pendingMu.Lock()
	if err := c.requireWriterLocked(tok); err != nil {
		c.pendingMu.Unlock()
		return err
	}
	_, ok := c.working[id]
	c.pendingMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: frame %d", ErrFrameMissing, id)
	}

	w := &catalog.WALEntry{Op: catalog.OpPutEmbedding, EmbeddingFrameID: id, EmbeddingVector: vector}
	if err := c.appendWAL(w); err != nil {
		return err
	}
	return c.applyEntryToWorking(w)
}

// StageLexIndex records a full-text index segment to be written as part
// of the next commit. It does not touch the WAL: per spec.md §4.7 it is
// a pending reference only, not a catalog mutation.
func (c *Coordinator) StageLexIndex(tok lease.Token, body []byte, docCount uint64) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if err := c.requireWriterLocked(tok); err != nil {
		return err
	}
	c.opts.Logger.Info("staged lex index", "bytes", len(body), "doc_count", docCount)
	c.stagedLex = &stagedIndex{bytes: body, kind: catalog.IndexKindLex}
	return nil
}

// StageVectorIndex records a vector index segment to be written as part
// of the next commit.
func (c *Coordinator) StageVectorIndex(tok lease.Token, body []byte, dim, count uint64) error {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if err := c.requireWriterLocked(tok); err != nil {
		return err
	}
	c.opts.Logger.Info("staged vector index", "bytes", len(body), "dim", dim, "count", count)
	c.stagedVector = &stagedIndex{bytes: body, kind: catalog.IndexKindVector}
	return nil
}

// appendWAL serializes and appends one WAL entry to the ring,
// triggering a proactive commit signal (as ErrFull, surfaced to the
// caller) if the ring cannot accept it without overwriting pending
// records.
func (c *Coordinator) appendWAL(w *catalog.WALEntry) error {
	payload := w.Encode()
	if _, err := c.ring.Append(payload); err != nil {
		return err
	}
	return nil
}

// ReadPayload returns a frame's decompressed canonical bytes, verifying
// both the stored and canonical hashes. Results are served from (and
// populate) the coordinator's payload cache.
func (c *Coordinator) ReadPayload(id catalog.FrameID) ([]byte, error) {
	if cached, ok := c.cache.Get(uint64(id)); ok {
		return cached, nil
	}

	c.opLock.RLock()
	fm, ok := c.committed[id]
	c.opLock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: frame %d", ErrFrameMissing, id)
	}

	stored := make([]byte, fm.StoredLength)
	if err := bda.ReadExactly(c.dev, stored, int64(fm.PayloadOffset)); err != nil {
		return nil, fmt.Errorf("store: read_payload: %w", err)
	}
	if binenc.Sum256(stored) != fm.StoredSHA256 {
		return nil, fmt.Errorf("%w: frame %d stored hash", ErrHashMismatch, id)
	}

	canonical, err := compress.Decompress(stored, fm.CanonicalEncoding, int(fm.CanonicalLength))
	if err != nil {
		return nil, fmt.Errorf("store: read_payload: decompress: %w", err)
	}
	if binenc.Sum256(canonical) != fm.CanonicalSHA256 {
		return nil, fmt.Errorf("%w: frame %d canonical hash", ErrHashMismatch, id)
	}
	c.cache.Put(uint64(id), canonical)
	return canonical, nil
}

func hashCanonical(b []byte) [32]byte { return binenc.Sum256(b) }

// putRawForRewrite inserts a frame with already-computed metadata and
// (possibly empty) stored payload bytes directly, preserving its
// FrameId and hashes exactly. It exists only for Rewrite, which must
// reproduce the source's FrameIds and hashes rather than recompute them.
func (c *Coordinator) putRawForRewrite(tok lease.Token, fm *catalog.FrameMeta, payload []byte) error {
	c.pendingMu.Lock()
	if err := c.requireWriterLocked(tok); err != nil {
		c.pendingMu.Unlock()
		return err
	}
	if fm.ID >= c.nextFrameID {
		c.nextFrameID = fm.ID + 1
	}
	c.pendingMu.Unlock()

	w := &catalog.WALEntry{Op: catalog.OpPutFrame, PutFrame: fm, PutFramePayload: payload}
	if err := c.appendWAL(w); err != nil {
		return err
	}
	return c.applyEntryToWorking(w)
}

// FrameMeta returns a snapshot of the current committed metadata for id.
func (c *Coordinator) FrameMeta(id catalog.FrameID) (*catalog.FrameMeta, error) {
	c.opLock.RLock()
	defer c.opLock.RUnlock()
	fm, ok := c.committed[id]
	if !ok {
		return nil, fmt.Errorf("%w: frame %d", ErrFrameMissing, id)
	}
	return fm.Clone(), nil
}
