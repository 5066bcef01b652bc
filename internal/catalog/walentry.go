package catalog

import (
	"fmt"

	"github.com/waxstore/wax/internal/binenc"
)

// WAL entry opcodes, spec.md §4.5.
const (
	OpPutFrame       uint8 = 0x01
	OpDeleteFrame    uint8 = 0x02
	OpSupersedeFrame uint8 = 0x03
	OpPutEmbedding   uint8 = 0x04
)

// WALEntry is the tagged union written into a single WAL record's payload.
// Exactly one of the opcode-specific field groups is populated, selected
// by Op.
type WALEntry struct {
	Op uint8

	// OpPutFrame: the new frame's metadata plus its stored (possibly
	// compressed) payload bytes. The payload travels inside the WAL
	// entry itself — the only place it is guaranteed durable until a
	// commit migrates it into the permanent content region.
	PutFrame        *FrameMeta
	PutFramePayload []byte

	// OpDeleteFrame.
	DeleteFrameID FrameID

	// OpSupersedeFrame: both frames must already exist in the catalog.
	SupersedeOldID FrameID
	SupersedeNewID FrameID

	// OpPutEmbedding.
	EmbeddingFrameID FrameID
	EmbeddingVector  []float64
}

// Encode serializes the entry as a one-byte opcode tag followed by the
// variant's fields.
func (w *WALEntry) Encode() []byte {
	e := binenc.NewEncoder(512 + len(w.PutFramePayload))
	e.PutVariant(w.Op, func(e *binenc.Encoder) {
		switch w.Op {
		case OpPutFrame:
			w.PutFrame.Encode(e)
			e.PutBlob(w.PutFramePayload)
		case OpDeleteFrame:
			e.PutUint64(uint64(w.DeleteFrameID))
		case OpSupersedeFrame:
			e.PutUint64(uint64(w.SupersedeOldID))
			e.PutUint64(uint64(w.SupersedeNewID))
		case OpPutEmbedding:
			e.PutUint64(uint64(w.EmbeddingFrameID))
			e.PutArray(len(w.EmbeddingVector), func(e *binenc.Encoder, i int) {
				e.PutFloat64(w.EmbeddingVector[i])
			})
		}
	})
	return e.Bytes()
}

// DecodeWALEntry is the inverse of Encode.
func DecodeWALEntry(payload []byte) (*WALEntry, error) {
	d := binenc.NewDecoder(payload)
	op, err := d.Variant()
	if err != nil {
		return nil, fmt.Errorf("catalog: wal entry tag: %w", err)
	}

	w := &WALEntry{Op: op}
	switch op {
	case OpPutFrame:
		fm, err := DecodeFrameMeta(d)
		if err != nil {
			return nil, fmt.Errorf("catalog: wal put_frame: %w", err)
		}
		w.PutFrame = fm
		blob, err := d.Blob()
		if err != nil {
			return nil, fmt.Errorf("catalog: wal put_frame payload: %w", err)
		}
		w.PutFramePayload = blob

	case OpDeleteFrame:
		id, err := d.Uint64()
		if err != nil {
			return nil, fmt.Errorf("catalog: wal delete_frame: %w", err)
		}
		w.DeleteFrameID = FrameID(id)

	case OpSupersedeFrame:
		old, err := d.Uint64()
		if err != nil {
			return nil, fmt.Errorf("catalog: wal supersede_frame old id: %w", err)
		}
		w.SupersedeOldID = FrameID(old)
		newID, err := d.Uint64()
		if err != nil {
			return nil, fmt.Errorf("catalog: wal supersede_frame new id: %w", err)
		}
		w.SupersedeNewID = FrameID(newID)

	case OpPutEmbedding:
		id, err := d.Uint64()
		if err != nil {
			return nil, fmt.Errorf("catalog: wal put_embedding frame id: %w", err)
		}
		w.EmbeddingFrameID = FrameID(id)
		if _, err := d.Array(func(d *binenc.Decoder, i int) error {
			v, err := d.Float64()
			if err != nil {
				return err
			}
			w.EmbeddingVector = append(w.EmbeddingVector, v)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("catalog: wal put_embedding vector: %w", err)
		}

	default:
		return nil, fmt.Errorf("catalog: unknown wal opcode 0x%02x", op)
	}

	return w, nil
}

// Apply folds the entry into an in-memory frame table, mutating frames in
// place and appending new ones. It is used both by live commit and by
// WAL replay during recovery, so the two paths can never diverge.
// pendingPayloads receives the raw bytes of any newly put frame so the
// caller can place them on the permanent content heap at commit time.
func Apply(frames map[FrameID]*FrameMeta, order *[]FrameID, pendingPayloads map[FrameID][]byte, w *WALEntry) error {
	switch w.Op {
	case OpPutFrame:
		if _, exists := frames[w.PutFrame.ID]; !exists {
			*order = append(*order, w.PutFrame.ID)
		}
		frames[w.PutFrame.ID] = w.PutFrame
		if pendingPayloads != nil {
			pendingPayloads[w.PutFrame.ID] = w.PutFramePayload
		}

	case OpDeleteFrame:
		fm, ok := frames[w.DeleteFrameID]
		if !ok {
			return fmt.Errorf("catalog: delete_frame: frame %d not found", w.DeleteFrameID)
		}
		fm.Status = StatusDeleted

	case OpSupersedeFrame:
		old, ok := frames[w.SupersedeOldID]
		if !ok {
			return fmt.Errorf("catalog: supersede_frame: old frame %d not found", w.SupersedeOldID)
		}
		newFrame, ok := frames[w.SupersedeNewID]
		if !ok {
			return fmt.Errorf("catalog: supersede_frame: new frame %d not found", w.SupersedeNewID)
		}
		newID := w.SupersedeNewID
		oldID := w.SupersedeOldID
		old.SupersededBy = &newID
		newFrame.Supersedes = &oldID

	case OpPutEmbedding:
		// Embedding storage is out of scope for the persisted frame table;
		// staged vectors live alongside segment bodies and are addressed
		// through the index manifests, not the catalog. Validate the
		// target frame exists so a misordered WAL is caught at replay.
		if _, ok := frames[w.EmbeddingFrameID]; !ok {
			return fmt.Errorf("catalog: put_embedding: frame %d not found", w.EmbeddingFrameID)
		}

	default:
		return fmt.Errorf("catalog: unknown wal opcode 0x%02x", w.Op)
	}
	return nil
}
