package catalog

import (
	"fmt"

	"github.com/waxstore/wax/internal/binenc"
)

// TOCVersion is the only table-of-contents format this build understands.
const TOCVersion = 1

// IndexManifestKind names the higher-layer index a manifest describes. Wax
// itself never interprets the bytes; it only persists them (spec.md §1:
// "spec only the bytes-in / bytes-out interface").
type IndexManifestKind uint8

const (
	IndexKindLex IndexManifestKind = iota
	IndexKindVector
	IndexKindTime
)

// IndexManifest records where a full-text or vector index segment lives
// and how to validate it.
type IndexManifest struct {
	SegmentID uint64
	Kind      IndexManifestKind
	Length    uint64
	SHA256    [32]byte
}

// SegmentEntry is one entry of the content segment catalog: an opaque
// byte range, identified and checksummed, that higher layers address by
// SegmentID.
type SegmentEntry struct {
	SegmentID uint64
	Offset    uint64
	Length    uint64
	SHA256    [32]byte
}

// TOC is the Table Of Contents: the serialized form of the in-memory
// catalog, written after the WAL region (or after a previous TOC) on every
// commit (spec.md §3, §4.6).
type TOC struct {
	Version        uint32
	Frames         []*FrameMeta
	Indexes        []IndexManifest
	TimeIndex      *IndexManifest
	SegmentCatalog []SegmentEntry
	MerkleRoot     [32]byte
	SelfHash       [32]byte
}

// NewEmpty returns the TOC for a freshly created, empty store.
func NewEmpty() *TOC {
	return &TOC{Version: TOCVersion}
}

func (t *TOC) encodeBody(e *binenc.Encoder, zeroSelfHash bool) {
	e.PutUint32(t.Version)
	e.PutArray(len(t.Frames), func(e *binenc.Encoder, i int) { t.Frames[i].Encode(e) })
	e.PutArray(len(t.Indexes), func(e *binenc.Encoder, i int) {
		m := t.Indexes[i]
		e.PutUint64(m.SegmentID)
		e.PutUint8(uint8(m.Kind))
		e.PutUint64(m.Length)
		e.PutRaw(m.SHA256[:])
	})
	e.PutOption(t.TimeIndex != nil, func(e *binenc.Encoder) {
		m := t.TimeIndex
		e.PutUint64(m.SegmentID)
		e.PutUint8(uint8(m.Kind))
		e.PutUint64(m.Length)
		e.PutRaw(m.SHA256[:])
	})
	e.PutArray(len(t.SegmentCatalog), func(e *binenc.Encoder, i int) {
		s := t.SegmentCatalog[i]
		e.PutUint64(s.SegmentID)
		e.PutUint64(s.Offset)
		e.PutUint64(s.Length)
		e.PutRaw(s.SHA256[:])
	})
	e.PutRaw(t.MerkleRoot[:])
	if zeroSelfHash {
		var zero [32]byte
		e.PutRaw(zero[:])
	} else {
		e.PutRaw(t.SelfHash[:])
	}
}

// Finalize computes the Merkle root over the frame table and the TOC's own
// self-hash (over the body with the self-hash field treated as zero, per
// spec.md §3), then returns the serialized bytes ready to write to disk.
func (t *TOC) Finalize() []byte {
	t.MerkleRoot = MerkleRoot(t.Frames)

	e := binenc.NewEncoder(1024)
	t.encodeBody(e, true)
	t.SelfHash = binenc.Sum256(e.Bytes())

	out := binenc.NewEncoder(len(e.Bytes()))
	t.encodeBody(out, false)
	return out.Bytes()
}

// Parse decodes a TOC body and verifies its self-hash and Merkle root.
func Parse(body []byte) (*TOC, error) {
	d := binenc.NewDecoder(body)
	t := &TOC{}
	var err error
	if t.Version, err = d.Uint32(); err != nil {
		return nil, fmt.Errorf("catalog: toc version: %w", err)
	}
	if t.Version != TOCVersion {
		return nil, fmt.Errorf("catalog: unsupported toc version %d", t.Version)
	}

	if _, err := d.Array(func(d *binenc.Decoder, i int) error {
		fm, err := DecodeFrameMeta(d)
		if err != nil {
			return err
		}
		t.Frames = append(t.Frames, fm)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: frames: %w", err)
	}

	if _, err := d.Array(func(d *binenc.Decoder, i int) error {
		var m IndexManifest
		sid, err := d.Uint64()
		if err != nil {
			return err
		}
		m.SegmentID = sid
		kind, err := d.Uint8()
		if err != nil {
			return err
		}
		m.Kind = IndexManifestKind(kind)
		if m.Length, err = d.Uint64(); err != nil {
			return err
		}
		if err := readHash(d, &m.SHA256); err != nil {
			return err
		}
		t.Indexes = append(t.Indexes, m)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: indexes: %w", err)
	}

	if _, err := d.Option(func(d *binenc.Decoder) error {
		var m IndexManifest
		sid, err := d.Uint64()
		if err != nil {
			return err
		}
		m.SegmentID = sid
		kind, err := d.Uint8()
		if err != nil {
			return err
		}
		m.Kind = IndexManifestKind(kind)
		if m.Length, err = d.Uint64(); err != nil {
			return err
		}
		if err := readHash(d, &m.SHA256); err != nil {
			return err
		}
		t.TimeIndex = &m
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: time index: %w", err)
	}

	if _, err := d.Array(func(d *binenc.Decoder, i int) error {
		var s SegmentEntry
		var err error
		if s.SegmentID, err = d.Uint64(); err != nil {
			return err
		}
		if s.Offset, err = d.Uint64(); err != nil {
			return err
		}
		if s.Length, err = d.Uint64(); err != nil {
			return err
		}
		if err := readHash(d, &s.SHA256); err != nil {
			return err
		}
		t.SegmentCatalog = append(t.SegmentCatalog, s)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: segment catalog: %w", err)
	}

	if err := readHash(d, &t.MerkleRoot); err != nil {
		return nil, fmt.Errorf("catalog: merkle root: %w", err)
	}
	if err := readHash(d, &t.SelfHash); err != nil {
		return nil, fmt.Errorf("catalog: self hash: %w", err)
	}

	wantMerkle := MerkleRoot(t.Frames)
	if wantMerkle != t.MerkleRoot {
		return nil, fmt.Errorf("catalog: merkle root mismatch: toc is corrupt")
	}

	e := binenc.NewEncoder(len(body))
	t.encodeBody(e, true)
	gotSelf := binenc.Sum256(e.Bytes())
	if gotSelf != t.SelfHash {
		return nil, fmt.Errorf("catalog: toc self-hash mismatch: toc is corrupt")
	}

	return t, nil
}

// FrameByID returns the frame with the given ID, or nil if it does not
// exist. Frame IDs are dense and equal to the frame's index, so this is
// O(1) in the common case and falls back to a scan only if the table was
// ever sparse (it never is, but defending the invariant is cheap).
func (t *TOC) FrameByID(id FrameID) *FrameMeta {
	if int(id) < len(t.Frames) && t.Frames[id].ID == id {
		return t.Frames[id]
	}
	for _, f := range t.Frames {
		if f.ID == id {
			return f
		}
	}
	return nil
}
