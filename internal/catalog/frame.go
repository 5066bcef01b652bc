// Package catalog implements the in-memory frame table, content segment
// catalog, index-segment manifests, and Merkle root from spec.md §3, and
// their serialization as the Table Of Contents (TOC).
package catalog

import (
	"github.com/waxstore/wax/internal/compress"
)

// FrameID is a dense, sequential 64-bit frame identifier; the first frame
// in a store is 0.
type FrameID uint64

// FrameRole classifies what a frame's payload represents.
type FrameRole uint8

const (
	RoleDocument FrameRole = iota
	RoleChunk
	RoleBlob
	RoleSystem
)

// FrameStatus tracks whether a frame still participates in search results.
type FrameStatus uint8

const (
	StatusActive FrameStatus = iota
	StatusDeleted
)

// CanonicalEncoding names the compression applied to a frame's stored
// payload; it is exactly compress.Algorithm under another name because the
// wire tag space is shared (spec.md §3 defines the same four variants
// §4.3 compresses with).
type CanonicalEncoding = compress.Algorithm

const (
	EncodingPlain   = compress.None
	EncodingLZFSE   = compress.LZFSE
	EncodingLZ4     = compress.LZ4
	EncodingDeflate = compress.Deflate
)

// ChunkManifestRef points at a blob elsewhere in the store describing how a
// document's chunks relate to each other.
type ChunkManifestRef struct {
	SegmentID uint64
	Offset    uint64
	Length    uint64
	SHA256    [32]byte
}

// FrameMeta is the per-frame catalog record described in spec.md §3.
type FrameMeta struct {
	ID FrameID

	TimestampMS       *int64
	AnchorTimestampMS int64

	URI   *string
	Title *string

	PayloadOffset     uint64
	StoredLength      uint64
	CanonicalLength   uint64
	CanonicalEncoding CanonicalEncoding
	CanonicalSHA256   [32]byte
	StoredSHA256      [32]byte

	Role FrameRole

	ParentID     *FrameID
	Supersedes   *FrameID
	SupersededBy *FrameID

	Status FrameStatus

	Tags     []string
	Labels   map[string]struct{}
	Metadata map[string]string

	SearchText string

	ContentDatesMS *[]int64

	ChunkIndex    uint32
	ChunkCount    uint32
	ChunkManifest *ChunkManifestRef
}

// Clone returns a deep copy so callers can mutate a snapshot without
// corrupting the coordinator's live catalog.
func (f *FrameMeta) Clone() *FrameMeta {
	cp := *f
	if f.TimestampMS != nil {
		v := *f.TimestampMS
		cp.TimestampMS = &v
	}
	if f.URI != nil {
		v := *f.URI
		cp.URI = &v
	}
	if f.Title != nil {
		v := *f.Title
		cp.Title = &v
	}
	if f.ParentID != nil {
		v := *f.ParentID
		cp.ParentID = &v
	}
	if f.Supersedes != nil {
		v := *f.Supersedes
		cp.Supersedes = &v
	}
	if f.SupersededBy != nil {
		v := *f.SupersededBy
		cp.SupersededBy = &v
	}
	if f.Tags != nil {
		cp.Tags = append([]string(nil), f.Tags...)
	}
	if f.Labels != nil {
		cp.Labels = make(map[string]struct{}, len(f.Labels))
		for k := range f.Labels {
			cp.Labels[k] = struct{}{}
		}
	}
	if f.Metadata != nil {
		cp.Metadata = make(map[string]string, len(f.Metadata))
		for k, v := range f.Metadata {
			cp.Metadata[k] = v
		}
	}
	if f.ContentDatesMS != nil {
		v := append([]int64(nil), (*f.ContentDatesMS)...)
		cp.ContentDatesMS = &v
	}
	if f.ChunkManifest != nil {
		v := *f.ChunkManifest
		cp.ChunkManifest = &v
	}
	return &cp
}

// IsLive reports whether a frame belongs to the live set: active and not
// superseded (spec.md GLOSSARY "Live set").
func (f *FrameMeta) IsLive() bool {
	return f.Status == StatusActive && f.SupersededBy == nil
}
