package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waxstore/wax/internal/binenc"
)

func sampleFrame() *FrameMeta {
	ts := int64(1700000000000)
	uri := "wax://doc/1"
	title := "A Document"
	parent := FrameID(1)
	dates := []int64{1, 2, 3}
	return &FrameMeta{
		ID:                5,
		TimestampMS:       &ts,
		AnchorTimestampMS: ts,
		URI:               &uri,
		Title:             &title,
		PayloadOffset:     4096,
		StoredLength:      128,
		CanonicalLength:   256,
		CanonicalEncoding: EncodingDeflate,
		CanonicalSHA256:   [32]byte{1, 2, 3},
		StoredSHA256:      [32]byte{4, 5, 6},
		Role:              RoleChunk,
		ParentID:          &parent,
		Status:            StatusActive,
		Tags:              []string{"a", "b"},
		Labels:            map[string]struct{}{"x": {}, "y": {}},
		Metadata:          map[string]string{"k": "v"},
		SearchText:        "hello world",
		ContentDatesMS:    &dates,
		ChunkIndex:        2,
		ChunkCount:        9,
		ChunkManifest: &ChunkManifestRef{
			SegmentID: 3,
			Offset:    10,
			Length:    20,
			SHA256:    [32]byte{7, 8, 9},
		},
	}
}

func TestFrameMetaEncodeDecodeRoundTrip(t *testing.T) {
	f := sampleFrame()
	e := binenc.NewEncoder(256)
	f.Encode(e)

	got, err := DecodeFrameMeta(binenc.NewDecoder(e.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, f.ID, got.ID)
	assert.Equal(t, *f.TimestampMS, *got.TimestampMS)
	assert.Equal(t, *f.URI, *got.URI)
	assert.Equal(t, *f.Title, *got.Title)
	assert.Equal(t, f.PayloadOffset, got.PayloadOffset)
	assert.Equal(t, f.CanonicalEncoding, got.CanonicalEncoding)
	assert.Equal(t, f.CanonicalSHA256, got.CanonicalSHA256)
	assert.Equal(t, f.Role, got.Role)
	assert.Equal(t, *f.ParentID, *got.ParentID)
	assert.ElementsMatch(t, f.Tags, got.Tags)
	assert.Equal(t, f.Labels, got.Labels)
	assert.Equal(t, f.Metadata, got.Metadata)
	assert.Equal(t, f.SearchText, got.SearchText)
	assert.Equal(t, *f.ContentDatesMS, *got.ContentDatesMS)
	assert.Equal(t, f.ChunkIndex, got.ChunkIndex)
	assert.Equal(t, *f.ChunkManifest, *got.ChunkManifest)
}

func TestFrameMetaEncodeDecodeNilOptionals(t *testing.T) {
	f := &FrameMeta{ID: 0, Role: RoleDocument, Status: StatusActive}
	e := binenc.NewEncoder(64)
	f.Encode(e)

	got, err := DecodeFrameMeta(binenc.NewDecoder(e.Bytes()))
	require.NoError(t, err)
	assert.Nil(t, got.TimestampMS)
	assert.Nil(t, got.URI)
	assert.Nil(t, got.Title)
	assert.Nil(t, got.ParentID)
	assert.Nil(t, got.Supersedes)
	assert.Nil(t, got.SupersededBy)
	assert.Nil(t, got.ChunkManifest)
	assert.Empty(t, got.Tags)
}

func TestFrameMetaCloneIsDeep(t *testing.T) {
	f := sampleFrame()
	cp := f.Clone()

	*cp.TimestampMS = 0
	cp.Tags[0] = "mutated"
	cp.Labels["z"] = struct{}{}
	cp.Metadata["k"] = "mutated"
	(*cp.ContentDatesMS)[0] = -1
	cp.ChunkManifest.Offset = 999

	assert.NotEqual(t, *f.TimestampMS, *cp.TimestampMS)
	assert.NotEqual(t, f.Tags[0], cp.Tags[0])
	assert.NotContains(t, f.Labels, "z")
	assert.NotEqual(t, f.Metadata["k"], cp.Metadata["k"])
	assert.NotEqual(t, (*f.ContentDatesMS)[0], (*cp.ContentDatesMS)[0])
	assert.NotEqual(t, f.ChunkManifest.Offset, cp.ChunkManifest.Offset)
}

func TestFrameMetaIsLive(t *testing.T) {
	f := &FrameMeta{Status: StatusActive}
	assert.True(t, f.IsLive())

	deleted := &FrameMeta{Status: StatusDeleted}
	assert.False(t, deleted.IsLive())

	superseded := &FrameMeta{Status: StatusActive}
	newID := FrameID(9)
	superseded.SupersededBy = &newID
	assert.False(t, superseded.IsLive())
}
