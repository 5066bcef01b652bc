package catalog

import (
	"fmt"
	"sort"

	"github.com/waxstore/wax/internal/binenc"
)

func (f *FrameMeta) Encode(e *binenc.Encoder) {
	e.PutUint64(uint64(f.ID))
	e.PutOption(f.TimestampMS != nil, func(e *binenc.Encoder) { e.PutInt64(*f.TimestampMS) })
	e.PutInt64(f.AnchorTimestampMS)
	e.PutOption(f.URI != nil, func(e *binenc.Encoder) { e.PutString(*f.URI) })
	e.PutOption(f.Title != nil, func(e *binenc.Encoder) { e.PutString(*f.Title) })
	e.PutUint64(f.PayloadOffset)
	e.PutUint64(f.StoredLength)
	e.PutUint64(f.CanonicalLength)
	e.PutUint8(uint8(f.CanonicalEncoding))
	e.PutRaw(f.CanonicalSHA256[:])
	e.PutRaw(f.StoredSHA256[:])
	e.PutUint8(uint8(f.Role))
	e.PutOption(f.ParentID != nil, func(e *binenc.Encoder) { e.PutUint64(uint64(*f.ParentID)) })
	e.PutOption(f.Supersedes != nil, func(e *binenc.Encoder) { e.PutUint64(uint64(*f.Supersedes)) })
	e.PutOption(f.SupersededBy != nil, func(e *binenc.Encoder) { e.PutUint64(uint64(*f.SupersededBy)) })
	e.PutUint8(uint8(f.Status))
	e.PutArray(len(f.Tags), func(e *binenc.Encoder, i int) { e.PutString(f.Tags[i]) })
	labels := make([]string, 0, len(f.Labels))
	for l := range f.Labels {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	e.PutArray(len(labels), func(e *binenc.Encoder, i int) { e.PutString(labels[i]) })
	keys := make([]string, 0, len(f.Metadata))
	for k := range f.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.PutArray(len(keys), func(e *binenc.Encoder, i int) {
		e.PutString(keys[i])
		e.PutString(f.Metadata[keys[i]])
	})
	e.PutString(f.SearchText)
	e.PutOption(f.ContentDatesMS != nil, func(e *binenc.Encoder) {
		dates := *f.ContentDatesMS
		e.PutArray(len(dates), func(e *binenc.Encoder, i int) { e.PutInt64(dates[i]) })
	})
	e.PutUint32(f.ChunkIndex)
	e.PutUint32(f.ChunkCount)
	e.PutOption(f.ChunkManifest != nil, func(e *binenc.Encoder) {
		m := f.ChunkManifest
		e.PutUint64(m.SegmentID)
		e.PutUint64(m.Offset)
		e.PutUint64(m.Length)
		e.PutRaw(m.SHA256[:])
	})
}

func DecodeFrameMeta(d *binenc.Decoder) (*FrameMeta, error) {
	f := &FrameMeta{}
	id, err := d.Uint64()
	if err != nil {
		return nil, fmt.Errorf("catalog: frame id: %w", err)
	}
	f.ID = FrameID(id)

	if _, err := d.Option(func(d *binenc.Decoder) error {
		v, err := d.Int64()
		if err != nil {
			return err
		}
		f.TimestampMS = &v
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: timestamp: %w", err)
	}

	f.AnchorTimestampMS, err = d.Int64()
	if err != nil {
		return nil, fmt.Errorf("catalog: anchor timestamp: %w", err)
	}

	if _, err := d.Option(func(d *binenc.Decoder) error {
		v, err := d.String()
		if err != nil {
			return err
		}
		f.URI = &v
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: uri: %w", err)
	}
	if _, err := d.Option(func(d *binenc.Decoder) error {
		v, err := d.String()
		if err != nil {
			return err
		}
		f.Title = &v
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: title: %w", err)
	}

	if f.PayloadOffset, err = d.Uint64(); err != nil {
		return nil, fmt.Errorf("catalog: payload offset: %w", err)
	}
	if f.StoredLength, err = d.Uint64(); err != nil {
		return nil, fmt.Errorf("catalog: stored length: %w", err)
	}
	if f.CanonicalLength, err = d.Uint64(); err != nil {
		return nil, fmt.Errorf("catalog: canonical length: %w", err)
	}
	enc, err := d.Uint8()
	if err != nil {
		return nil, fmt.Errorf("catalog: canonical encoding: %w", err)
	}
	f.CanonicalEncoding = CanonicalEncoding(enc)

	if err := readHash(d, &f.CanonicalSHA256); err != nil {
		return nil, fmt.Errorf("catalog: canonical sha256: %w", err)
	}
	if err := readHash(d, &f.StoredSHA256); err != nil {
		return nil, fmt.Errorf("catalog: stored sha256: %w", err)
	}

	role, err := d.Uint8()
	if err != nil {
		return nil, fmt.Errorf("catalog: role: %w", err)
	}
	f.Role = FrameRole(role)

	if _, err := d.Option(func(d *binenc.Decoder) error {
		v, err := d.Uint64()
		if err != nil {
			return err
		}
		id := FrameID(v)
		f.ParentID = &id
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: parent id: %w", err)
	}
	if _, err := d.Option(func(d *binenc.Decoder) error {
		v, err := d.Uint64()
		if err != nil {
			return err
		}
		id := FrameID(v)
		f.Supersedes = &id
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: supersedes: %w", err)
	}
	if _, err := d.Option(func(d *binenc.Decoder) error {
		v, err := d.Uint64()
		if err != nil {
			return err
		}
		id := FrameID(v)
		f.SupersededBy = &id
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: superseded by: %w", err)
	}

	status, err := d.Uint8()
	if err != nil {
		return nil, fmt.Errorf("catalog: status: %w", err)
	}
	f.Status = FrameStatus(status)

	if _, err := d.Array(func(d *binenc.Decoder, i int) error {
		s, err := d.String()
		if err != nil {
			return err
		}
		f.Tags = append(f.Tags, s)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: tags: %w", err)
	}

	f.Labels = make(map[string]struct{})
	if _, err := d.Array(func(d *binenc.Decoder, i int) error {
		s, err := d.String()
		if err != nil {
			return err
		}
		f.Labels[s] = struct{}{}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: labels: %w", err)
	}

	f.Metadata = make(map[string]string)
	if _, err := d.Array(func(d *binenc.Decoder, i int) error {
		k, err := d.String()
		if err != nil {
			return err
		}
		v, err := d.String()
		if err != nil {
			return err
		}
		f.Metadata[k] = v
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: metadata: %w", err)
	}

	if f.SearchText, err = d.String(); err != nil {
		return nil, fmt.Errorf("catalog: search text: %w", err)
	}

	if _, err := d.Option(func(d *binenc.Decoder) error {
		var dates []int64
		if _, err := d.Array(func(d *binenc.Decoder, i int) error {
			v, err := d.Int64()
			if err != nil {
				return err
			}
			dates = append(dates, v)
			return nil
		}); err != nil {
			return err
		}
		f.ContentDatesMS = &dates
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: content dates: %w", err)
	}

	if f.ChunkIndex, err = d.Uint32(); err != nil {
		return nil, fmt.Errorf("catalog: chunk index: %w", err)
	}
	if f.ChunkCount, err = d.Uint32(); err != nil {
		return nil, fmt.Errorf("catalog: chunk count: %w", err)
	}

	if _, err := d.Option(func(d *binenc.Decoder) error {
		m := &ChunkManifestRef{}
		var err error
		if m.SegmentID, err = d.Uint64(); err != nil {
			return err
		}
		if m.Offset, err = d.Uint64(); err != nil {
			return err
		}
		if m.Length, err = d.Uint64(); err != nil {
			return err
		}
		if err := readHash(d, &m.SHA256); err != nil {
			return err
		}
		f.ChunkManifest = m
		return nil
	}); err != nil {
		return nil, fmt.Errorf("catalog: chunk manifest: %w", err)
	}

	return f, nil
}

func readHash(d *binenc.Decoder, out *[32]byte) error {
	raw, err := d.Raw(32)
	if err != nil {
		return err
	}
	copy(out[:], raw)
	return nil
}
