// Package compress implements the canonical-encoding codecs named in
// spec.md §3/§4.3: none (identity), lz4, deflate, and lzfse (rejected on
// non-Apple platforms as "unsupported"). The lz4 slot is served by
// klauspost/compress/snappy, the fast block-compression codec used
// directly for per-record compression; no corpus repo imports a
// dedicated lz4 package.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/snappy"
)

// Algorithm identifies a CanonicalEncoding variant.
type Algorithm uint8

const (
	None Algorithm = iota
	LZFSE
	LZ4
	Deflate
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZFSE:
		return "lzfse"
	case LZ4:
		return "lz4"
	case Deflate:
		return "deflate"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ErrUnsupported is returned for algorithms this build cannot perform.
// LZFSE is Apple-specific; this implementation has no CGo bridge to it and
// rejects it with a clear error on every platform, as permitted by
// spec.md §9.
var ErrUnsupported = fmt.Errorf("compress: algorithm not supported on this platform")

// Compress encodes b with algorithm. Empty input maps to empty output for
// every algorithm, including none.
func Compress(b []byte, algo Algorithm) ([]byte, error) {
	if len(b) == 0 {
		return nil, nil
	}
	switch algo {
	case None:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case LZ4:
		return snappy.Encode(nil, b), nil
	case Deflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("compress: deflate: %w", err)
		}
		if _, err := w.Write(b); err != nil {
			return nil, fmt.Errorf("compress: deflate: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compress: deflate: %w", err)
		}
		return buf.Bytes(), nil
	case LZFSE:
		return nil, ErrUnsupported
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %d", algo)
	}
}

// Decompress decodes b with algorithm and verifies the result's length
// equals uncompressedLength, per spec.md §4.3.
func Decompress(b []byte, algo Algorithm, uncompressedLength int) ([]byte, error) {
	if uncompressedLength == 0 {
		return nil, nil
	}
	var out []byte
	var err error
	switch algo {
	case None:
		out = make([]byte, len(b))
		copy(out, b)
	case LZ4:
		out, err = snappy.Decode(nil, b)
		if err != nil {
			return nil, fmt.Errorf("compress: lz4: %w", err)
		}
	case Deflate:
		r := flate.NewReader(bytes.NewReader(b))
		defer r.Close()
		out, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("compress: deflate: %w", err)
		}
	case LZFSE:
		return nil, ErrUnsupported
	default:
		return nil, fmt.Errorf("compress: unknown algorithm %d", algo)
	}
	if len(out) != uncompressedLength {
		return nil, fmt.Errorf("compress: decompressed length %d does not match declared length %d", len(out), uncompressedLength)
	}
	return out, nil
}
