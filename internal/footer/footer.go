// Package footer implements the fixed 64-byte footer record and the
// backward-scanning footer scanner from spec.md §4.6.
package footer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/waxstore/wax/internal/bda"
)

// Size is the fixed on-disk footer size.
const Size = 64

const magic = "WAX1FOOT"

// DefaultScanWindow bounds how far back the footer scanner searches when
// the header's footer offset is suspect.
const DefaultScanWindow = 32 << 20

// Footer is the decoded 64-byte trailer written after every TOC.
type Footer struct {
	TOCLength    uint64
	TOCSHA256    [32]byte
	Generation   uint64
	CommittedSeq uint64
}

// Encode serializes f to exactly Size bytes.
func Encode(f *Footer) []byte {
	buf := make([]byte, Size)
	copy(buf[0:8], magic)
	binary.LittleEndian.PutUint64(buf[8:16], f.TOCLength)
	copy(buf[16:48], f.TOCSHA256[:])
	binary.LittleEndian.PutUint64(buf[48:56], f.Generation)
	binary.LittleEndian.PutUint64(buf[56:64], f.CommittedSeq)
	return buf
}

// Decode validates and parses exactly Size bytes.
func Decode(buf []byte) (*Footer, error) {
	if len(buf) != Size {
		return nil, fmt.Errorf("footer: expected %d bytes, got %d", Size, len(buf))
	}
	if string(buf[0:8]) != magic {
		return nil, fmt.Errorf("footer: bad magic")
	}
	f := &Footer{
		TOCLength:    binary.LittleEndian.Uint64(buf[8:16]),
		Generation:   binary.LittleEndian.Uint64(buf[48:56]),
		CommittedSeq: binary.LittleEndian.Uint64(buf[56:64]),
	}
	copy(f.TOCSHA256[:], buf[16:48])
	return f, nil
}

// ReadAt reads and decodes the footer expected at the given absolute
// offset, the canonical (header-trusted) path.
func ReadAt(dev bda.Device, offset int64) (*Footer, error) {
	buf := make([]byte, Size)
	if err := bda.ReadExactly(dev, buf, offset); err != nil {
		return nil, fmt.Errorf("footer: read at %d: %w", offset, err)
	}
	return Decode(buf)
}

// Scan walks backwards from candidateEnd looking for the footer magic
// within window bytes, for use when the header's recorded footer offset
// is suspect. It returns the offset of the footer's first byte.
func Scan(dev bda.Device, candidateEnd int64, window int64) (int64, *Footer, error) {
	if window <= 0 {
		window = DefaultScanWindow
	}
	lo := candidateEnd - window
	if lo < 0 {
		lo = 0
	}
	buf := make([]byte, candidateEnd-lo)
	if err := bda.ReadExactly(dev, buf, lo); err != nil {
		return 0, nil, fmt.Errorf("footer: scan read: %w", err)
	}
	for i := len(buf) - Size; i >= 0; i-- {
		if bytes.Equal(buf[i:i+8], []byte(magic)) {
			f, err := Decode(buf[i : i+Size])
			if err != nil {
				continue
			}
			return lo + int64(i), f, nil
		}
	}
	return 0, nil, fmt.Errorf("footer: no valid footer found within %d bytes of offset %d", window, candidateEnd)
}
