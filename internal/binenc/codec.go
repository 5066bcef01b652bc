package binenc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Bounds enforced on decode, per spec: a string's UTF-8 body is capped at
// 16 MiB, a blob at 256 MiB, and an array's element count at 10 million.
const (
	MaxStringBytes = 16 << 20
	MaxBlobBytes   = 256 << 20
	MaxArrayLen    = 10_000_000
)

// BoundError is returned by Decoder methods when an encoded length or count
// exceeds the bound named in spec.md §4.2.
type BoundError struct {
	Bound string
	Got   uint64
	Limit uint64
}

func (e *BoundError) Error() string {
	return fmt.Sprintf("binenc: %s exceeds bound (%d > %d)", e.Bound, e.Got, e.Limit)
}

// Encoder appends little-endian encoded values to an internal buffer.
// It never fails: callers are expected to bound the number and size of
// values they encode themselves, since on-disk structures are written by
// a single trusted writer lease holder.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder pre-sized to capacityHint, avoiding
// reallocation for the common case of small, shape-predictable records.
func NewEncoder(capacityHint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacityHint)}
}

func (e *Encoder) Bytes() []byte { return e.buf }
func (e *Encoder) Len() int      { return len(e.buf) }

func (e *Encoder) PutUint8(v uint8)   { e.buf = append(e.buf, v) }

// PutRaw appends b verbatim, with no length prefix. Used for fixed-size
// fields like SHA-256 digests whose length is implicit in the format.
func (e *Encoder) PutRaw(b []byte) { e.buf = append(e.buf, b...) }
func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint8(1)
	} else {
		e.PutUint8(0)
	}
}

func (e *Encoder) PutUint16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) PutUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) PutUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
}

func (e *Encoder) PutInt64(v int64) { e.PutUint64(uint64(v)) }

func (e *Encoder) PutFloat64(v float64) { e.PutUint64(math.Float64bits(v)) }

// PutString encodes a u32 byte length followed by UTF-8 bytes.
func (e *Encoder) PutString(s string) {
	e.PutUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// PutBlob encodes a u32 byte length followed by raw bytes.
func (e *Encoder) PutBlob(b []byte) {
	e.PutUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// PutOption encodes presence as one byte, then calls write if present.
func (e *Encoder) PutOption(present bool, write func(*Encoder)) {
	e.PutBool(present)
	if present {
		write(e)
	}
}

// PutVariant encodes a one-byte tag, then calls write for the variant body.
func (e *Encoder) PutVariant(tag uint8, write func(*Encoder)) {
	e.PutUint8(tag)
	write(e)
}

// PutArray encodes a u32 element count, then calls write(i) for each index.
func (e *Encoder) PutArray(n int, write func(*Encoder, int)) {
	e.PutUint32(uint32(n))
	for i := 0; i < n; i++ {
		write(e, i)
	}
}

// Decoder reads little-endian encoded values from a fixed buffer, enforcing
// the bounds named in spec.md §4.2 and failing fast on truncation.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) need(n int) error {
	if d.Remaining() < n {
		return fmt.Errorf("binenc: decode: need %d bytes, have %d", n, d.Remaining())
	}
	return nil
}

func (d *Decoder) Uint8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.buf[d.off]
	d.off++
	return v, nil
}

func (d *Decoder) Bool() (bool, error) {
	v, err := d.Uint8()
	return v != 0, err
}

func (d *Decoder) Uint16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v, nil
}

func (d *Decoder) Uint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *Decoder) Uint64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.buf[d.off:])
	d.off += 8
	return v, nil
}

func (d *Decoder) Int64() (int64, error) {
	v, err := d.Uint64()
	return int64(v), err
}

func (d *Decoder) Float64() (float64, error) {
	v, err := d.Uint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// String decodes a u32 length-prefixed UTF-8 string, bounded by MaxStringBytes.
func (d *Decoder) String() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if uint64(n) > MaxStringBytes {
		return "", &BoundError{Bound: "string length", Got: uint64(n), Limit: MaxStringBytes}
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

// Blob decodes a u32 length-prefixed byte slice, bounded by MaxBlobBytes.
func (d *Decoder) Blob() ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > MaxBlobBytes {
		return nil, &BoundError{Bound: "blob length", Got: uint64(n), Limit: MaxBlobBytes}
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+int(n)])
	d.off += int(n)
	return out, nil
}

// Raw reads n raw bytes with no length prefix, the decode-side twin of
// PutRaw.
func (d *Decoder) Raw(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, d.buf[d.off:d.off+n])
	d.off += n
	return out, nil
}

// Option decodes the one-byte presence flag and, if set, invokes read.
func (d *Decoder) Option(read func(*Decoder) error) (bool, error) {
	present, err := d.Bool()
	if err != nil || !present {
		return present, err
	}
	return true, read(d)
}

// Variant decodes the one-byte tag and returns it for the caller to switch on.
func (d *Decoder) Variant() (uint8, error) {
	return d.Uint8()
}

// Array decodes the u32 element count, bounded by MaxArrayLen, then invokes
// read(i) for each index.
func (d *Decoder) Array(read func(*Decoder, int) error) (int, error) {
	n, err := d.Uint32()
	if err != nil {
		return 0, err
	}
	if uint64(n) > MaxArrayLen {
		return 0, &BoundError{Bound: "array length", Got: uint64(n), Limit: MaxArrayLen}
	}
	for i := 0; i < int(n); i++ {
		if err := read(d, i); err != nil {
			return 0, err
		}
	}
	return int(n), nil
}
