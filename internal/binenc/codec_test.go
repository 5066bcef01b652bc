package binenc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := NewEncoder(64)
	e.PutUint8(7)
	e.PutBool(true)
	e.PutUint16(1234)
	e.PutUint32(0xdeadbeef)
	e.PutUint64(0x1122334455667788)
	e.PutInt64(-42)
	e.PutFloat64(3.5)
	e.PutString("hello frame")
	e.PutBlob([]byte{1, 2, 3, 4})
	e.PutRaw([]byte{9, 9, 9})
	e.PutOption(true, func(e *Encoder) { e.PutUint8(5) })
	e.PutOption(false, func(e *Encoder) { e.PutUint8(99) })
	e.PutVariant(2, func(e *Encoder) { e.PutString("variant body") })
	e.PutArray(3, func(e *Encoder, i int) { e.PutUint32(uint32(i * i)) })

	d := NewDecoder(e.Bytes())

	u8, err := d.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), u8)

	b, err := d.Bool()
	require.NoError(t, err)
	assert.True(t, b)

	u16, err := d.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(1234), u16)

	u32, err := d.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)

	u64, err := d.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1122334455667788), u64)

	i64, err := d.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(-42), i64)

	f64, err := d.Float64()
	require.NoError(t, err)
	assert.Equal(t, 3.5, f64)

	s, err := d.String()
	require.NoError(t, err)
	assert.Equal(t, "hello frame", s)

	blob, err := d.Blob()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, blob)

	raw, err := d.Raw(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9}, raw)

	present, err := d.Option(func(d *Decoder) error {
		v, err := d.Uint8()
		assert.Equal(t, uint8(5), v)
		return err
	})
	require.NoError(t, err)
	assert.True(t, present)

	present, err = d.Option(func(d *Decoder) error { return nil })
	require.NoError(t, err)
	assert.False(t, present)

	tag, err := d.Variant()
	require.NoError(t, err)
	assert.Equal(t, uint8(2), tag)
	variantBody, err := d.String()
	require.NoError(t, err)
	assert.Equal(t, "variant body", variantBody)

	var squares []uint32
	n, err := d.Array(func(d *Decoder, i int) error {
		v, err := d.Uint32()
		squares = append(squares, v)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []uint32{0, 1, 4}, squares)

	assert.Equal(t, 0, d.Remaining())
}

func TestDecoderTruncatedInputFails(t *testing.T) {
	d := NewDecoder([]byte{1, 2})
	_, err := d.Uint32()
	assert.Error(t, err)
}

func TestDecoderRejectsOversizedString(t *testing.T) {
	e := NewEncoder(8)
	e.PutUint32(MaxStringBytes + 1)
	d := NewDecoder(e.Bytes())
	_, err := d.String()
	var be *BoundError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "string length", be.Bound)
}

func TestDecoderRejectsOversizedArray(t *testing.T) {
	e := NewEncoder(8)
	e.PutUint32(MaxArrayLen + 1)
	d := NewDecoder(e.Bytes())
	_, err := d.Array(func(*Decoder, int) error { return nil })
	var be *BoundError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "array length", be.Bound)
}

func TestChecksumHelpers(t *testing.T) {
	a := Sum256([]byte("abc"))
	b := Sum256([]byte("abc"))
	c := Sum256([]byte("abcd"))
	assert.True(t, Equal256(a, b))
	assert.False(t, Equal256(a, c))

	combined := Sum256Many(a[:], c[:])
	assert.NotEqual(t, a, combined)
	assert.Len(t, combined, 32)
}
