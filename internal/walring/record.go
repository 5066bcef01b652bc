// Package walring implements the fixed-size circular write-ahead log
// region described in spec.md §4.4: a writer protocol that appends
// sequenced, checksummed records with ring-wrap padding, and a reader
// protocol that replays pending records from a checkpoint position,
// tolerating (and stopping at) corruption past that point.
package walring

import (
	"encoding/binary"
	"fmt"

	"github.com/waxstore/wax/internal/binenc"
)

// RecordHeaderSize is the fixed 48-byte record header: sequence (8) +
// payload length (4) + flags (4) + SHA-256 of payload (32).
const RecordHeaderSize = 8 + 4 + 4 + 32

// FlagPadding marks a record as ring-wrap filler with an all-zero payload.
const FlagPadding uint32 = 1 << 0

// RecordHeader is the 48-byte on-disk record header.
type RecordHeader struct {
	Sequence      uint64
	PayloadLength uint32
	Flags         uint32
	PayloadSHA256 [32]byte
}

func (h *RecordHeader) IsPadding() bool { return h.Flags&FlagPadding != 0 }

// IsSentinel reports whether h is the all-zero header that marks the end
// of valid records during a scan.
func (h *RecordHeader) IsSentinel() bool {
	return h.Sequence == 0 && h.PayloadLength == 0 && h.Flags == 0 && h.PayloadSHA256 == [32]byte{}
}

// EncodeHeader serializes h to exactly RecordHeaderSize bytes.
func EncodeHeader(h *RecordHeader) []byte {
	buf := make([]byte, RecordHeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Sequence)
	binary.LittleEndian.PutUint32(buf[8:12], h.PayloadLength)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
	copy(buf[16:48], h.PayloadSHA256[:])
	return buf
}

// DecodeHeader parses exactly RecordHeaderSize bytes.
func DecodeHeader(buf []byte) (*RecordHeader, error) {
	if len(buf) < RecordHeaderSize {
		return nil, fmt.Errorf("walring: record header truncated: have %d bytes, need %d", len(buf), RecordHeaderSize)
	}
	h := &RecordHeader{
		Sequence:      binary.LittleEndian.Uint64(buf[0:8]),
		PayloadLength: binary.LittleEndian.Uint32(buf[8:12]),
		Flags:         binary.LittleEndian.Uint32(buf[12:16]),
	}
	copy(h.PayloadSHA256[:], buf[16:48])
	return h, nil
}

// NewDataRecord builds the header+payload bytes for a data record with
// the next sequence number.
func NewDataRecord(sequence uint64, payload []byte) []byte {
	h := &RecordHeader{
		Sequence:      sequence,
		PayloadLength: uint32(len(payload)),
		PayloadSHA256: binenc.Sum256(payload),
	}
	out := make([]byte, 0, RecordHeaderSize+len(payload))
	out = append(out, EncodeHeader(h)...)
	out = append(out, payload...)
	return out
}

// NewPaddingRecord builds a padding record whose total on-disk size
// (header + zero payload) is exactly size bytes. size must be at least
// RecordHeaderSize.
func NewPaddingRecord(size int) []byte {
	payloadLen := size - RecordHeaderSize
	if payloadLen < 0 {
		payloadLen = 0
	}
	h := &RecordHeader{
		PayloadLength: uint32(payloadLen),
		Flags:         FlagPadding,
	}
	out := make([]byte, 0, RecordHeaderSize+payloadLen)
	out = append(out, EncodeHeader(h)...)
	out = append(out, make([]byte, payloadLen)...)
	return out
}
