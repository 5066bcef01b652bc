// Package bda implements the block device abstraction from spec.md §4.1:
// offset-addressed read/write/fsync over a regular file, independent of the
// file's cursor, plus writable memory mapping and a fault-injection hook
// used by the crash-recovery test suite.
package bda

import (
	"fmt"
	"io"
)

// Device is the positional I/O surface the rest of Wax is built on. It is
// implemented by *FileDevice (backed by an *os.File) and by *MemDevice (an
// in-memory stand-in used by unit tests), splitting the real-file and
// in-memory-twin concerns the same way the rest of the storage layer does.
type Device interface {
	ReadAt(b []byte, off int64) (int, error)
	WriteAt(b []byte, off int64) (int, error)
	Sync() error
	Close() error
	Size() (int64, error)
	Truncate(size int64) error
}

// Mapping is a writable memory-mapped region. It must be released exactly
// once; Release never survives beyond the scope that acquired it.
type Mapping interface {
	Bytes() []byte
	Release() error
}

// ReadExactly reads exactly len(b) bytes at off, looping over short reads
// and failing once the device is truly exhausted.
func ReadExactly(d Device, b []byte, off int64) error {
	total := 0
	for total < len(b) {
		n, err := d.ReadAt(b[total:], off+int64(total))
		total += n
		if err != nil {
			if err == io.EOF && total == len(b) {
				return nil
			}
			return fmt.Errorf("bda: short read at offset %d: got %d of %d bytes: %w", off, total, len(b), err)
		}
		if n == 0 {
			return fmt.Errorf("bda: short read at offset %d: got %d of %d bytes: no progress", off, total, len(b))
		}
	}
	return nil
}

// WriteAll writes all of b at off, looping until every byte lands or an
// error makes further progress impossible.
func WriteAll(d Device, b []byte, off int64) error {
	total := 0
	for total < len(b) {
		n, err := d.WriteAt(b[total:], off+int64(total))
		total += n
		if err != nil {
			return fmt.Errorf("bda: short write at offset %d: wrote %d of %d bytes: %w", off, total, len(b), err)
		}
		if n == 0 {
			return fmt.Errorf("bda: short write at offset %d: wrote %d of %d bytes: no progress", off, total, len(b))
		}
	}
	return nil
}

// EnsureSize grows the device to at least size bytes. It never shrinks an
// existing device; callers that need truncation call Truncate directly.
func EnsureSize(d Device, size int64) error {
	cur, err := d.Size()
	if err != nil {
		return fmt.Errorf("bda: ensure size: stat: %w", err)
	}
	if cur >= size {
		return nil
	}
	return d.Truncate(size)
}
