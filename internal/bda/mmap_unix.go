//go:build !windows && !js && !wasip1

package bda

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// unixMapping is a real mmap(2) region, released deterministically by
// Release — the scoped-resource pattern spec.md §9 asks for ("acquire ->
// guaranteed release on all exit paths").
type unixMapping struct {
	data []byte
}

func (m *unixMapping) Bytes() []byte { return m.data }

func (m *unixMapping) Release() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// MapWritable maps [off, off+length) of the underlying file for read-write
// access. length must be > 0 and off must be page-aligned: off is passed
// unchanged to unix.Mmap, and mmap(2) rejects an unaligned offset.
func (d *FileDevice) MapWritable(length int, off int64) (Mapping, error) {
	if length <= 0 {
		return nil, fmt.Errorf("bda: MapWritable: length must be > 0, got %d", length)
	}
	if err := EnsureSize(d, off+int64(length)); err != nil {
		return nil, err
	}
	data, err := unix.Mmap(int(d.f.Fd()), off, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("bda: mmap: %w", err)
	}
	return &unixMapping{data: data}, nil
}
