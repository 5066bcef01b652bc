package bda

import (
	"fmt"
	"os"
)

// FileDevice is Device backed by a real *os.File, optionally wrapped by a
// FaultInjector so tests can deterministically simulate short reads/writes
// and I/O errors (spec.md §4.1, §9 "Fault injection").
type FileDevice struct {
	f       *os.File
	faults  *FaultInjector
}

// OpenFileDevice opens path for read/write, creating it if absent.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bda: open %s: %w", path, err)
	}
	return &FileDevice{f: f}, nil
}

// OpenFileDeviceReadOnly opens an existing path for reading only.
func OpenFileDeviceReadOnly(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bda: open %s read-only: %w", path, err)
	}
	return &FileDevice{f: f}, nil
}

// NewFileDeviceFromFile wraps an already-open *os.File, for callers that
// need to control the open flags themselves (e.g. O_EXCL on create) or
// share the descriptor with an advisory file lock.
func NewFileDeviceFromFile(f *os.File) *FileDevice {
	return &FileDevice{f: f}
}

// WithFaults attaches a FaultInjector; pass nil to remove fault injection.
func (d *FileDevice) WithFaults(fi *FaultInjector) { d.faults = fi }

func (d *FileDevice) ReadAt(b []byte, off int64) (int, error) {
	if d.faults != nil {
		if n, err, handled := d.faults.beforeRead(b, off); handled {
			if err != nil {
				return n, err
			}
			return d.f.ReadAt(b[:n], off)
		}
	}
	return d.f.ReadAt(b, off)
}

func (d *FileDevice) WriteAt(b []byte, off int64) (int, error) {
	if d.faults != nil {
		if n, err, handled := d.faults.beforeWrite(b, off); handled {
			if err != nil {
				return n, err
			}
			return d.f.WriteAt(b[:n], off)
		}
	}
	return d.f.WriteAt(b, off)
}

func (d *FileDevice) Sync() error {
	if d.faults != nil {
		if err, handled := d.faults.beforeSync(); handled {
			return err
		}
	}
	return d.f.Sync()
}

func (d *FileDevice) Close() error { return d.f.Close() }

func (d *FileDevice) Size() (int64, error) {
	info, err := d.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (d *FileDevice) Truncate(size int64) error { return d.f.Truncate(size) }

// File exposes the underlying *os.File for mmap and fd-based advisory
// locking, which need the raw descriptor.
func (d *FileDevice) File() *os.File { return d.f }
