package bda

import (
	"io"
	"sync"
)

// MemDevice implements Device backed by a byte slice. It is used by unit
// tests that exercise Wax's format logic without touching a real
// filesystem.
type MemDevice struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemDevice returns an empty in-memory device.
func NewMemDevice() *MemDevice { return &MemDevice{} }

func (m *MemDevice) ReadAt(b []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(b, m.data[off:])
	if n < len(b) {
		return n, io.EOF
	}
	return n, nil
}

func (m *MemDevice) WriteAt(b []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := off + int64(len(b))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	return copy(m.data[off:], b), nil
}

func (m *MemDevice) Sync() error  { return nil }
func (m *MemDevice) Close() error { return nil }

func (m *MemDevice) Size() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.data)), nil
}

func (m *MemDevice) Truncate(size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
	return nil
}

// memMapping is the Mapping returned by MemDevice.MapWritable: it aliases
// the backing slice directly since there is no real OS mapping to release.
type memMapping struct {
	data []byte
}

func (m *memMapping) Bytes() []byte  { return m.data }
func (m *memMapping) Release() error { return nil }

// MapWritable returns a Mapping over [off, off+length) of the in-memory
// buffer, growing it first if necessary.
func (m *MemDevice) MapWritable(length int, off int64) (Mapping, error) {
	if err := EnsureSize(m, off+int64(length)); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memMapping{data: m.data[off : off+int64(length)]}, nil
}
