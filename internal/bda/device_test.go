package bda

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDeviceWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.bin")
	d, err := OpenFileDevice(path)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, WriteAll(d, []byte("hello world"), 10))
	buf := make([]byte, len("hello world"))
	require.NoError(t, ReadExactly(d, buf, 10))
	assert.Equal(t, "hello world", string(buf))
}

func TestFileDeviceEnsureSizeGrowsButNeverShrinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.bin")
	d, err := OpenFileDevice(path)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, EnsureSize(d, 4096))
	size, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)

	require.NoError(t, EnsureSize(d, 100))
	size, err = d.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
}

func TestMemDeviceWriteReadRoundTrip(t *testing.T) {
	d := NewMemDevice()
	require.NoError(t, WriteAll(d, []byte("in-memory"), 0))
	buf := make([]byte, len("in-memory"))
	require.NoError(t, ReadExactly(d, buf, 0))
	assert.Equal(t, "in-memory", string(buf))
}

func TestMemDeviceTruncateAndSize(t *testing.T) {
	d := NewMemDevice()
	require.NoError(t, d.Truncate(2048))
	size, err := d.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(2048), size)
}

func TestReadExactlyRetriesAfterShortDeviceFault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.bin")
	fd, err := OpenFileDevice(path)
	require.NoError(t, err)
	defer fd.Close()

	require.NoError(t, WriteAll(fd, []byte("0123456789"), 0))

	fi := NewFaultInjector()
	fi.Plan(Fault{Kind: FaultShortRead, Remaining: 1, ShortBy: 4})
	fd.WithFaults(fi)

	buf := make([]byte, 10)
	err = ReadExactly(fd, buf, 0)
	// The injected short read yields only 6 bytes on the first call; the
	// retry loop issues a second ReadAt which (with no more faults queued)
	// completes the remaining 4 bytes.
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(buf))
}

func TestFaultInjectorReadErrorPropagates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.bin")
	fd, err := OpenFileDevice(path)
	require.NoError(t, err)
	defer fd.Close()
	require.NoError(t, EnsureSize(fd, 16))

	fi := NewFaultInjector()
	fi.Plan(Fault{Kind: FaultReadError, Remaining: 1})
	fd.WithFaults(fi)

	buf := make([]byte, 4)
	err = ReadExactly(fd, buf, 0)
	assert.Error(t, err)
}

func TestFaultInjectorSyncErrorPropagates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.bin")
	fd, err := OpenFileDevice(path)
	require.NoError(t, err)
	defer fd.Close()

	fi := NewFaultInjector()
	fi.Plan(Fault{Kind: FaultSyncError, Remaining: 1})
	fd.WithFaults(fi)

	assert.Error(t, fd.Sync())
	assert.NoError(t, fd.Sync()) // fault consumed, subsequent sync succeeds
}
