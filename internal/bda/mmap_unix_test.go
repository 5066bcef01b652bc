//go:build !windows && !js && !wasip1

package bda

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapWritableWritesThroughToDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmap.bin")
	d, err := OpenFileDevice(path)
	require.NoError(t, err)
	defer d.Close()

	m, err := d.MapWritable(4096, 0)
	require.NoError(t, err)
	copy(m.Bytes(), []byte("mapped write"))
	require.NoError(t, m.Release())

	buf := make([]byte, len("mapped write"))
	require.NoError(t, ReadExactly(d, buf, 0))
	assert.Equal(t, "mapped write", string(buf))
}

func TestMapWritableRejectsNonPositiveLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mmap.bin")
	d, err := OpenFileDevice(path)
	require.NoError(t, err)
	defer d.Close()

	_, err = d.MapWritable(0, 0)
	assert.Error(t, err)
}
