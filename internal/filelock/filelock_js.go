//go:build js || wasip1

package filelock

import "os"

// Lock is a no-op on platforms without process-level file locking (WASM).
// A single browser tab or WASI sandbox is already the only writer, so the
// cross-process guarantee is vacuous there.
type Lock struct{ mode Mode }

type Mode int

const (
	Shared Mode = iota
	Exclusive
)

func Acquire(f *os.File, mode Mode) (*Lock, error) { return &Lock{mode: mode}, nil }
func (l *Lock) Upgrade() error                     { l.mode = Exclusive; return nil }
func (l *Lock) Downgrade() error                   { l.mode = Shared; return nil }
func (l *Lock) Mode() Mode                         { return l.mode }
func (l *Lock) Unlock() error                      { return nil }
