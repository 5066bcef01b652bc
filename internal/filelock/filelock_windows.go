//go:build windows

package filelock

import (
	"fmt"
	"os"

	"golang.org/x/sys/windows"
)

// Lock holds an advisory lock on an open file descriptor (Windows
// implementation using LockFileEx).
type Lock struct {
	f    *os.File
	mode Mode
}

type Mode int

const (
	Shared Mode = iota
	Exclusive
)

const lockRegionLen = 1

func flags(mode Mode) uint32 {
	f := uint32(windows.LOCKFILE_FAIL_IMMEDIATELY)
	if mode == Exclusive {
		f |= windows.LOCKFILE_EXCLUSIVE_LOCK
	}
	return f
}

// Acquire takes a non-blocking advisory lock on f in the given mode.
func Acquire(f *os.File, mode Mode) (*Lock, error) {
	ol := new(windows.Overlapped)
	h := windows.Handle(f.Fd())
	if err := windows.LockFileEx(h, flags(mode), 0, lockRegionLen, 0, ol); err != nil {
		return nil, fmt.Errorf("filelock: %w: %v", ErrLocked, err)
	}
	return &Lock{f: f, mode: mode}, nil
}

// Upgrade releases the shared lock and re-acquires it exclusively. Unlike
// the Unix flock path this is not atomic; a concurrent shared holder can
// observe the gap, which is acceptable because upgrade only ever happens
// while this process already holds the store's internal writer lease.
func (l *Lock) Upgrade() error {
	if l.mode == Exclusive {
		return nil
	}
	if err := l.Unlock(); err != nil {
		return err
	}
	nl, err := Acquire(l.f, Exclusive)
	if err != nil {
		return err
	}
	*l = *nl
	return nil
}

// Downgrade releases the exclusive lock and re-acquires it shared.
func (l *Lock) Downgrade() error {
	if l.mode == Shared {
		return nil
	}
	if err := l.Unlock(); err != nil {
		return err
	}
	nl, err := Acquire(l.f, Shared)
	if err != nil {
		return err
	}
	*l = *nl
	return nil
}

func (l *Lock) Mode() Mode { return l.mode }

func (l *Lock) Unlock() error {
	ol := new(windows.Overlapped)
	h := windows.Handle(l.f.Fd())
	return windows.UnlockFileEx(h, 0, lockRegionLen, 0, ol)
}
