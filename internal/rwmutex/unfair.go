package rwmutex

import "sync"

// Unfair is a mutex with no fairness guarantee beyond what Go's runtime
// scheduler already provides, used on very short hot paths like pushing to
// a pending-ops queue (spec.md §4.8). It is a named wrapper rather than a
// bare sync.Mutex so call sites document which discipline they rely on.
type Unfair struct {
	mu sync.Mutex
}

func (u *Unfair) Lock()   { u.mu.Lock() }
func (u *Unfair) Unlock() { u.mu.Unlock() }

// TryLock attempts to acquire without blocking.
func (u *Unfair) TryLock() bool { return u.mu.TryLock() }
