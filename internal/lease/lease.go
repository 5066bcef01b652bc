// Package lease implements the writer-lease state machine from
// spec.md §4.7/§5: at most one writer lease is outstanding at a time,
// acquisition honors fail-immediate, wait-indefinite, and
// wait-with-deadline policies, and a lease never times out once held.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned by Acquire under PolicyFailImmediate when another
// lease is already outstanding.
var ErrBusy = errors.New("lease: writer busy")

// ErrTimeout is returned by Acquire under PolicyWaitWithDeadline when the
// deadline elapses before the lease becomes available.
var ErrTimeout = errors.New("lease: writer acquire timed out")

// PolicyKind selects how Acquire behaves when the lease is already held.
type PolicyKind uint8

const (
	PolicyFailImmediate PolicyKind = iota
	PolicyWaitIndefinite
	PolicyWaitWithDeadline
)

// Policy configures one Acquire call.
type Policy struct {
	Kind     PolicyKind
	Deadline time.Duration // only meaningful for PolicyWaitWithDeadline
}

// Token is the opaque writer-lease handle returned by Acquire. Only the
// holder that received a given Token may use it to Release.
type Token struct {
	id uuid.UUID
}

func (t Token) String() string { return t.id.String() }

// Manager serializes writer-lease acquisition. At most one Token is
// outstanding at any time.
type Manager struct {
	mu      sync.Mutex
	cond    *sync.Cond
	held    bool
	current Token
}

// New returns an unheld Manager.
func New() *Manager {
	m := &Manager{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Acquire blocks (or fails, per policy) until the lease is free, then
// claims it and returns a Token identifying this holder.
func (m *Manager) Acquire(ctx context.Context, policy Policy) (Token, error) {
	switch policy.Kind {
	case PolicyFailImmediate:
		return m.tryAcquireOnce()
	case PolicyWaitIndefinite:
		return m.acquireWithContext(ctx)
	case PolicyWaitWithDeadline:
		dctx, cancel := context.WithTimeout(ctx, policy.Deadline)
		defer cancel()
		tok, err := m.acquireWithContext(dctx)
		if err != nil && dctx.Err() != nil && ctx.Err() == nil {
			return Token{}, ErrTimeout
		}
		return tok, err
	default:
		return Token{}, fmt.Errorf("lease: unknown policy kind %d", policy.Kind)
	}
}

func (m *Manager) tryAcquireOnce() (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held {
		return Token{}, ErrBusy
	}
	return m.claimLocked(), nil
}

// acquireWithContext waits on the condition variable until the lease is
// free or ctx is done. Cancellation aborts the wait without side
// effects, per spec.md §5.
func (m *Manager) acquireWithContext(ctx context.Context) (Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.held {
		return m.claimLocked(), nil
	}

	// sync.Cond has no cancellable Wait, so a watcher goroutine broadcasts
	// the condition when ctx is cancelled; we distinguish "woken by
	// release" from "woken by cancellation" by rechecking ctx.Err().
	done := make(chan struct{})
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.cond.Broadcast()
			m.mu.Unlock()
		case <-stopWatch:
		}
		close(done)
	}()

	for m.held {
		if ctx.Err() != nil {
			return Token{}, ctx.Err()
		}
		m.cond.Wait()
	}
	if ctx.Err() != nil {
		return Token{}, ctx.Err()
	}
	return m.claimLocked(), nil
}

func (m *Manager) claimLocked() Token {
	m.held = true
	m.current = Token{id: uuid.New()}
	return m.current
}

// Release frees the lease. It returns an error if tok does not match the
// current holder.
func (m *Manager) Release(tok Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held || tok.id != m.current.id {
		return fmt.Errorf("lease: release: token does not match current holder")
	}
	m.held = false
	m.current = Token{}
	m.cond.Broadcast()
	return nil
}

// Holder returns the current token and whether the lease is held.
func (m *Manager) Holder() (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.held
}
