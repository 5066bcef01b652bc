// Package ioexec implements the blocking-I/O executor from spec.md §4.8/§5:
// a small pool that runs syscalls off the caller's goroutine so the task
// layer never blocks waiting on disk, exposing Run (may overlap with other
// Run calls) and RunExclusive (runs with nothing else in flight).
package ioexec

import (
	"context"
	"fmt"

	"github.com/waxstore/wax/internal/rwmutex"
)

// Executor bounds the number of concurrent blocking-I/O calls with a
// semaphore and serializes exclusive calls against everything else with an
// internal writer-priority lock, mirroring the "concurrent-reads /
// exclusive-writes discipline" spec.md names for the thread pool.
type Executor struct {
	sem   chan struct{}
	guard *rwmutex.RWLock
	label string
}

// New returns an Executor that allows up to concurrency overlapping Run
// calls. label is carried through for diagnostics (it corresponds to
// wax's io_thread_pool_label configuration knob).
func New(concurrency int, label string) *Executor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Executor{
		sem:   make(chan struct{}, concurrency),
		guard: rwmutex.New(),
		label: label,
	}
}

// Run executes body on a pool goroutine, bounded by the configured
// concurrency, and may overlap with other Run calls. It blocks the caller
// until body returns or ctx is cancelled; if ctx is cancelled after body
// has started, Run returns ctx.Err() while body keeps running.
func (e *Executor) Run(ctx context.Context, body func() error) error {
	e.guard.RLock()
	defer e.guard.RUnlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		done <- result{err: body()}
	}()

	select {
	case r := <-done:
		return r.err
	case <-ctx.Done():
		// The syscall itself is not interruptible; this context only gates
		// suspension points between syscalls, per spec.md §5. The
		// goroutine still completes in the background.
		return ctx.Err()
	}
}

// RunExclusive executes body with no other Run or RunExclusive call in
// flight on this executor.
func (e *Executor) RunExclusive(ctx context.Context, body func() error) error {
	if err := e.guard.LockContext(ctx); err != nil {
		return fmt.Errorf("ioexec: %s: acquire exclusive: %w", e.label, err)
	}
	defer e.guard.Unlock()
	return body()
}
