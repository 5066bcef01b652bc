package store

import (
	"io"
	"log/slog"
	"time"

	"github.com/waxstore/wax/internal/lease"
	"github.com/waxstore/wax/internal/walring"
)

// DefaultWALSize is the ring size Create uses when the caller passes 0.
const DefaultWALSize = 256 << 20

// DefaultProactiveCommitMinPendingBytes is wal_proactive_commit_min_pending_bytes's
// default (spec.md §6).
const DefaultProactiveCommitMinPendingBytes = 128 << 10

// IOThreadPoolPriority is an advisory scheduling hint carried alongside
// io_thread_pool_label. The executor treats all Run calls uniformly and
// the value is kept on Options only; Stats does not report it.
type IOThreadPoolPriority uint8

const (
	IOPriorityNormal IOThreadPoolPriority = iota
	IOPriorityHigh
)

// Options is the exhaustive recognized configuration-knob set from
// spec.md §6. The zero value is a usable default: the FsyncOnCommit WAL
// policy, no proactive commit, no replay snapshot, an I/O executor
// allowing 4 concurrent Run calls, and fail-immediate writer acquisition.
type Options struct {
	// WALFsyncPolicy selects when Append fsyncs the WAL device.
	WALFsyncPolicy walring.FsyncPolicy

	// WALProactiveCommitThresholdPercent, WALProactiveCommitMaxWALSizeBytes,
	// and WALProactiveCommitMinPendingBytes are proactive-commit
	// thresholds in the form walring.Ring.NeedsProactiveCommit takes.
	// The coordinator keeps them on Options but does not evaluate them
	// and never commits on its own; commits happen only when the caller
	// calls Commit. Threshold/MaxBytes of 0 disables proactive commit.
	WALProactiveCommitThresholdPercent int
	WALProactiveCommitMaxWALSizeBytes  uint64
	WALProactiveCommitMinPendingBytes  uint64

	// WALReplayStateSnapshotEnabled toggles writing the optional
	// WALSNAP1 recovery shortcut into the header page on commit.
	WALReplayStateSnapshotEnabled bool

	// IOThreadPoolConcurrency bounds concurrent Run calls in the
	// blocking-I/O executor; IOThreadPoolLabel and IOThreadPoolPriority
	// are carried through for diagnostics.
	IOThreadPoolConcurrency int
	IOThreadPoolLabel       string
	IOThreadPoolPriority    IOThreadPoolPriority

	// WriterAcquirePolicy is kept on Options (a wait-with-deadline policy
	// with no deadline gets 30s); AcquireWriter does not read it and
	// always uses the policy passed to it.
	WriterAcquirePolicy lease.Policy

	// Logger receives structured events for create, open, WAL replay,
	// the backward footer-scan fallback, commit, and staged indexes. A
	// nil Logger discards everything.
	Logger *slog.Logger

	// DebugCrashHook, if set, is invoked synchronously with the name of
	// each named commit checkpoint (CheckpointAfter...) right after its
	// durability step completes. The store's tests set it to record the
	// order the checkpoints fire in; production callers leave it nil.
	DebugCrashHook func(checkpoint string)

	// PayloadCacheCapacity bounds the number of decoded canonical
	// payloads ReadPayload keeps warm in memory. 0 takes the default
	// (256); pass a negative value to disable the cache entirely.
	PayloadCacheCapacity int
}

// withDefaults fills zero-valued fields with usable defaults without
// mutating the caller's Options.
func (o Options) withDefaults() Options {
	if o.WALProactiveCommitMinPendingBytes == 0 {
		o.WALProactiveCommitMinPendingBytes = DefaultProactiveCommitMinPendingBytes
	}
	if o.IOThreadPoolConcurrency == 0 {
		o.IOThreadPoolConcurrency = 4
	}
	if o.IOThreadPoolLabel == "" {
		o.IOThreadPoolLabel = "wax-io"
	}
	if o.WriterAcquirePolicy.Kind == lease.PolicyWaitWithDeadline && o.WriterAcquirePolicy.Deadline == 0 {
		o.WriterAcquirePolicy.Deadline = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.PayloadCacheCapacity == 0 {
		o.PayloadCacheCapacity = 256
	}
	return o
}
