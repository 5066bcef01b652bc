package store

import "errors"

// Sentinel errors for the taxonomy in spec.md §7. Coordinator methods
// wrap these with fmt.Errorf("%w: ...") so callers can use errors.Is
// while still getting a specific message.
var (
	// ErrPathConflict is returned by Create when path already exists as
	// a non-empty file, whether or not it is a Wax store.
	ErrPathConflict = errors.New("store: path exists and is not empty")

	// ErrHeaderCorrupt means both header pages failed validation.
	ErrHeaderCorrupt = errors.New("store: header corrupt")
	// ErrTOCCorrupt means the TOC's self-hash or Merkle root didn't verify.
	ErrTOCCorrupt = errors.New("store: toc corrupt")
	// ErrWALCorrupt means a WAL record inside the committed region failed
	// its checksum or sequence check.
	ErrWALCorrupt = errors.New("store: wal corrupt")

	// ErrFrameMissing means the referenced frame ID does not exist.
	ErrFrameMissing = errors.New("store: frame missing")
	// ErrFrameNotActive means an operation required an active frame but
	// found one already deleted.
	ErrFrameNotActive = errors.New("store: frame not active")
	// ErrDuplicateSequence means WAL replay encountered a sequence number
	// it had already applied out of order relative to its neighbors.
	ErrDuplicateSequence = errors.New("store: duplicate wal sequence")

	// ErrHashMismatch means a payload's canonical or stored hash didn't
	// match its recorded checksum.
	ErrHashMismatch = errors.New("store: hash mismatch")

	// ErrWriterBusy means AcquireWriter was called with a fail-immediate
	// policy while another lease was outstanding.
	ErrWriterBusy = errors.New("store: writer busy")
	// ErrWriterTimeout means AcquireWriter's deadline elapsed.
	ErrWriterTimeout = errors.New("store: writer acquire timed out")
	// ErrNoWriterHeld means an operation requiring the writer lease was
	// called without one.
	ErrNoWriterHeld = errors.New("store: no writer lease held")

	// ErrRewriteNoShrink means a live-set rewrite's output did not
	// strictly shrink the logical footprint, so it was rolled back.
	ErrRewriteNoShrink = errors.New("store: rewrite did not shrink store")
	// ErrRewriteCountMismatch means a live-set rewrite produced a
	// different frame count than its source.
	ErrRewriteCountMismatch = errors.New("store: rewrite frame count mismatch")

	// ErrClosed means an operation was attempted on a closed store.
	ErrClosed = errors.New("store: closed")
)
