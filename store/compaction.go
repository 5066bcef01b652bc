package store

import (
	"context"
	"fmt"
	"os"

	"github.com/waxstore/wax/internal/bda"
	"github.com/waxstore/wax/internal/catalog"
	"github.com/waxstore/wax/internal/lease"
)

// Rewrite implements the live-set rewrite (compaction) contract from
// spec.md §4.9: it produces a brand-new store at destPath containing
// every FrameId from src with identical role/status/metadata and
// supersedes/supersededBy links, but payload bytes only for frames that
// are currently live. The source is never modified; the new file can be
// promoted with an atomic rename by the caller.
func Rewrite(src *Coordinator, destPath string, opts Options) (err error) {
	src.opLock.RLock()
	srcFrames := make([]*catalog.FrameMeta, 0, len(src.order))
	for _, id := range src.order {
		srcFrames = append(srcFrames, src.committed[id])
	}
	srcFooterOffset := src.footerOffset
	src.opLock.RUnlock()

	dest, err := Create(destPath, src.ring.Size(), opts)
	if err != nil {
		return fmt.Errorf("store: rewrite: %w", err)
	}
	defer func() {
		dest.Close()
		if err != nil {
			os.Remove(destPath)
		}
	}()

	tok, err := dest.AcquireWriter(context.Background(), lease.Policy{Kind: lease.PolicyFailImmediate})
	if err != nil {
		return fmt.Errorf("store: rewrite: %w", err)
	}

	for _, fm := range srcFrames {
		clone := fm.Clone()
		var payload []byte
		if fm.IsLive() {
			payload = make([]byte, fm.StoredLength)
			if err := bda.ReadExactly(src.dev, payload, int64(fm.PayloadOffset)); err != nil {
				dest.ReleaseWriter(tok)
				return fmt.Errorf("store: rewrite: read source payload for frame %d: %w", fm.ID, err)
			}
		} else {
			clone.PayloadOffset = 0
			clone.StoredLength = 0
		}
		if err := dest.putRawForRewrite(tok, clone, payload); err != nil {
			dest.ReleaseWriter(tok)
			return fmt.Errorf("store: rewrite: frame %d: %w", fm.ID, err)
		}
	}

	if err := dest.Commit(tok); err != nil {
		dest.ReleaseWriter(tok)
		return fmt.Errorf("store: rewrite: commit: %w", err)
	}
	if err := dest.ReleaseWriter(tok); err != nil {
		return fmt.Errorf("store: rewrite: %w", err)
	}

	if err := validateRewrite(src, srcFrames, dest); err != nil {
		return err
	}

	srcSize := int64(srcFooterOffset) + 64
	destStat, statErr := os.Stat(destPath)
	if statErr != nil {
		return fmt.Errorf("store: rewrite: %w", statErr)
	}
	if destStat.Size() >= srcSize {
		return fmt.Errorf("%w: source %d bytes, rewrite %d bytes", ErrRewriteNoShrink, srcSize, destStat.Size())
	}

	return nil
}

func validateRewrite(src *Coordinator, srcFrames []*catalog.FrameMeta, dest *Coordinator) error {
	dest.opLock.RLock()
	destCount := len(dest.committed)
	dest.opLock.RUnlock()
	if destCount != len(srcFrames) {
		return fmt.Errorf("%w: source %d, rewrite %d", ErrRewriteCountMismatch, len(srcFrames), destCount)
	}

	for _, fm := range srcFrames {
		if !fm.IsLive() {
			continue
		}
		payload, err := dest.ReadPayload(fm.ID)
		if err != nil {
			return fmt.Errorf("store: rewrite: validate frame %d: %w", fm.ID, err)
		}
		if sha := hashCanonical(payload); sha != fm.CanonicalSHA256 {
			return fmt.Errorf("%w: frame %d", ErrHashMismatch, fm.ID)
		}
	}
	return nil
}
