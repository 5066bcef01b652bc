package rwmutex

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRWLockAllowsConcurrentReaders(t *testing.T) {
	l := New()
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RLock()
			defer l.RUnlock()
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()
	assert.Greater(t, atomic.LoadInt32(&maxActive), int32(1))
}

func TestRWLockExcludesWriterAndReaders(t *testing.T) {
	l := New()
	l.RLock()

	acquired := make(chan struct{})
	go func() {
		l.Lock()
		close(acquired)
		l.Unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired lock while a reader held it")
	case <-time.After(30 * time.Millisecond):
	}
	l.RUnlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("writer never acquired lock after reader released")
	}
}

func TestRWLockWriterPriorityBlocksNewReaders(t *testing.T) {
	l := New()
	l.RLock() // hold one reader so the writer below has to wait

	writerWaiting := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		close(writerWaiting)
		l.Lock()
		close(writerDone)
		l.Unlock()
	}()
	<-writerWaiting
	time.Sleep(10 * time.Millisecond) // let the writer register as waiting

	newReaderAcquired := make(chan struct{})
	go func() {
		l.RLock()
		close(newReaderAcquired)
		l.RUnlock()
	}()

	select {
	case <-newReaderAcquired:
		t.Fatal("new reader acquired while a writer was waiting")
	case <-time.After(30 * time.Millisecond):
	}

	l.RUnlock() // release the original reader; writer should go next
	<-writerDone
	<-newReaderAcquired
}

func TestLockContextAbortsOnCancellation(t *testing.T) {
	l := New()
	l.Lock() // hold exclusive lock so LockContext below blocks

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- l.LockContext(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("LockContext did not abort after cancellation")
	}
	l.Unlock()
}

func TestUnfairTryLock(t *testing.T) {
	u := &Unfair{}
	assert.True(t, u.TryLock())
	assert.False(t, u.TryLock())
	u.Unlock()
	assert.True(t, u.TryLock())
	u.Unlock()
}
