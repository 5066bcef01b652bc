package ioexec

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunExecutesBody(t *testing.T) {
	e := New(2, "test")
	ran := false
	err := e.Run(context.Background(), func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRunBoundsConcurrency(t *testing.T) {
	e := New(2, "test")
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Run(context.Background(), func() error {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(2))
}

func TestRunExclusiveBlocksConcurrentRuns(t *testing.T) {
	e := New(4, "test")
	inExclusive := make(chan struct{})
	releaseExclusive := make(chan struct{})

	go func() {
		_ = e.RunExclusive(context.Background(), func() error {
			close(inExclusive)
			<-releaseExclusive
			return nil
		})
	}()
	<-inExclusive

	runDone := make(chan struct{})
	go func() {
		_ = e.Run(context.Background(), func() error { return nil })
		close(runDone)
	}()

	select {
	case <-runDone:
		t.Fatal("Run completed while RunExclusive was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	close(releaseExclusive)
	select {
	case <-runDone:
	case <-time.After(time.Second):
		t.Fatal("Run never completed after RunExclusive finished")
	}
}

func TestRunRespectsContextCancellationBeforeScheduling(t *testing.T) {
	e := New(1, "test")

	release := make(chan struct{})
	go func() {
		_ = e.Run(context.Background(), func() error {
			<-release
			return nil
		})
	}()
	time.Sleep(10 * time.Millisecond) // ensure the slot is taken

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.Run(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}
