package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestPool_RunsJob(t *testing.T) {
	p := NewPool(discardLogger(), 2, 4)
	defer p.Stop()

	ran := false
	err := p.Do(context.Background(), "ok", func() error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
}

func TestPool_ReturnsJobError(t *testing.T) {
	p := NewPool(discardLogger(), 1, 1)
	defer p.Stop()

	boom := errors.New("boom")
	err := p.Do(context.Background(), "fail", func() error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestPool_RecoversPanic(t *testing.T) {
	p := NewPool(discardLogger(), 1, 1)
	defer p.Stop()

	err := p.Do(context.Background(), "panic", func() error { panic("bad tensor") })
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad tensor")

	require.NoError(t, p.Do(context.Background(), "after", func() error { return nil }))
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const workers = 2
	p := NewPool(discardLogger(), workers, 16)
	defer p.Stop()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Do(context.Background(), "count", func() error {
				n := running.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, peak.Load(), int32(workers))
}

func TestPool_ContextCancelledWhileQueued(t *testing.T) {
	p := NewPool(discardLogger(), 1, 0)
	defer p.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = p.Do(context.Background(), "blocker", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, "queued", func() error { return nil })
	require.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestPool_Stopped(t *testing.T) {
	p := NewPool(discardLogger(), 1, 1)
	p.Stop()
	p.Stop()

	err := p.Do(context.Background(), "late", func() error { return nil })
	require.ErrorIs(t, err, ErrPoolStopped)
}
