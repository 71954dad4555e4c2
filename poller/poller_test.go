package poller

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newRunningPoller(t *testing.T) *Poller {
	t.Helper()
	p, err := New(0, "test")
	require.NoError(t, err)
	p.Run()
	t.Cleanup(func() { p.Close() })
	return p
}

func TestAsyncRunsOnLoopInSubmissionOrder(t *testing.T) {
	p := newRunningPoller(t)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		i := i
		p.Async(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		}, false)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 10)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestAsyncMaySyncRunsInlineOnOwnThread(t *testing.T) {
	p := newRunningPoller(t)

	done := make(chan bool, 1)
	p.Async(func() {
		ranInline := false
		handle := p.Async(func() { ranInline = true }, true)
		done <- (handle == nil && ranInline)
	}, false)

	require.True(t, <-done)
}

func TestCancelledAsyncTaskNeverRuns(t *testing.T) {
	p := newRunningPoller(t)

	var ran atomic.Bool
	handle := p.Async(func() { ran.Store(true) }, false)
	handle.Cancel()

	// give the loop a chance to have processed the (now no-op) task.
	gate := make(chan struct{})
	p.Async(func() { close(gate) }, false)
	<-gate

	require.False(t, ran.Load())
}

func TestDelayTaskOneShotFiresExactlyOnce(t *testing.T) {
	p := newRunningPoller(t)

	var count atomic.Int32
	fired := make(chan struct{})
	p.DoDelayTask(20*time.Millisecond, func() time.Duration {
		count.Add(1)
		close(fired)
		return 0
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delay task never fired")
	}
	time.Sleep(100 * time.Millisecond)
	require.EqualValues(t, 1, count.Load())
}

func TestDelayTaskRepeatsUntilCancelled(t *testing.T) {
	p := newRunningPoller(t)

	var count atomic.Int32
	handle := p.DoDelayTask(10*time.Millisecond, func() time.Duration {
		count.Add(1)
		return 10 * time.Millisecond
	})

	time.Sleep(80 * time.Millisecond)
	handle.Cancel()
	n := count.Load()
	require.GreaterOrEqual(t, n, int32(3))

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, n, count.Load())
}

func TestIsCurrentOnlyTrueOnLoopGoroutine(t *testing.T) {
	p := newRunningPoller(t)
	require.False(t, p.IsCurrent())

	result := make(chan bool, 1)
	p.Async(func() { result <- p.IsCurrent() }, false)
	require.True(t, <-result)
}
