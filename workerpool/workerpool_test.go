package workerpool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubmitRunsJobsConcurrently(t *testing.T) {
	p := New(4)
	defer p.Close()

	var wg sync.WaitGroup
	var n atomic.Int32
	wg.Add(20)
	for i := 0; i < 20; i++ {
		p.Submit(func() {
			n.Add(1)
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs never completed")
	}
	require.EqualValues(t, 20, n.Load())
}

func TestSubmitCancelSuppressesJobEffect(t *testing.T) {
	p := New(1)
	defer p.Close()

	block := make(chan struct{})
	p.Submit(func() { <-block }) // occupy the single worker

	var ran atomic.Bool
	handle := p.Submit(func() { ran.Store(true) })
	handle.Cancel()
	close(block)

	// give the pool a moment to drain the queue.
	time.Sleep(50 * time.Millisecond)
	require.False(t, ran.Load())
}

func TestDefaultIsASingleton(t *testing.T) {
	require.Same(t, Default(), Default())
}
