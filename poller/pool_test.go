package poller

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPoolGetPollerPrefersCurrent(t *testing.T) {
	pool, err := NewPool(4, false)
	require.NoError(t, err)
	pool.Start()
	t.Cleanup(pool.Close)

	own := pool.At(2)
	result := make(chan *Poller, 1)
	own.Async(func() { result <- pool.GetPoller(true) }, false)
	require.Same(t, own, <-result)
}

func TestPoolGetPollerOffLoopReturnsLeastLoaded(t *testing.T) {
	pool, err := NewPool(3, false)
	require.NoError(t, err)
	pool.Start()
	t.Cleanup(pool.Close)

	p := pool.GetPoller(true)
	require.NotNil(t, p)
	require.Same(t, pool.leastLoaded(), p)
	found := false
	pool.ForEach(func(rp *Poller) {
		if rp == p {
			found = true
		}
	})
	require.True(t, found)
}

func TestPoolForEachVisitsEveryReactor(t *testing.T) {
	pool, err := NewPool(5, false)
	require.NoError(t, err)
	pool.Start()
	t.Cleanup(pool.Close)

	seen := map[int]bool{}
	var mu sync.Mutex
	pool.ForEach(func(p *Poller) {
		mu.Lock()
		seen[p.ID()] = true
		mu.Unlock()
	})
	require.Len(t, seen, 5)
}

func TestPoolGetExecutorDelaySamplesEveryReactor(t *testing.T) {
	pool, err := NewPool(3, false)
	require.NoError(t, err)
	pool.Start()
	t.Cleanup(pool.Close)

	done := make(chan []time.Duration, 1)
	pool.GetExecutorDelay(func(samples []time.Duration) { done <- samples })

	select {
	case samples := <-done:
		require.Len(t, samples, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("executor delay samples never arrived")
	}
}
