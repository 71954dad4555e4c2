package poller

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/yexxx/myNetWorkLib/errs"
)

// Pool is the process-wide set of reactors: it load-balances
// registration work across its Pollers and hands out either the
// caller's own reactor (if it's on one) or the least-busy one.
type Pool struct {
	pollers []*Poller
	pin     bool

	mu      sync.Mutex
	started bool
}

// NewPool creates a Pool of n reactors (n <= 0 defaults to
// runtime.NumCPU()), each named "reactor-<i>". pin requests best-effort
// CPU-affinity pinning of reactor i to CPU i%NumCPU (linux only, a
// silent no-op elsewhere).
func NewPool(n int, pin bool) (*Pool, error) {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	pool := &Pool{pin: pin}
	for i := 0; i < n; i++ {
		p, err := New(i, fmt.Sprintf("reactor-%d", i))
		if err != nil {
			pool.Close()
			return nil, errs.Wrap(errs.Other, err, fmt.Sprintf("pool: create reactor %d", i))
		}
		pool.pollers = append(pool.pollers, p)
	}
	return pool, nil
}

// Start launches every reactor's loop on its own goroutine, pinning
// CPU affinity first when requested.
func (pool *Pool) Start() {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if pool.started {
		return
	}
	pool.started = true
	for i, p := range pool.pollers {
		if pool.pin {
			p.EnablePin(i)
		}
		p.Run()
	}
}

// Size returns the number of reactors in the pool.
func (pool *Pool) Size() int { return len(pool.pollers) }

// At returns the i-th reactor (0-indexed, mod Size for convenience).
func (pool *Pool) At(i int) *Poller {
	return pool.pollers[i%len(pool.pollers)]
}

// GetPoller returns the caller's own reactor if preferCurrent is true
// and the caller is running on one of this pool's loop goroutines;
// otherwise it returns the least-loaded reactor.
func (pool *Pool) GetPoller(preferCurrent bool) *Poller {
	if preferCurrent {
		if p := pool.current(); p != nil {
			return p
		}
	}
	return pool.leastLoaded()
}

func (pool *Pool) current() *Poller {
	for _, p := range pool.pollers {
		if p.IsCurrent() {
			return p
		}
	}
	return nil
}

func (pool *Pool) leastLoaded() *Poller {
	best := pool.pollers[0]
	bestLoad := best.Load()
	for _, p := range pool.pollers[1:] {
		if l := p.Load(); l > bestLoad {
			best, bestLoad = p, l
		}
	}
	return best
}

// ForEach invokes cb once per reactor, in index order.
func (pool *Pool) ForEach(cb func(*Poller)) {
	for _, p := range pool.pollers {
		cb(p)
	}
}

// GetExecutorDelay posts a no-op task to every reactor that measures
// the wall-clock lag between posting and execution, and invokes cb
// once with one sample per reactor, in index order, once every
// reactor has reported.
func (pool *Pool) GetExecutorDelay(cb func(samples []time.Duration)) {
	n := len(pool.pollers)
	samples := make([]time.Duration, n)
	var mu sync.Mutex
	remaining := n
	for i, p := range pool.pollers {
		i, p := i, p
		posted := time.Now()
		p.Async(func() {
			lag := time.Since(posted)
			mu.Lock()
			samples[i] = lag
			remaining--
			done := remaining == 0
			mu.Unlock()
			if done {
				cb(samples)
			}
		}, false)
	}
}

// Close stops every reactor in the pool.
func (pool *Pool) Close() {
	for _, p := range pool.pollers {
		p.Close()
	}
}
