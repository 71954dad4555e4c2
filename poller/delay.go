package poller

import (
	"container/heap"
	"sync/atomic"
	"time"
)

// DelayTask is a closure scheduled to run at (or after) an absolute
// deadline. Its return value is the next interval to wait before
// running again; 0 means "run once".
type DelayTask func() time.Duration

// delayEntry is one node of the reactor's delay-task min-heap, ordered
// by deadline with insertion-order tie-breaks.
type delayEntry struct {
	deadline time.Time
	seq      uint64
	index    int // heap.Interface bookkeeping
	fn       atomic.Pointer[DelayTask]
}

func newDelayEntry(deadline time.Time, seq uint64, fn DelayTask) *delayEntry {
	e := &delayEntry{deadline: deadline, seq: seq, index: -1}
	e.fn.Store(&fn)
	return e
}

// Cancel nulls the wrapped closure; a racing fire sees nil and treats
// it as a cancelled one-shot (next interval 0, entry dropped).
func (e *delayEntry) Cancel() {
	e.fn.Store(nil)
}

// run invokes the delay task if still live, returning (ran, next).
func (e *delayEntry) run() (bool, time.Duration) {
	p := e.fn.Load()
	if p == nil {
		return false, 0
	}
	return true, (*p)()
}

// delayHeap implements container/heap.Interface over *delayEntry,
// ordered by deadline, then by insertion sequence for tie-breaks.
type delayHeap []*delayEntry

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayHeap) Push(x interface{}) {
	e := x.(*delayEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *delayHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

var _ heap.Interface = (*delayHeap)(nil)
