package poller

import (
	"runtime"
	"strconv"
	"sync/atomic"
)

// goroutineID parses the numeric id out of runtime.Stack's header
// line. It is used only to answer "is the caller already running on
// the reactor's own loop goroutine", the single-thread-ownership
// check addEvent/delEvent/async(maySync) all need. No dependency in
// the examined corpus exposes a stable public API for this narrow
// need (see DESIGN.md), so it's a small self-contained helper rather
// than a borrowed library.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if len(b) <= len(prefix) {
		return -1
	}
	b = b[len(prefix):]
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	id, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// loopOwner tracks the goroutine id currently running a Poller's
// loop, set once at loop entry and never changed.
type loopOwner struct {
	id atomic.Int64
}

func newLoopOwner() *loopOwner {
	lo := &loopOwner{}
	lo.id.Store(-1)
	return lo
}

func (lo *loopOwner) set()         { lo.id.Store(goroutineID()) }
func (lo *loopOwner) isCurrent() bool { return lo.id.Load() == goroutineID() }
