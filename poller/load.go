package poller

import (
	"sync/atomic"
	"time"
)

// loadCounter keeps a rolling measure of the fraction of time a
// reactor spent blocked in the readiness notifier versus running
// callbacks, used by the pool to pick the least-loaded reactor.
//
// It samples over fixed windows rather than an exact integral: each
// window accumulates sleep/run nanoseconds; once a window's total
// exceeds the sample period it is folded into an exponential moving
// average and reset, the way a lightweight load-average is usually
// approximated without a background ticking goroutine per reactor.
type loadCounter struct {
	sleepNs   int64
	runNs     int64
	lastEma   int64 // ema of sleep-ratio * 1e6, atomic
	lastEvent int64 // unix nanos of last transition
	lastKind  int32 // 0 = idle default, 1 = sleeping, 2 = running
}

const loadSamplePeriod = 2 * time.Second

func newLoadCounter() *loadCounter {
	lc := &loadCounter{lastEma: 1_000_000} // start "fully idle"
	lc.lastEvent = time.Now().UnixNano()
	return lc
}

func (lc *loadCounter) enterSleep() { lc.transition(1) }
func (lc *loadCounter) enterRun()   { lc.transition(2) }

func (lc *loadCounter) transition(kind int32) {
	now := time.Now().UnixNano()
	prev := atomic.SwapInt64(&lc.lastEvent, now)
	dt := now - prev
	if dt < 0 {
		dt = 0
	}
	switch atomic.LoadInt32(&lc.lastKind) {
	case 1:
		atomic.AddInt64(&lc.sleepNs, dt)
	case 2:
		atomic.AddInt64(&lc.runNs, dt)
	}
	atomic.StoreInt32(&lc.lastKind, kind)

	sleep := atomic.LoadInt64(&lc.sleepNs)
	run := atomic.LoadInt64(&lc.runNs)
	if total := sleep + run; total >= int64(loadSamplePeriod) {
		ratio := sleep * 1_000_000 / total
		// exponential moving average, weight 1/4 for the new sample
		prevEma := atomic.LoadInt64(&lc.lastEma)
		ema := prevEma - prevEma/4 + ratio/4
		atomic.StoreInt64(&lc.lastEma, ema)
		atomic.StoreInt64(&lc.sleepNs, 0)
		atomic.StoreInt64(&lc.runNs, 0)
	}
}

// load returns a value in [0, 1e6]: 0 means "always running" (fully
// loaded), 1e6 means "always sleeping" (idle). The pool picks the
// reactor with the highest load() value, i.e. the most idle one.
func (lc *loadCounter) load() int64 {
	return atomic.LoadInt64(&lc.lastEma)
}
