// Package workerpool runs blocking work (DNS resolution, today) off
// the reactor loop goroutines on a small fixed-size goroutine pool, in
// the shape of the pack's zoobzio-pipz WorkerPool: bounded concurrency
// via a chan-struct{} semaphore rather than an unbounded go per job.
package workerpool

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/yexxx/myNetWorkLib/poller"
	"github.com/yexxx/myNetWorkLib/xlog"
)

// DefaultSize is the number of concurrent jobs the default pool
// allows; blocking DNS resolution is the only consumer so this stays
// small.
const DefaultSize = 8

// Pool runs submitted jobs on its own goroutines, bounded to size
// concurrent jobs. Submit never blocks the caller's reactor thread: a
// job that can't acquire a slot immediately is queued.
type Pool struct {
	sem   chan struct{}
	queue chan func()

	closed atomic.Bool
	wg     sync.WaitGroup

	log *zap.Logger
}

// New starts a Pool with size worker goroutines.
func New(size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	p := &Pool{
		sem:   make(chan struct{}, size),
		queue: make(chan func(), size*4),
		log:   xlog.Base().Named("workerpool"),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.queue {
		p.runJob(job)
	}
}

func (p *Pool) runJob(job func()) {
	p.sem <- struct{}{}
	defer func() {
		<-p.sem
		if r := recover(); r != nil {
			p.log.Error("job panicked", zap.Any("recover", r))
		}
	}()
	job()
}

// cancelToken lets a caller drop a job that has not started yet: a
// cancelled job is skipped when a worker reaches it. A job already
// running is not interrupted and its effects still happen. Used by an
// async-connect cancellation to skip a superseded DNS lookup.
type cancelToken struct {
	cancelled atomic.Bool
}

func (c *cancelToken) Cancel() { c.cancelled.Store(true) }

// Submit queues job for execution on a pool goroutine and returns a
// handle that skips job if cancelled before it starts (a job already
// running still runs to completion, effects included).
// Submit is safe to call from any goroutine, including a reactor loop.
func (p *Pool) Submit(job func()) *poller.CancelHandle {
	if p.closed.Load() {
		return nil
	}
	tok := &cancelToken{}
	wrapped := func() {
		if tok.cancelled.Load() {
			return
		}
		job()
	}
	select {
	case p.queue <- wrapped:
	default:
		go p.runJob(wrapped)
	}
	return poller.NewCancelHandle(tok.Cancel)
}

// Close stops accepting new jobs and waits for in-flight ones to
// finish.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.queue)
	p.wg.Wait()
}

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the process-wide pool used for blocking DNS
// resolution, lazily started on first use.
func Default() *Pool {
	defaultOnce.Do(func() { defaultPool = New(DefaultSize) })
	return defaultPool
}
