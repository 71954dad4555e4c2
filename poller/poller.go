package poller

import (
	"container/heap"
	"container/list"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/xlog"
)

// DefaultReadBufferSize is the shared per-reactor read buffer size a
// Socket borrows into on every readable event.
const DefaultReadBufferSize = 256 * 1024

// Callback is invoked by a Poller when fd becomes ready for the
// returned mask. It must not block for significant time.
type Callback func(fd int, ready EventMask)

// Poller is a single reactor goroutine that owns one readiness
// notifier, a wakeup pipe, a task queue, a delay-task heap, an
// fd→callback map, and a load counter.
// Exactly one goroutine — set at loop entry and never changed — may
// mutate the fd map and delay heap directly; every other caller goes
// through Async.
type Poller struct {
	id   int
	name string

	nf   notifier
	wake *wakeupPipe

	owner *loopOwner

	tasks taskQueue

	// delay is mutated only by the loop goroutine; seq supplies a
	// stable tie-break order for equal deadlines.
	delay delayHeap
	seq   uint64
	timer *time.Timer

	// callbacks is mutated only by the loop goroutine.
	callbacks map[int]Callback

	load *loadCounter

	exit      atomic.Bool
	closeOnce sync.Once

	readBuf []byte

	log *zap.Logger

	pinCPU  int
	pinning bool
}

// EnablePin requests best-effort CPU-affinity pinning of this
// reactor's loop goroutine to cpu, applied when RunLoop starts.
func (p *Poller) EnablePin(cpu int) {
	p.pinCPU = cpu
	p.pinning = true
}

// New constructs a Poller with its own notifier and wakeup pipe. The
// loop does not start until Run or RunLoop is called.
func New(id int, name string) (*Poller, error) {
	nf, err := newNotifier()
	if err != nil {
		return nil, errs.Wrap(errs.Other, err, "poller: create notifier")
	}
	wp, err := newWakeupPipe()
	if err != nil {
		nf.Close()
		return nil, errs.Wrap(errs.Other, err, "poller: create wakeup pipe")
	}
	if err := nf.Add(wp.r, EventRead); err != nil {
		nf.Close()
		wp.close()
		return nil, errs.Wrap(errs.Other, err, "poller: register wakeup pipe")
	}

	p := &Poller{
		id:        id,
		name:      name,
		nf:        nf,
		wake:      wp,
		owner:     newLoopOwner(),
		callbacks: make(map[int]Callback),
		load:      newLoadCounter(),
		timer:     time.NewTimer(time.Hour),
		readBuf:   make([]byte, DefaultReadBufferSize),
		log:       xlog.Reactor(id).With(zap.String("name", name)),
	}
	p.timer.Stop()
	return p, nil
}

// ID reports the reactor's pool-assigned index.
func (p *Poller) ID() int { return p.id }

// Name reports the reactor's thread name, set once at construction
// and never changed.
func (p *Poller) Name() string { return p.name }

// IsCurrent reports whether the calling goroutine is this Poller's
// loop goroutine.
func (p *Poller) IsCurrent() bool { return p.owner.isCurrent() }

// Load returns the rolling sleep-ratio measure used by Pool for
// least-loaded selection; higher means more idle.
func (p *Poller) Load() int64 { return p.load.load() }

// ReadBuffer returns the shared per-reactor scratch buffer a Socket
// reads into before handing bytes to user callbacks. Only valid to
// read from the loop goroutine, between the read syscall and the
// onRead callback returning.
func (p *Poller) ReadBuffer() []byte { return p.readBuf }

// Run starts the loop on a new goroutine and returns immediately.
func (p *Poller) Run() {
	go p.RunLoop()
}

// RunLoop runs the reactor loop on the calling goroutine until Close
// is called or an internal exit task fires. This goroutine becomes
// the loop's permanent owner.
func (p *Poller) RunLoop() {
	if p.pinning {
		pinToCPU(p.pinCPU)
	}
	p.owner.set()
	defer p.teardown()

	var events []Event
	for !p.exit.Load() {
		timeout := p.nextTimeout()

		p.load.enterSleep()
		var err error
		events, err = p.nf.Wait(events[:0], timeout)
		p.load.enterRun()
		if err != nil {
			p.log.Error("notifier wait failed", zap.Error(err))
			continue
		}

		for _, ev := range events {
			if ev.Fd == p.wake.r {
				p.wake.drain()
				p.runTasks()
				continue
			}
			cb, ok := p.callbacks[ev.Fd]
			if !ok {
				// stale fd: deregister silently.
				_ = p.nf.Remove(ev.Fd)
				continue
			}
			p.safeInvoke(cb, ev.Fd, ev.Ready)
		}

		p.runDelayTasks()
	}
}

func (p *Poller) safeInvoke(cb Callback, fd int, mask EventMask) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("reactor callback panicked", zap.Int("fd", fd), zap.Any("recover", r))
		}
	}()
	cb(fd, mask)
}

func (p *Poller) teardown() {
	p.wake.drain()
	p.wake.close()
	p.nf.Close()
	p.timer.Stop()
}

// nextTimeout computes the minimum delay until the next delay-task
// deadline, or -1 (block indefinitely) when none are pending.
func (p *Poller) nextTimeout() time.Duration {
	if len(p.delay) == 0 {
		return -1
	}
	d := time.Until(p.delay[0].deadline)
	if d < 0 {
		return 0
	}
	return d
}

// runTasks drains the FIFO task queue in one pass and runs it in
// order, stopping early if an exit task has set the exit flag.
func (p *Poller) runTasks() {
	drained := p.tasks.drain()
	if drained == nil {
		return
	}
	for e := drained.Front(); e != nil; e = e.Next() {
		ti := e.Value.(*taskItem)
		ti.run()
		if p.exit.Load() {
			return
		}
	}
}

// runDelayTasks services every delay entry whose deadline has
// elapsed, reinserting repeating ones at now+next.
func (p *Poller) runDelayTasks() {
	now := time.Now()
	for len(p.delay) > 0 && !p.delay[0].deadline.After(now) {
		e := heap.Pop(&p.delay).(*delayEntry)
		ran, next := e.run()
		if !ran || next <= 0 {
			continue
		}
		e.deadline = now.Add(next)
		heap.Push(&p.delay, e)
	}
}

// Async schedules task for execution on this Poller's loop goroutine.
// If maySync is true and the caller is already on that goroutine, the
// task runs inline and Async returns nil. Otherwise it is queued and
// the wakeup pipe is pinged.
func (p *Poller) Async(task Task, maySync bool) *CancelHandle {
	if maySync && p.IsCurrent() {
		task()
		return nil
	}
	ti := newTaskItem(task)
	p.tasks.pushBack(ti)
	p.wake.notify()
	return &CancelHandle{cancel: ti.Cancel}
}

// AsyncFirst is Async but pushes to the head of the queue, used for
// work that must race ahead of already-queued tasks (delay-task
// scheduling, Close's exit task).
func (p *Poller) AsyncFirst(task Task, maySync bool) *CancelHandle {
	if maySync && p.IsCurrent() {
		task()
		return nil
	}
	ti := newTaskItem(task)
	p.tasks.pushFront(ti)
	p.wake.notify()
	return &CancelHandle{cancel: ti.Cancel}
}

// DoDelayTask schedules task to first run after delay, then again
// after each interval task returns, until it returns 0 or is
// cancelled. The entry and its cancel handle are built synchronously
// so the returned handle is valid immediately, whether or not the
// caller is on the loop goroutine.
func (p *Poller) DoDelayTask(delay time.Duration, task DelayTask) *CancelHandle {
	seq := atomic.AddUint64(&p.seq, 1)
	e := newDelayEntry(time.Now().Add(delay), seq, task)
	p.AsyncFirst(func() {
		heap.Push(&p.delay, e)
	}, true)
	return &CancelHandle{cancel: e.Cancel}
}

// AddEvent registers cb for fd's readiness under mask. If the caller
// is on the loop goroutine the fd map is updated directly; otherwise
// the registration is posted as a task.
func (p *Poller) AddEvent(fd int, mask EventMask, cb Callback) error {
	install := func() error {
		p.callbacks[fd] = cb
		return p.nf.Add(fd, mask)
	}
	if p.IsCurrent() {
		return install()
	}
	p.Async(func() { _ = install() }, false)
	return nil
}

// SetCallback swaps the callback bound to an already-registered fd
// without touching the notifier's interest mask. Used by a connect
// path to hand off from a transient "check SO_ERROR" callback to a
// socket's steady-state dispatcher once the handshake completes.
func (p *Poller) SetCallback(fd int, cb Callback) {
	set := func() { p.callbacks[fd] = cb }
	if p.IsCurrent() {
		set()
		return
	}
	p.Async(set, false)
}

// AddEventExclusive behaves like AddEvent but requests EPOLLEXCLUSIVE
// on linux when the same listen fd is registered from multiple
// reactors, to avoid a thundering herd on accept. On
// platforms without exclusive-wake support it is equivalent to
// AddEvent.
func (p *Poller) AddEventExclusive(fd int, mask EventMask, cb Callback) error {
	install := func() error {
		p.callbacks[fd] = cb
		if ex, ok := p.nf.(interface {
			AddExclusive(int, EventMask) error
		}); ok {
			return ex.AddExclusive(fd, mask)
		}
		return p.nf.Add(fd, mask)
	}
	if p.IsCurrent() {
		return install()
	}
	p.Async(func() { _ = install() }, false)
	return nil
}

// DelEvent deregisters fd. Symmetric with AddEvent re: thread
// affinity.
func (p *Poller) DelEvent(fd int) error {
	remove := func() error {
		delete(p.callbacks, fd)
		return p.nf.Remove(fd)
	}
	if p.IsCurrent() {
		return remove()
	}
	p.Async(func() { _ = remove() }, false)
	return nil
}

// ModifyEvent rewrites fd's interest mask. Expected to run on the
// loop goroutine; calling off-loop is still made safe
// by posting, but callers on the fast path should prefer to already
// be on-loop.
func (p *Poller) ModifyEvent(fd int, mask EventMask) error {
	modify := func() error { return p.nf.Modify(fd, mask) }
	if p.IsCurrent() {
		return modify()
	}
	p.Async(func() { _ = modify() }, false)
	return nil
}

// Close stops the loop. Safe to call from any goroutine, any number
// of times.
func (p *Poller) Close() error {
	p.closeOnce.Do(func() {
		p.AsyncFirst(func() { p.exit.Store(true) }, false)
	})
	return nil
}

func (p *Poller) String() string {
	return fmt.Sprintf("poller[%d:%s]", p.id, p.name)
}
