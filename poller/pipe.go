package poller

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// wakeupPipe is the self-pipe used to interrupt a reactor blocked in
// its readiness notifier when a task is enqueued from another thread
//. Writes are deliberately best-effort:
// the pipe only needs to be non-empty, not carry a byte per task.
type wakeupPipe struct {
	r, w    int
	pending int32 // coalesces bursts of notify() into a single byte
	once    sync.Once
}

func newWakeupPipe() (*wakeupPipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, errors.Wrap(err, "wakeup pipe: pipe(2)")
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, errors.Wrap(err, "wakeup pipe: set nonblock")
		}
		unix.CloseOnExec(fd)
	}
	return &wakeupPipe{r: fds[0], w: fds[1]}, nil
}

// notify writes one byte if none is already pending, guaranteeing the
// notifier's next Wait returns promptly without flooding the pipe
// under heavy cross-thread submission.
func (p *wakeupPipe) notify() {
	if !atomic.CompareAndSwapInt32(&p.pending, 0, 1) {
		return
	}
	for {
		_, err := unix.Write(p.w, []byte{0})
		if err == unix.EINTR {
			continue
		}
		break
	}
}

// drain empties the pipe; called by the reactor loop after observing
// readiness on p.r, before running queued tasks.
func (p *wakeupPipe) drain() {
	var buf [64]byte
	for {
		n, err := unix.Read(p.r, buf[:])
		if err == unix.EINTR {
			continue
		}
		if n <= 0 || err != nil {
			break
		}
	}
	atomic.StoreInt32(&p.pending, 0)
}

func (p *wakeupPipe) close() {
	p.once.Do(func() {
		unix.Close(p.r)
		unix.Close(p.w)
	})
}
