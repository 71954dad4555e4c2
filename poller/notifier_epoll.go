//go:build linux

package poller

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// epollNotifier is the linux readiness backend: edge-triggered by
// default, with EPOLLEXCLUSIVE attempted on listen fds registered
// from more than one reactor to avoid a thundering herd.
type epollNotifier struct {
	epfd   int
	events []unix.EpollEvent
}

func newNotifier() (notifier, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	return &epollNotifier{epfd: epfd, events: make([]unix.EpollEvent, 256)}, nil
}

func toEpollEvents(mask EventMask) uint32 {
	var ev uint32
	if mask.has(EventRead) {
		ev |= unix.EPOLLIN
	}
	if mask.has(EventWrite) {
		ev |= unix.EPOLLOUT
	}
	// errors/hangups are always delivered by the kernel regardless of
	// registration; EPOLLERR and EPOLLHUP need no explicit bit.
	if !mask.has(EventLevelTriggered) {
		ev |= unix.EPOLLET
	}
	return ev
}

func (n *epollNotifier) ctl(op int, fd int, mask EventMask, exclusive bool) error {
	ev := toEpollEvents(mask)
	if exclusive {
		ev |= unix.EPOLLEXCLUSIVE
	}
	event := unix.EpollEvent{Events: ev, Fd: int32(fd)}
	err := unix.EpollCtl(n.epfd, op, fd, &event)
	if exclusive && err != nil {
		// EPOLLEXCLUSIVE is opt-in best-effort: fall back silently if
		// the kernel or fd type rejects it.
		event.Events = toEpollEvents(mask)
		err = unix.EpollCtl(n.epfd, op, fd, &event)
	}
	return err
}

func (n *epollNotifier) Add(fd int, mask EventMask) error {
	return n.ctl(unix.EPOLL_CTL_ADD, fd, mask, false)
}

func (n *epollNotifier) AddExclusive(fd int, mask EventMask) error {
	return n.ctl(unix.EPOLL_CTL_ADD, fd, mask, true)
}

func (n *epollNotifier) Modify(fd int, mask EventMask) error {
	return n.ctl(unix.EPOLL_CTL_MOD, fd, mask, false)
}

func (n *epollNotifier) Remove(fd int) error {
	err := unix.EpollCtl(n.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return nil
	}
	return err
}

func (n *epollNotifier) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	count, err := unix.EpollWait(n.epfd, n.events, ms)
	if err == unix.EINTR {
		return dst, nil
	}
	if err != nil {
		return dst, errors.Wrap(err, "epoll_wait")
	}
	for i := 0; i < count; i++ {
		raw := n.events[i]
		var mask EventMask
		if raw.Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			mask |= EventRead
		}
		if raw.Events&unix.EPOLLOUT != 0 {
			mask |= EventWrite
		}
		if raw.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			mask |= EventError
		}
		dst = append(dst, Event{Fd: int(raw.Fd), Ready: mask})
	}
	return dst, nil
}

func (n *epollNotifier) Close() error {
	return unix.Close(n.epfd)
}
