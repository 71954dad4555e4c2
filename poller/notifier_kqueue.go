//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package poller

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// kqueueNotifier is the BSD-family readiness backend. kqueue has no
// EPOLLEXCLUSIVE equivalent; listen fds cloned across reactors rely
// purely on kernel-level accept() fairness here.
type kqueueNotifier struct {
	kq     int
	events []unix.Kevent_t
}

func newNotifier() (notifier, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "kqueue")
	}
	unix.CloseOnExec(kq)
	return &kqueueNotifier{kq: kq, events: make([]unix.Kevent_t, 256)}, nil
}

func (n *kqueueNotifier) change(fd int, filter int16, flags uint16) error {
	kev := unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
	_, err := unix.Kevent(n.kq, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (n *kqueueNotifier) Add(fd int, mask EventMask) error {
	flags := uint16(unix.EV_ADD)
	if !mask.has(EventLevelTriggered) {
		flags |= unix.EV_CLEAR
	}
	if mask.has(EventRead) {
		if err := n.change(fd, unix.EVFILT_READ, flags); err != nil {
			return errors.Wrap(err, "kevent add read")
		}
	}
	if mask.has(EventWrite) {
		if err := n.change(fd, unix.EVFILT_WRITE, flags); err != nil {
			return errors.Wrap(err, "kevent add write")
		}
	}
	return nil
}

func (n *kqueueNotifier) Modify(fd int, mask EventMask) error {
	// kqueue has independent read/write filters; modify = add the
	// wanted ones and delete the unwanted ones.
	if mask.has(EventRead) {
		if err := n.Add(fd, EventRead|(mask&EventLevelTriggered)); err != nil {
			return err
		}
	} else {
		_ = n.change(fd, unix.EVFILT_READ, unix.EV_DELETE)
	}
	if mask.has(EventWrite) {
		if err := n.Add(fd, EventWrite|(mask&EventLevelTriggered)); err != nil {
			return err
		}
	} else {
		_ = n.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	}
	return nil
}

func (n *kqueueNotifier) Remove(fd int) error {
	_ = n.change(fd, unix.EVFILT_READ, unix.EV_DELETE)
	_ = n.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	return nil
}

func (n *kqueueNotifier) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	count, err := unix.Kevent(n.kq, nil, n.events, ts)
	if err == unix.EINTR {
		return dst, nil
	}
	if err != nil {
		return dst, errors.Wrap(err, "kevent wait")
	}
	merged := make(map[int]EventMask, count)
	order := make([]int, 0, count)
	for i := 0; i < count; i++ {
		raw := n.events[i]
		fd := int(raw.Ident)
		if _, ok := merged[fd]; !ok {
			order = append(order, fd)
		}
		var mask EventMask
		switch raw.Filter {
		case unix.EVFILT_READ:
			mask |= EventRead
		case unix.EVFILT_WRITE:
			mask |= EventWrite
		}
		if raw.Flags&unix.EV_EOF != 0 || raw.Flags&unix.EV_ERROR != 0 {
			mask |= EventError
		}
		merged[fd] |= mask
	}
	for _, fd := range order {
		dst = append(dst, Event{Fd: fd, Ready: merged[fd]})
	}
	return dst, nil
}

func (n *kqueueNotifier) Close() error {
	return unix.Close(n.kq)
}
