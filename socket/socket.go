// Package socket implements the core's single abstraction over a file
// descriptor: exactly one Socket binds one fd to one reactor for its
// whole life and mediates every read/write/accept/connect callback.
package socket

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yexxx/myNetWorkLib/buffer"
	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/poller"
	"github.com/yexxx/myNetWorkLib/xlog"
)

// DefaultMaxSendBufferMs is how long a socket may remain unable to
// drain its send buffer before a terminal timeout error is raised.
const DefaultMaxSendBufferMs = 10_000

// DefaultListenBacklog is the backlog passed to listen(2) when the
// caller doesn't specify one.
const DefaultListenBacklog = 32

// pendingWrite is one user Send() call not yet folded into a
// SendAggregator.
type pendingWrite struct {
	data []byte
	addr net.Addr
	done buffer.CompletionFunc
}

// Socket binds one fd to one Poller for its entire life. All
// FD-mutating methods execute on that Poller's loop goroutine;
// cross-thread callers are transparently posted there via
// Poller.Async.
type Socket struct {
	p *poller.Poller

	fdMu sync.Mutex
	fd   int // -1 means "no fd"

	recvEnabled atomic.Bool
	writable    atomic.Bool

	sendMu  sync.Mutex
	waiting []pendingWrite
	sending []*buffer.SendAggregator

	notSendableSinceNs atomic.Int64 // 0 = currently sendable

	connectTimer       *poller.CancelHandle
	sendTimeoutTask    *poller.CancelHandle
	asyncConnectCancel *poller.CancelHandle

	udp      bool
	peerAddr net.Addr // UDP: bound peer set via BindPeerAddr, nil otherwise

	// sharedRefs is non-nil when this socket holds one reference to an
	// fd cloned across multiple reactors (a TCP server's listen fd
	// duplicated onto every pool reactor); closeFD decrements it and
	// only issues close(2) when the last holder drops.
	sharedRefs *atomic.Int32

	MaxSendBufferMs int

	// Capability set: the framework only stores opaque
	// handles, all dispatch is via these fields. Must be set before
	// the socket is attached to its fd; not safe to mutate
	// concurrently with dispatch afterwards.
	OnRead         func(buf []byte, peer net.Addr)
	OnErr          func(err *errs.Error)
	OnAccept       func(peer *Socket, complete func())
	OnFlush        func()
	OnCreateSocket func(p *poller.Poller) *Socket
	OnSendResult   func(n int, err error)

	closed atomic.Bool
	log    *zap.Logger
}

// New creates a Socket bound to p, with no fd yet attached.
func New(p *poller.Poller) *Socket {
	return &Socket{
		p:               p,
		fd:              -1,
		MaxSendBufferMs: DefaultMaxSendBufferMs,
		log:             xlog.Socket(-1),
	}
}

// Poller returns the reactor this socket is permanently bound to.
func (s *Socket) Poller() *poller.Poller { return s.p }

// FD returns the current fd, or -1 if none is attached.
func (s *Socket) FD() int {
	s.fdMu.Lock()
	defer s.fdMu.Unlock()
	return s.fd
}

func (s *Socket) setFD(fd int) {
	s.fdMu.Lock()
	s.fd = fd
	s.fdMu.Unlock()
	s.log = xlog.Socket(fd)
}

// LocalAddr reports the socket's bound local address, useful after
// Listen(0, ...) or BindUdpSocket(0, ...) to discover the
// kernel-assigned ephemeral port.
func (s *Socket) LocalAddr() (net.Addr, error) {
	fd := s.FD()
	if fd < 0 {
		return nil, errs.New(errs.Other, "localAddr: no fd")
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, errs.Wrap(errs.Other, err, "getsockname")
	}
	return fromSockaddr(sa, s.udp), nil
}

// EnableRecv idempotently toggles read-interest.
func (s *Socket) EnableRecv(enable bool) {
	if s.recvEnabled.Swap(enable) == enable {
		return
	}
	s.p.Async(func() { s.syncInterest() }, true)
}

func (s *Socket) interestMask() poller.EventMask {
	mask := poller.EventError
	if s.recvEnabled.Load() {
		mask |= poller.EventRead
	}
	s.sendMu.Lock()
	needWrite := len(s.sending) > 0 || len(s.waiting) > 0 || !s.writable.Load()
	s.sendMu.Unlock()
	if needWrite {
		mask |= poller.EventWrite
	}
	return mask
}

func (s *Socket) syncInterest() {
	fd := s.FD()
	if fd < 0 {
		return
	}
	_ = s.p.ModifyEvent(fd, s.interestMask())
}

// attachEvent installs the dispatch callback for fd with the given
// initial mask; it must run on s.p's loop goroutine.
func (s *Socket) attachEvent(fd int, mask poller.EventMask) error {
	return s.p.AddEvent(fd, mask, s.handleEvent)
}

func (s *Socket) handleEvent(fd int, ready poller.EventMask) {
	if ready&poller.EventError != 0 && !s.udp {
		// Let a coincident readable/writable event still get a chance
		// to report EOF/ECONNRESET with more detail from the syscall
		// itself; fall through instead of returning immediately.
	}
	if ready&poller.EventRead != 0 {
		s.onReadable(fd)
	}
	if s.closed.Load() {
		return
	}
	if ready&poller.EventWrite != 0 {
		s.onWritable(fd)
	}
}

// EmitErr closes the fd (if any) synchronously and posts onErr to the
// owning reactor so the user observes it exactly once, single
// threaded.
func (s *Socket) EmitErr(e *errs.Error) bool {
	fd := s.FD()
	if fd < 0 {
		return false
	}
	s.closeFD()
	s.p.Async(func() {
		if s.OnErr != nil {
			s.OnErr(e)
		}
	}, true)
	return true
}

func (s *Socket) closeFD() {
	s.fdMu.Lock()
	fd := s.fd
	s.fd = -1
	refs := s.sharedRefs
	s.sharedRefs = nil
	s.fdMu.Unlock()
	if fd < 0 {
		return
	}
	s.closed.Store(true)
	_ = s.p.DelEvent(fd)
	if refs != nil && refs.Add(-1) > 0 {
		// other clones still hold this fd; this reactor's registration
		// is gone but the fd itself stays open.
		return
	}
	unix.Shutdown(fd, unix.SHUT_RDWR)
	unix.Close(fd)
}

// AttachSharedListener binds an already-created, already-listening fd
// to this socket on its own reactor, incrementing refs to record this
// as one of possibly several reactors sharing the fd (a TCP listener
// cloned across the pool). exclusive requests EPOLLEXCLUSIVE so the
// shared registration doesn't thundering-herd accept.
func (s *Socket) AttachSharedListener(fd int, refs *atomic.Int32, exclusive bool) error {
	refs.Add(1)
	s.udp = false
	s.sharedRefs = refs
	s.setFD(fd)

	mask := poller.EventRead | poller.EventError
	if exclusive {
		return s.p.AddEventExclusive(fd, mask, s.acceptCallback)
	}
	return s.p.AddEvent(fd, mask, s.acceptCallback)
}

// CloseSocket releases the connect timer, any pending async-connect
// continuation, and the fd holder.
func (s *Socket) CloseSocket() {
	s.p.Async(func() {
		if s.connectTimer != nil {
			s.connectTimer.Cancel()
			s.connectTimer = nil
		}
		if s.asyncConnectCancel != nil {
			s.asyncConnectCancel.Cancel()
			s.asyncConnectCancel = nil
		}
		if s.sendTimeoutTask != nil {
			s.sendTimeoutTask.Cancel()
			s.sendTimeoutTask = nil
		}
		s.closeFD()
		s.sendMu.Lock()
		for _, agg := range s.sending {
			agg.Discard()
		}
		s.sending = nil
		for _, w := range s.waiting {
			if w.done != nil {
				w.done(false, 0)
			}
		}
		s.waiting = nil
		s.sendMu.Unlock()
	}, true)
}

// BindPeerAddr wires the kernel-level peer for a UDP socket so a
// zero-address Send targets it directly.
func (s *Socket) BindPeerAddr(addr net.Addr) error {
	fd := s.FD()
	if fd < 0 {
		return errs.New(errs.Other, "bindPeerAddr: no fd")
	}
	ip, port := addrIP(addr)
	if err := unix.Connect(fd, toSockaddr(ip, port)); err != nil {
		return errs.Wrap(errs.Other, err, "bindPeerAddr: connect")
	}
	s.peerAddr = addr
	return nil
}

func (s *Socket) armSendTimeout() {
	if s.sendTimeoutTask != nil {
		return
	}
	s.sendTimeoutTask = s.p.DoDelayTask(time.Second, func() time.Duration {
		since := s.notSendableSinceNs.Load()
		if since == 0 {
			return time.Second
		}
		if time.Since(time.Unix(0, since)) > time.Duration(s.MaxSendBufferMs)*time.Millisecond {
			s.EmitErr(errs.New(errs.Timeout, "send buffer timeout"))
			return 0
		}
		return time.Second
	})
}

func (s *Socket) markUnsendable() {
	s.notSendableSinceNs.CompareAndSwap(0, time.Now().UnixNano())
	s.armSendTimeout()
}

func (s *Socket) markSendable() {
	s.notSendableSinceNs.Store(0)
}

// Send appends payload (optionally addressed, for an unconnected UDP
// socket) to the waiting list; done is invoked exactly once when the
// payload is fully sent or dropped. If tryFlush is set, flushAll runs
// immediately — inline with a real result if the caller is already on
// the owning reactor, or posted optimistically otherwise.
func (s *Socket) Send(payload []byte, addr net.Addr, tryFlush bool, done buffer.CompletionFunc) error {
	if s.closed.Load() {
		if done != nil {
			done(false, 0)
		}
		return errs.New(errs.Shutdown, "send on closed socket")
	}
	s.sendMu.Lock()
	s.waiting = append(s.waiting, pendingWrite{data: payload, addr: addr, done: done})
	s.sendMu.Unlock()
	if !tryFlush {
		return nil
	}
	return s.flushAll()
}

// flushAll either flushes inline (returning the real result, when the
// caller is on the owning reactor) or posts the flush and returns nil
// optimistically.
func (s *Socket) flushAll() error {
	if s.p.IsCurrent() {
		if !s.flushData(true) {
			return errs.New(errs.Other, "flush failed")
		}
		return nil
	}
	s.p.Async(func() { s.flushData(false) }, false)
	return nil
}
