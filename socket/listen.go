package socket

import (
	"net"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/poller"
)

// NewListenFD creates, binds and listens a nonblocking TCP socket on
// port/localIP with the given backlog, without attaching it to any
// reactor. Exposed so a TCP server can create the fd once and attach
// it to every pool reactor via AttachSharedListener.
func NewListenFD(port int, localIP string, backlog int) (int, error) {
	ip := net.IPv4zero
	v4 := true
	if localIP != "" {
		if parsed := net.ParseIP(localIP); parsed != nil {
			ip = parsed
			v4 = parsed.To4() != nil
		}
	}

	fd, err := newNonblockingSocket(domainFor(v4), unix.SOCK_STREAM)
	if err != nil {
		return -1, errs.Wrap(errs.Other, err, "socket")
	}
	configureListenFD(fd)

	if err := unix.Bind(fd, toSockaddr(ip, port)); err != nil {
		unix.Close(fd)
		return -1, errs.Wrap(errs.Other, err, "bind")
	}
	if backlog <= 0 {
		backlog = DefaultListenBacklog
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, errs.Wrap(errs.Other, err, "listen")
	}
	return fd, nil
}

// Listen creates, binds and listens a TCP socket on port/localIP with
// the given backlog, then installs a Read|Error interest whose
// callback runs the accept loop. Exclusive registration is used so a
// listen fd cloned onto multiple reactors doesn't thundering-herd.
func (s *Socket) Listen(port int, localIP string, backlog int, exclusive bool) error {
	fd, err := NewListenFD(port, localIP, backlog)
	if err != nil {
		return err
	}

	s.udp = false
	s.setFD(fd)

	mask := poller.EventRead | poller.EventError
	if exclusive {
		return s.p.AddEventExclusive(fd, mask, s.acceptCallback)
	}
	return s.p.AddEvent(fd, mask, s.acceptCallback)
}

// BindUdpSocket creates, binds and registers a UDP socket for
// read/write/error readiness.
func (s *Socket) BindUdpSocket(port int, localIP string, reuse bool) error {
	ip := net.IPv4zero
	v4 := true
	if localIP != "" {
		if parsed := net.ParseIP(localIP); parsed != nil {
			ip = parsed
			v4 = parsed.To4() != nil
		}
	}

	fd, err := newNonblockingSocket(domainFor(v4), unix.SOCK_DGRAM)
	if err != nil {
		return errs.Wrap(errs.Other, err, "socket")
	}
	configureUDPFD(fd, reuse)

	if err := unix.Bind(fd, toSockaddr(ip, port)); err != nil {
		unix.Close(fd)
		return errs.Wrap(errs.Other, err, "bind")
	}

	s.udp = true
	s.setFD(fd)
	s.writable.Store(true)
	s.recvEnabled.Store(true)

	return s.attachEvent(fd, poller.EventRead|poller.EventWrite|poller.EventError)
}

// acceptCallback runs the accept loop: drain accept(2) until EAGAIN,
// configure each new fd, hand it to onCreateSocket, then run onAccept
// with a scoped sentinel that guarantees attachEvent fires exactly
// once on the peer's reactor.
func (s *Socket) acceptCallback(fd int, ready poller.EventMask) {
	for {
		peerFD, sa, err := unix.Accept(fd)
		if err == unix.EINTR {
			continue
		}
		if isRetryable(err) {
			return
		}
		if err != nil {
			s.log.Error("accept failed", zap.Error(err))
			s.EmitErr(errs.Wrap(errs.Other, err, "accept"))
			return
		}
		s.acceptOne(peerFD, sa)
	}
}

func (s *Socket) acceptOne(peerFD int, sa unix.Sockaddr) {
	configureStreamFD(peerFD)

	if s.OnCreateSocket == nil {
		unix.Close(peerFD)
		return
	}
	peer := s.OnCreateSocket(s.p)
	if peer == nil {
		unix.Close(peerFD)
		return
	}
	peer.udp = false
	peer.setFD(peerFD)

	attached := false
	complete := func() {
		if attached {
			return
		}
		attached = true
		peer.setFD(peerFD)
		mask := poller.EventError
		if peer.recvEnabled.Load() {
			mask |= poller.EventRead
		}
		if err := peer.attachEvent(peerFD, mask); err != nil {
			peer.log.Error("attach accepted fd failed", zap.Error(err))
			unix.Close(peerFD)
		}
	}
	defer complete()

	if s.OnAccept == nil {
		return
	}
	s.safeOnAccept(peer, complete)
}

// safeOnAccept recovers a panicking onAccept so one bad accepted
// connection can't take down the accept loop.
func (s *Socket) safeOnAccept(peer *Socket, complete func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("onAccept panicked", zap.Any("recover", r))
		}
	}()
	s.OnAccept(peer, complete)
}
