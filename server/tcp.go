// Package server implements the TCP and UDP server shells: a listener
// (or bound UDP socket) cloned across every pool reactor, building
// sessions from accepted/demuxed traffic and sweeping them on a
// periodic manager timer.
package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/poller"
	"github.com/yexxx/myNetWorkLib/session"
	"github.com/yexxx/myNetWorkLib/socket"
	"github.com/yexxx/myNetWorkLib/xlog"
)

// DefaultManagerInterval is how often a running server sweeps its
// sessions calling OnManager.
const DefaultManagerInterval = 2 * time.Second

// SessionBuilder constructs a user Session wrapping an accepted or
// demuxed Socket.
type SessionBuilder func(sock *socket.Socket) session.Session

// CreateSocketFunc produces the Socket a server attaches to a newly
// accepted fd or per-peer UDP flow, bound to p. Defaults to
// socket.New(p) when left nil.
type CreateSocketFunc func(p *poller.Poller) *socket.Socket

// TCPServer is one reactor's share of a listener cloned across a
// Pool: the primary owns port binding and fans a shared listen fd out
// to every other reactor via Socket.AttachSharedListener, each with
// its own TCPServer instance and local session set.
type TCPServer struct {
	p            *poller.Poller
	builder      SessionBuilder
	createSocket CreateSocketFunc

	listen *socket.Socket

	mu               sync.Mutex
	sessions         map[*session.Helper]struct{}
	inManager        bool
	deferredRemovals []*session.Helper

	managerTimer *poller.CancelHandle

	alive atomic.Bool
	log   *zap.Logger
}

// Alive implements session.ServerOwner.
func (s *TCPServer) Alive() bool { return s.alive.Load() }

// Addr reports the listen socket's bound local address, useful after
// starting on port 0 to discover the kernel-assigned ephemeral port.
func (s *TCPServer) Addr() (net.Addr, error) { return s.listen.LocalAddr() }

// StartTCPServer binds and listens on port/host across every reactor
// in pool: the first reactor owns the fd, every other reactor gets its
// own exclusive registration of the same fd.
func StartTCPServer(pool *poller.Pool, port int, host string, backlog int, builder SessionBuilder, createSocket CreateSocketFunc) (*TCPServer, error) {
	if createSocket == nil {
		createSocket = func(p *poller.Poller) *socket.Socket { return socket.New(p) }
	}

	fd, err := socket.NewListenFD(port, host, backlog)
	if err != nil {
		return nil, err
	}
	refs := &atomic.Int32{}

	var primary *TCPServer
	for i := 0; i < pool.Size(); i++ {
		srv := newTCPServer(pool.At(i), builder, createSocket)
		if err := srv.attach(fd, refs); err != nil {
			return nil, err
		}
		srv.armManager()
		if i == 0 {
			primary = srv
		}
	}
	return primary, nil
}

func newTCPServer(p *poller.Poller, builder SessionBuilder, createSocket CreateSocketFunc) *TCPServer {
	s := &TCPServer{
		p:            p,
		builder:      builder,
		createSocket: createSocket,
		sessions:     make(map[*session.Helper]struct{}),
		log:          xlog.Reactor(p.ID()).Named("tcpserver"),
	}
	s.alive.Store(true)
	return s
}

func (s *TCPServer) attach(fd int, refs *atomic.Int32) error {
	listen := socket.New(s.p)
	listen.OnCreateSocket = s.createSocket
	listen.OnAccept = s.onAccept
	if err := listen.AttachSharedListener(fd, refs, true); err != nil {
		return err
	}
	s.listen = listen
	return nil
}

func (s *TCPServer) armManager() {
	s.managerTimer = s.p.DoDelayTask(DefaultManagerInterval, s.onManagerTick)
}

// onAccept runs on this server's own reactor, since the accepted peer
// socket was created by createSocket bound to s.p.
func (s *TCPServer) onAccept(peer *socket.Socket, complete func()) {
	sess := s.builder(peer)
	tag := session.Tag(session.NextID(), peer.FD())
	helper := session.NewHelper(session.Default(), tag, sess, s)

	s.mu.Lock()
	s.sessions[helper] = struct{}{}
	s.mu.Unlock()

	peer.OnRead = func(data []byte, addr net.Addr) {
		s.safeRecv(sess, helper, data, addr)
	}
	peer.OnErr = func(err *errs.Error) {
		s.removeSession(helper)
	}
	complete()
}

// safeRecv translates a panicking OnRecv into a shutdown: the panic
// is caught and logged, the loop continues, and the offending session
// is torn down.
func (s *TCPServer) safeRecv(sess session.Session, helper *session.Helper, data []byte, addr net.Addr) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session onRecv panicked", zap.Any("recover", r))
			sess.OnErr(errs.New(errs.Shutdown, "panic in onRecv"))
			s.removeSession(helper)
		}
	}()
	sess.OnRecv(data, addr)
}

// removeSession drops helper from this server's local set and closes
// it. During a manager sweep, removal is deferred to after the
// snapshot finishes iterating so OnManager's iteration never observes
// a mutated set; outside a sweep it
// runs inline — already on the owning reactor thread, since onErr is
// only ever invoked there.
func (s *TCPServer) removeSession(helper *session.Helper) {
	s.mu.Lock()
	if s.inManager {
		s.deferredRemovals = append(s.deferredRemovals, helper)
		s.mu.Unlock()
		return
	}
	delete(s.sessions, helper)
	s.mu.Unlock()
	helper.Close(session.Default())
}

func (s *TCPServer) onManagerTick() time.Duration {
	if !s.alive.Load() {
		return 0
	}

	s.mu.Lock()
	s.inManager = true
	snapshot := make([]*session.Helper, 0, len(s.sessions))
	for h := range s.sessions {
		snapshot = append(snapshot, h)
	}
	s.mu.Unlock()

	for _, h := range snapshot {
		s.safeManage(h)
	}

	s.mu.Lock()
	s.inManager = false
	deferred := s.deferredRemovals
	s.deferredRemovals = nil
	for _, h := range deferred {
		delete(s.sessions, h)
	}
	s.mu.Unlock()
	for _, h := range deferred {
		h.Close(session.Default())
	}

	return DefaultManagerInterval
}

func (s *TCPServer) safeManage(h *session.Helper) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session onManager panicked", zap.Any("recover", r))
		}
	}()
	if h.Alive() {
		h.Session().OnManager()
	}
}

// Close tears this reactor's share of the server down: stops the
// manager timer, releases the listen socket, and drops every local
// session. The underlying fd is only actually
// closed once every clone has done the same, via the shared refcount
// installed by AttachSharedListener.
func (s *TCPServer) Close() {
	if !s.alive.CompareAndSwap(true, false) {
		return
	}
	if s.managerTimer != nil {
		s.managerTimer.Cancel()
	}
	if s.listen != nil {
		s.listen.CloseSocket()
	}
	s.mu.Lock()
	dropped := make([]*session.Helper, 0, len(s.sessions))
	for h := range s.sessions {
		delete(s.sessions, h)
		dropped = append(dropped, h)
	}
	s.mu.Unlock()
	s.p.Async(func() {
		for _, h := range dropped {
			h.Close(session.Default())
		}
	}, true)
}
