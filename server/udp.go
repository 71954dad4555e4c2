package server

import (
	"encoding/binary"
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

// UDPCreateFunc produces the per-peer Socket for a newly observed flow,
// given the datagram and peer address that triggered its creation.
type UDPCreateFunc func(p *poller.Poller, firstDatagram []byte, peer net.Addr) *socket.Socket

// udpFlow is one shared-map entry: the per-peer socket, the reactor it
// lives on, and the session lifecycle handle.
type udpFlow struct {
	p      *poller.Poller
	sock   *socket.Socket
	helper *session.Helper
}

// UDPServer is one reactor's share of a UDP listener bound on every
// pool reactor via SO_REUSEPORT, demuxing by peer address into
// per-flow sockets that share one sessionMap across every clone.
type UDPServer struct {
	p       *poller.Poller
	sock    *socket.Socket
	builder SessionBuilder
	create  UDPCreateFunc
	port    int
	host    string

	flowsMu *sync.Mutex
	flows   map[string]*udpFlow

	managerTimer *poller.CancelHandle
	alive        atomic.Bool
	log          *zap.Logger
}

// Alive implements session.ServerOwner.
func (s *UDPServer) Alive() bool { return s.alive.Load() }

// Addr reports this reactor's bound local address, useful after
// starting on port 0 to discover the kernel-assigned ephemeral port.
func (s *UDPServer) Addr() (net.Addr, error) { return s.sock.LocalAddr() }

// StartUDPServer binds port/host as a UDP socket on every reactor in
// pool, sharing address and port via SO_REUSEPORT, and arms one
// manager sweep on the primary instance.
func StartUDPServer(pool *poller.Pool, port int, host string, builder SessionBuilder, create UDPCreateFunc) (*UDPServer, error) {
	if create == nil {
		create = func(p *poller.Poller, _ []byte, _ net.Addr) *socket.Socket { return socket.New(p) }
	}

	flowsMu := &sync.Mutex{}
	flows := make(map[string]*udpFlow)

	var primary *UDPServer
	for i := 0; i < pool.Size(); i++ {
		p := pool.At(i)
		srv := &UDPServer{
			p:       p,
			builder: builder,
			create:  create,
			port:    port,
			host:    host,
			flowsMu: flowsMu,
			flows:   flows,
			log:     xlog.Reactor(p.ID()).Named("udpserver"),
		}
		srv.alive.Store(true)

		sock := socket.New(p)
		if err := sock.BindUdpSocket(port, host, true); err != nil {
			return nil, err
		}
		sock.OnRead = srv.onDatagram
		srv.sock = sock

		if i == 0 {
			primary = srv
			srv.managerTimer = srv.p.DoDelayTask(DefaultManagerInterval, srv.onManagerTick)
		}
	}
	return primary, nil
}

// onDatagram demuxes an incoming datagram by peer key, delivering
// directly if the owning flow lives on this reactor, reposting
// (copying the bytes) otherwise, or starting a new flow if the peer is
// unseen.
func (s *UDPServer) onDatagram(data []byte, peer net.Addr) {
	key := peerKey(peer)

	s.flowsMu.Lock()
	flow, ok := s.flows[key]
	s.flowsMu.Unlock()

	if !ok {
		s.createFlow(data, peer)
		return
	}

	if flow.p.IsCurrent() {
		s.deliver(flow, data, peer)
		return
	}
	cp := append([]byte(nil), data...)
	flow.p.Async(func() { s.deliver(flow, cp, peer) }, false)
}

func (s *UDPServer) deliver(flow *udpFlow, data []byte, peer net.Addr) {
	if !flow.helper.Alive() {
		return
	}
	flow.helper.Session().OnRecv(data, peer)
}

// createFlow builds a per-peer socket on this reactor (a
// double-checked lookup under flowsMu guards against two datagrams
// from the same unseen peer racing each other), binds it to the
// shared local port and pins the peer, builds the session, wires
// read/err, and delivers the triggering datagram.
func (s *UDPServer) createFlow(first []byte, peer net.Addr) {
	key := peerKey(peer)

	s.flowsMu.Lock()
	if _, exists := s.flows[key]; exists {
		s.flowsMu.Unlock()
		s.onDatagram(first, peer)
		return
	}
	s.flowsMu.Unlock()

	newSock := s.create(s.p, first, peer)
	if newSock == nil {
		return
	}
	if err := newSock.BindUdpSocket(s.port, s.host, true); err != nil {
		s.log.Error("udp flow bind failed", zap.Error(err))
		return
	}
	if err := newSock.BindPeerAddr(peer); err != nil {
		s.log.Error("udp flow bindPeerAddr failed", zap.Error(err))
		return
	}

	sess := s.builder(newSock)
	helper := session.NewHelper(session.Default(), key, sess, s)
	flow := &udpFlow{p: s.p, sock: newSock, helper: helper}

	s.flowsMu.Lock()
	s.flows[key] = flow
	s.flowsMu.Unlock()

	newSock.OnRead = func(data []byte, from net.Addr) {
		if peerKey(from) != key {
			// a datagram for a different peer arrived on this
			// per-peer socket (possible under SO_REUSEPORT hashing
			// edge cases); re-run it through the shared demux.
			s.onDatagram(append([]byte(nil), data...), from)
			return
		}
		if helper.Alive() {
			sess.OnRecv(data, from)
		}
	}
	newSock.OnErr = func(err *errs.Error) {
		s.flowsMu.Lock()
		delete(s.flows, key)
		s.flowsMu.Unlock()
		helper.Close(session.Default())
	}

	sess.OnRecv(first, peer)
}

// onManagerTick runs only on the primary instance: take
// one snapshot of the shared flow map, then dispatch OnManager to each
// flow on the reactor that actually owns it.
func (s *UDPServer) onManagerTick() time.Duration {
	if !s.alive.Load() {
		return 0
	}

	s.flowsMu.Lock()
	snapshot := make([]*udpFlow, 0, len(s.flows))
	for _, f := range s.flows {
		snapshot = append(snapshot, f)
	}
	s.flowsMu.Unlock()

	byPoller := make(map[*poller.Poller][]*udpFlow)
	for _, f := range snapshot {
		byPoller[f.p] = append(byPoller[f.p], f)
	}
	for p, fs := range byPoller {
		p, fs := p, fs
		p.Async(func() {
			for _, f := range fs {
				s.safeManage(f)
			}
		}, true)
	}
	return DefaultManagerInterval
}

func (s *UDPServer) safeManage(f *udpFlow) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("session onManager panicked", zap.Any("recover", r))
		}
	}()
	if f.helper.Alive() {
		f.helper.Session().OnManager()
	}
}

// Close tears this reactor's share of the server down: stops the
// manager timer (if this is the primary) and releases the bound
// socket. Flows already established keep running; a full shutdown is
// expected to Close every clone.
func (s *UDPServer) Close() {
	if !s.alive.CompareAndSwap(true, false) {
		return
	}
	if s.managerTimer != nil {
		s.managerTimer.Cancel()
	}
	if s.sock != nil {
		s.sock.CloseSocket()
	}
}

// peerKey builds a canonical peer-address key: a 2-byte big-endian
// port prefix followed by the 16-byte IPv4-mapped or native IPv6
// address representation.
func peerKey(addr net.Addr) string {
	ip, port := addrPort(addr)
	buf := make([]byte, 2+16)
	binary.BigEndian.PutUint16(buf, uint16(port))
	copy(buf[2:], ip.To16())
	return string(buf)
}

func addrPort(addr net.Addr) (net.IP, int) {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP, a.Port
	case *net.TCPAddr:
		return a.IP, a.Port
	default:
		host, portStr, err := net.SplitHostPort(addr.String())
		if err != nil {
			return net.IPv4zero, 0
		}
		port, _ := parsePort(portStr)
		return net.ParseIP(host), port
	}
}

func parsePort(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errs.New(errs.Other, "invalid port")
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
