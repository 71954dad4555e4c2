package socket

import (
	"net"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yexxx/myNetWorkLib/dnscache"
	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/poller"
	"github.com/yexxx/myNetWorkLib/workerpool"
)

// ConnectResult is delivered to a Connect caller's callback exactly
// once: nil means "connected", non-nil carries the failure kind.
type ConnectResult = func(err *errs.Error)

// Connect resolves host (synchronously if it's a literal IP, via the
// worker pool otherwise), then asynchronously connects, arming a
// timeout timer that fires Timeout into cb if the handshake
// doesn't complete in time.
func (s *Socket) Connect(host string, port int, cb ConnectResult, timeout time.Duration, localIP string, localPort int) {
	s.p.Async(func() {
		s.closeFD()
		s.udp = false

		if ip := net.ParseIP(host); ip != nil {
			s.beginConnect(ip, port, cb, timeout, localIP, localPort)
			return
		}

		cancel := workerpool.Default().Submit(func() {
			addrs, err := dnscache.Default().Lookup(host)
			s.p.Async(func() {
				if err != nil {
					cb(errs.Wrap(errs.Dns, err, "resolve "+host))
					return
				}
				if len(addrs) == 0 {
					cb(errs.New(errs.Dns, "no address for "+host))
					return
				}
				s.beginConnect(addrs[0].IP, port, cb, timeout, localIP, localPort)
			}, false)
		})
		s.asyncConnectCancel = cancel
	}, true)
}

func (s *Socket) beginConnect(ip net.IP, port int, cb ConnectResult, timeout time.Duration, localIP string, localPort int) {
	s.asyncConnectCancel = nil

	v4 := ip.To4() != nil
	fd, err := newNonblockingSocket(domainFor(v4), unix.SOCK_STREAM)
	if err != nil {
		cb(errs.Wrap(errs.Other, err, "socket"))
		return
	}

	if localIP != "" || localPort != 0 {
		lip := net.ParseIP(localIP)
		if lip == nil {
			lip = net.IPv4zero
		}
		if err := unix.Bind(fd, toSockaddr(lip, localPort)); err != nil {
			unix.Close(fd)
			cb(errs.Wrap(errs.Other, err, "bind local addr"))
			return
		}
	}

	err = unix.Connect(fd, toSockaddr(ip, port))
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		kind := errs.Other
		if err == unix.ECONNREFUSED {
			kind = errs.Refused
		}
		cb(errs.Wrap(kind, err, "connect"))
		return
	}

	s.setFD(fd)
	if err := s.p.AddEvent(fd, poller.EventWrite|poller.EventError, s.connectingCallback(cb)); err != nil {
		s.closeFD()
		cb(errs.Wrap(errs.Other, err, "register connect interest"))
		return
	}

	if timeout > 0 {
		s.connectTimer = s.p.DoDelayTask(timeout, func() time.Duration {
			cb(errs.New(errs.Timeout, "connect timeout"))
			s.closeFD()
			return 0
		})
	}
}

func (s *Socket) connectingCallback(cb ConnectResult) poller.Callback {
	return func(fd int, ready poller.EventMask) {
		if s.connectTimer != nil {
			s.connectTimer.Cancel()
			s.connectTimer = nil
		}

		errno, _ := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if errno != 0 {
			sysErr := unix.Errno(errno)
			kind := errs.Other
			if sysErr == unix.ECONNREFUSED {
				kind = errs.Refused
			}
			s.closeFD()
			cb(errs.Wrap(kind, sysErr, "connect failed"))
			return
		}

		configureStreamFD(fd)
		s.writable.Store(true)
		s.p.SetCallback(fd, s.handleEvent)
		mask := poller.EventError | poller.EventWrite
		if s.recvEnabled.Load() {
			mask |= poller.EventRead
		}
		_ = s.p.ModifyEvent(fd, mask)
		cb(nil)
	}
}
