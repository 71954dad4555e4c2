package socket

import "golang.org/x/sys/unix"

// Default socket buffer sizes and keepalive tuning: TCP
// keepalive idle/interval/probes of 120/30/9.
const (
	DefaultSndBuf           = 256 * 1024
	DefaultRcvBuf           = 256 * 1024
	DefaultKeepaliveIdleS   = 120
	DefaultKeepaliveIntvlS  = 30
	DefaultKeepaliveProbes  = 9
	DefaultLingerSeconds    = 0
)

func domainFor(v4 bool) int {
	if v4 {
		return unix.AF_INET
	}
	return unix.AF_INET6
}

func newNonblockingSocket(domain, typ int) (int, error) {
	return unix.Socket(domain, typ|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
}

// configureStreamFD applies standard tuning to every accepted or
// connected stream socket: nodelay, keepalive, buffer sizes, linger,
// close-on-exec (already set at creation via SOCK_CLOEXEC, repeated
// here for fds obtained via accept(2), which do not carry the
// listening socket's close-on-exec flag).
func configureStreamFD(fd int) {
	unix.SetNonblock(fd, true)
	unix.CloseOnExec(fd)
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, DefaultSndBuf)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, DefaultRcvBuf)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
	setKeepaliveTuning(fd, DefaultKeepaliveIdleS, DefaultKeepaliveIntvlS, DefaultKeepaliveProbes)
	_ = unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{
		Onoff:  1,
		Linger: DefaultLingerSeconds,
	})
}

func configureListenFD(fd int) {
	unix.CloseOnExec(fd)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func configureUDPFD(fd int, reuse bool) {
	unix.CloseOnExec(fd)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	if reuse {
		setReusePort(fd)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, DefaultSndBuf)
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, DefaultRcvBuf)
}
