package socket

import (
	"net"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yexxx/myNetWorkLib/buffer"
	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/poller"
)

// isRetryable collapses EAGAIN/EWOULDBLOCK (always equal in the unix
// package, listed separately here for clarity) and ENOBUFS, a
// transient kernel out-of-buffers condition best treated the same as
// backpressure, into one retry condition.
func isRetryable(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.ENOBUFS
}

func (s *Socket) onReadable(fd int) {
	buf := s.p.ReadBuffer()
	for s.recvEnabled.Load() {
		n, from, err := unix.Recvfrom(fd, buf, 0)
		if err == unix.EINTR {
			continue
		}
		if isRetryable(err) {
			return
		}
		if err != nil {
			s.onReadError(errs.Wrap(errs.Other, err, "recvfrom"))
			return
		}
		if n == 0 {
			if s.udp {
				// zero-length datagram: deliver, keep the socket live.
				s.deliverRead(buf[:0], from)
				continue
			}
			s.onReadError(errs.New(errs.Eof, "peer closed connection"))
			return
		}
		s.deliverRead(buf[:n], from)
	}
}

func (s *Socket) onReadError(e *errs.Error) {
	if s.udp {
		// UDP read errors are logged; the socket stays live.
		s.log.Warn("udp read error", zap.Error(e))
		return
	}
	s.EmitErr(e)
}

func (s *Socket) deliverRead(b []byte, from unix.Sockaddr) {
	if s.OnRead == nil {
		return
	}
	var peer net.Addr
	if from != nil {
		peer = fromSockaddr(from, s.udp)
	}
	s.OnRead(b, peer)
}

func (s *Socket) onWritable(fd int) {
	s.writable.Store(true)
	s.sendMu.Lock()
	idle := len(s.sending) == 0 && len(s.waiting) == 0
	s.sendMu.Unlock()
	if idle {
		s.disableWrite()
		return
	}
	s.flushData(true)
}

func (s *Socket) enableWrite() {
	s.writable.Store(false)
	fd := s.FD()
	if fd < 0 {
		return
	}
	_ = s.p.ModifyEvent(fd, s.interestMaskForceWrite())
}

func (s *Socket) interestMaskForceWrite() poller.EventMask {
	mask := poller.EventWrite | poller.EventError
	if s.recvEnabled.Load() {
		mask |= poller.EventRead
	}
	return mask
}

func (s *Socket) disableWrite() {
	fd := s.FD()
	if fd < 0 {
		return
	}
	mask := poller.EventError
	if s.recvEnabled.Load() {
		mask |= poller.EventRead
	}
	_ = s.p.ModifyEvent(fd, mask)
}

// drainWaitingLocked moves every pending write into a fresh
// SendAggregator, attaching a completion callback that forwards to
// the payload's own callback plus the socket-wide OnSendResult hook
//. Caller holds sendMu.
func (s *Socket) drainWaitingLocked() *buffer.SendAggregator {
	agg := buffer.NewSendAggregator()
	for _, w := range s.waiting {
		w := w
		agg.Append(w.data, w.addr, func(ok bool, n int) {
			if w.done != nil {
				w.done(ok, n)
			}
			if s.OnSendResult != nil {
				var sendErr error
				if !ok {
					sendErr = errs.New(errs.Other, "send incomplete")
				}
				s.OnSendResult(n, sendErr)
			}
		})
	}
	s.waiting = s.waiting[:0]
	return agg
}

// writeAggregator performs one write syscall for the aggregator's
// unsent suffix: a single sendto(2) for an unconnected UDP socket
// (only one peer address per syscall, hence one datagram at a time),
// or a vectored writev(2) covering every pending payload for a
// connected/peer-bound socket.
func (s *Socket) writeAggregator(fd int, agg *buffer.SendAggregator) (int, error) {
	if s.udp && s.peerAddr == nil {
		if addr := agg.HeadAddr(); addr != nil {
			payload := agg.HeadPayload()
			ip, port := addrIP(addr)
			return unixSendto(fd, payload, toSockaddr(ip, port))
		}
	}
	bufs := agg.Buffers()
	if len(bufs) == 0 {
		return 0, nil
	}
	return unix.Writev(fd, bufs)
}

func unixSendto(fd int, p []byte, to unix.Sockaddr) (int, error) {
	err := unix.Sendto(fd, p, 0, to)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
