package socket

import (
	"golang.org/x/sys/unix"

	"github.com/yexxx/myNetWorkLib/errs"
)

// flushData is the write path: drain waiting into a fresh aggregator
// when sending is empty, write the head aggregator, advance past
// whatever got acknowledged, and either arm write-interest (partial
// write off the loop goroutine) or loop back to drain residuals
// (partial write on the loop goroutine, or a completed aggregator
// with more queued behind it).
func (s *Socket) flushData(inPoller bool) bool {
	fd := s.FD()
	if fd < 0 {
		return false
	}

	for {
		s.sendMu.Lock()
		if len(s.sending) == 0 {
			if len(s.waiting) == 0 {
				s.sendMu.Unlock()
				s.disableWrite()
				if s.OnFlush != nil {
					s.OnFlush()
				}
				return true
			}
			s.sending = append(s.sending, s.drainWaitingLocked())
		}
		head := s.sending[0]
		s.sendMu.Unlock()

		n, werr := s.writeAggregator(fd, head)

		switch {
		case werr == nil:
			s.markSendable()
			s.sendMu.Lock()
			head.ReOffset(n)
			done := head.Empty()
			remaining := head.Remaining()
			if done {
				s.sending = s.sending[1:]
			}
			s.sendMu.Unlock()

			if done {
				continue
			}
			if !inPoller && remaining > 0 {
				s.enableWrite()
				return true
			}
			continue

		case isRetryable(werr):
			s.markUnsendable()
			s.enableWrite()
			return true

		case werr == unix.EINTR:
			continue

		default:
			if s.udp {
				s.sendMu.Lock()
				head.DropHead()
				if head.Empty() {
					s.sending = s.sending[1:]
				}
				s.sendMu.Unlock()
				continue
			}
			s.EmitErr(errs.Wrap(errs.Other, werr, "send"))
			return false
		}
	}
}
