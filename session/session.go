// Package session implements the Session/Helper/Map triad: a
// user-extended Session wraps a Socket and is reachable from any
// reactor by a short string identity, with weak-reference-style
// eviction so a dead session never leaks its map entry.
package session

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/yexxx/myNetWorkLib/errs"
)

// Session is the capability set a user-supplied type fulfils to
// extend the framework: the framework only ever calls
// back through these three methods.
type Session interface {
	OnRecv(data []byte, peer net.Addr)
	OnErr(err *errs.Error)
	OnManager()
}

var idCounter atomic.Uint64

// NextID returns the next value of the monotonically increasing
// session counter. Identity strings are "<counter>-<fd>".
func NextID() uint64 { return idCounter.Add(1) }

// Tag formats a session identity string from the counter value
// obtained from NextID and the socket's file descriptor at the time
// the session was created.
func Tag(counter uint64, fd int) string {
	return fmt.Sprintf("%d-%d", counter, fd)
}
