package session

import (
	"sync/atomic"

	"github.com/yexxx/myNetWorkLib/errs"
)

// ServerOwner is the weak back-reference a Helper holds to its owning
// server, checked via Alive before every use that reaches back to it.
type ServerOwner interface {
	Alive() bool
}

// Helper binds a Session's lifetime to an owning server and the
// process-wide SessionMap: it inserts itself into the map on
// construction and removes itself on Close. Go has no destructors, so
// callers that remove a Helper from their own bookkeeping (a server's
// local session set, a UDP demux table) must call Close exactly once
// to release the map entry.
type Helper struct {
	tag    string
	sess   Session
	owner  ServerOwner
	closed atomic.Bool
}

// NewHelper builds a Helper for sess, tagged and owned as given, and
// registers it in m.
func NewHelper(m *Map, tag string, sess Session, owner ServerOwner) *Helper {
	h := &Helper{tag: tag, sess: sess, owner: owner}
	m.store(tag, h)
	return h
}

// Tag returns this session's identity string.
func (h *Helper) Tag() string { return h.tag }

// Session returns the wrapped Session.
func (h *Helper) Session() Session { return h.sess }

// Alive reports whether Close has not yet run.
func (h *Helper) Alive() bool { return !h.closed.Load() }

// Close removes h from m and marks it dead; a later Map.Get sees a
// dead entry and evicts it if it hasn't already been removed here. If
// the owning server is already gone, a synthetic shutdown error is
// delivered to the session first.
func (h *Helper) Close(m *Map) {
	if h.closed.Swap(true) {
		return
	}
	if h.owner != nil && !h.owner.Alive() {
		h.sess.OnErr(errs.New(errs.Shutdown, "owning server gone"))
	}
	m.delete(h.tag)
}
