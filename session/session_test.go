package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yexxx/myNetWorkLib/errs"
)

type recordingSession struct {
	recvN   int
	lastErr *errs.Error
	errN    int
	manageN int
}

func (s *recordingSession) OnRecv(data []byte, peer net.Addr) { s.recvN++ }
func (s *recordingSession) OnErr(err *errs.Error) {
	s.lastErr = err
	if err != nil {
		s.errN++
	}
}
func (s *recordingSession) OnManager() { s.manageN++ }

type fakeOwner struct{ alive bool }

func (o *fakeOwner) Alive() bool { return o.alive }

func TestMapGetMissingReturnsFalse(t *testing.T) {
	m := NewMap()
	_, ok := m.Get("nope")
	require.False(t, ok)
}

func TestHelperRegistersAndGetFindsIt(t *testing.T) {
	m := NewMap()
	sess := &recordingSession{}
	h := NewHelper(m, "1-9", sess, &fakeOwner{alive: true})

	got, ok := m.Get("1-9")
	require.True(t, ok)
	require.Same(t, sess, got)
	require.True(t, h.Alive())
}

func TestHelperCloseEvictsFromMap(t *testing.T) {
	m := NewMap()
	sess := &recordingSession{}
	h := NewHelper(m, "2-9", sess, &fakeOwner{alive: true})

	h.Close(m)
	require.False(t, h.Alive())
	_, ok := m.Get("2-9")
	require.False(t, ok)
}

func TestHelperCloseWithDeadOwnerEmitsSyntheticShutdown(t *testing.T) {
	m := NewMap()
	sess := &recordingSession{}
	owner := &fakeOwner{alive: false}
	h := NewHelper(m, "3-9", sess, owner)

	h.Close(m)
	require.NotNil(t, sess.lastErr)
	require.Equal(t, errs.Shutdown, sess.lastErr.Kind)
}

func TestHelperCloseIsIdempotent(t *testing.T) {
	m := NewMap()
	sess := &recordingSession{}
	owner := &fakeOwner{alive: false}
	h := NewHelper(m, "4-9", sess, owner)

	h.Close(m)
	h.Close(m)
	require.Equal(t, 1, countNonNilErrs(sess))
}

func countNonNilErrs(s *recordingSession) int {
	return s.errN
}

func TestGetEvictsDeadEntryOnLookup(t *testing.T) {
	m := NewMap()
	sess := &recordingSession{}
	h := NewHelper(m, "5-9", sess, &fakeOwner{alive: true})
	h.closed.Store(true) // simulate a death that bypassed Close's own delete

	require.Equal(t, 1, m.Len())
	_, ok := m.Get("5-9")
	require.False(t, ok)
	require.Equal(t, 0, m.Len())
}

func TestNextIDIsMonotonic(t *testing.T) {
	a := NextID()
	b := NextID()
	require.Less(t, a, b)
}

func TestTagFormat(t *testing.T) {
	require.Equal(t, "42-7", Tag(42, 7))
}
