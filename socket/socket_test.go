package socket

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/poller"
)

func newRunningPoller(t *testing.T) *poller.Poller {
	t.Helper()
	p, err := poller.New(0, "test")
	require.NoError(t, err)
	p.Run()
	t.Cleanup(func() { p.Close() })
	return p
}

func TestListenAcceptAndEcho(t *testing.T) {
	p := newRunningPoller(t)

	ln := New(p)
	var accepted *Socket
	var mu sync.Mutex
	acceptedCh := make(chan struct{}, 1)

	ln.OnCreateSocket = func(p *poller.Poller) *Socket { return New(p) }
	ln.OnAccept = func(peer *Socket, complete func()) {
		mu.Lock()
		accepted = peer
		mu.Unlock()
		peer.EnableRecv(true)
		peer.OnRead = func(data []byte, addr net.Addr) {
			out := append([]byte(nil), data...)
			_ = peer.Send(out, nil, true, nil)
		}
		complete()
		acceptedCh <- struct{}{}
	}

	require.NoError(t, ln.Listen(0, "127.0.0.1", 16, false))
	addr, err := ln.LocalAddr()
	require.NoError(t, err)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-acceptedCh:
	case <-time.After(time.Second):
		t.Fatal("connection never accepted")
	}
	mu.Lock()
	require.NotNil(t, accepted)
	mu.Unlock()

	payload := []byte("hello reactor")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, payload, buf)
}

func TestConnectRefusedReportsRefusedKind(t *testing.T) {
	p := newRunningPoller(t)
	s := New(p)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // nobody listening now

	done := make(chan *errs.Error, 1)
	s.Connect("127.0.0.1", port, func(e *errs.Error) {
		done <- e
	}, 2*time.Second, "", 0)

	select {
	case e := <-done:
		require.NotNil(t, e)
		require.Equal(t, errs.Refused, e.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("connect callback never fired")
	}
}
