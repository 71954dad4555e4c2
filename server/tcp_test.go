package server

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/poller"
	"github.com/yexxx/myNetWorkLib/session"
	"github.com/yexxx/myNetWorkLib/socket"
)

type echoSession struct {
	sock    *socket.Socket
	manageN atomic.Int32
}

func (e *echoSession) OnRecv(data []byte, peer net.Addr) {
	out := append([]byte(nil), data...)
	_ = e.sock.Send(out, peer, true, nil)
}

func (e *echoSession) OnErr(err *errs.Error) {}

func (e *echoSession) OnManager() { e.manageN.Add(1) }

func TestTCPServerAcceptAndEcho(t *testing.T) {
	pool, err := poller.NewPool(2, false)
	require.NoError(t, err)
	pool.Start()
	t.Cleanup(pool.Close)

	var mu sync.Mutex
	var sessions []*echoSession
	builder := func(sock *socket.Socket) session.Session {
		sock.EnableRecv(true)
		es := &echoSession{sock: sock}
		mu.Lock()
		sessions = append(sessions, es)
		mu.Unlock()
		return es
	}

	srv, err := StartTCPServer(pool, 0, "127.0.0.1", 16, builder, nil)
	require.NoError(t, err)
	require.NotNil(t, srv)

	addr, err := srv.Addr()
	require.NoError(t, err)

	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	payload := []byte("ping over the wire")
	_, err = conn.Write(payload)
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, payload, buf)
}

func TestTCPServerDistributesAcrossReactors(t *testing.T) {
	pool, err := poller.NewPool(4, false)
	require.NoError(t, err)
	pool.Start()
	t.Cleanup(pool.Close)

	var mu sync.Mutex
	reactorHits := map[int]int{}
	builder := func(sock *socket.Socket) session.Session {
		mu.Lock()
		reactorHits[sock.Poller().ID()]++
		mu.Unlock()
		sock.EnableRecv(true)
		return &echoSession{sock: sock}
	}

	srv, err := StartTCPServer(pool, 0, "127.0.0.1", 64, builder, nil)
	require.NoError(t, err)
	addr, err := srv.Addr()
	require.NoError(t, err)

	const n = 40
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", addr.String())
			if err != nil {
				return
			}
			defer conn.Close()
			time.Sleep(50 * time.Millisecond)
		}()
	}
	wg.Wait()
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	total := 0
	for _, c := range reactorHits {
		total += c
	}
	require.Greater(t, total, 0)
}
