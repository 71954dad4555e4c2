package server

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yexxx/myNetWorkLib/errs"
	"github.com/yexxx/myNetWorkLib/poller"
	"github.com/yexxx/myNetWorkLib/session"
	"github.com/yexxx/myNetWorkLib/socket"
)

type udpEchoSession struct {
	sock *socket.Socket
	mu   sync.Mutex
	recv [][]byte
}

func (e *udpEchoSession) OnRecv(data []byte, peer net.Addr) {
	e.mu.Lock()
	e.recv = append(e.recv, append([]byte(nil), data...))
	e.mu.Unlock()
	out := append([]byte(nil), data...)
	_ = e.sock.Send(out, nil, true, nil)
}

func (e *udpEchoSession) OnErr(err *errs.Error) {}

func (e *udpEchoSession) OnManager() {}

func TestUDPServerDemuxesByPeer(t *testing.T) {
	pool, err := poller.NewPool(1, false)
	require.NoError(t, err)
	pool.Start()
	t.Cleanup(pool.Close)

	builder := func(sock *socket.Socket) session.Session {
		return &udpEchoSession{sock: sock}
	}

	srv, err := StartUDPServer(pool, 0, "127.0.0.1", builder, nil)
	require.NoError(t, err)
	addr, err := srv.Addr()
	require.NoError(t, err)

	c1, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer c1.Close()
	c2, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer c2.Close()

	_, err = c1.Write([]byte("from-client-one"))
	require.NoError(t, err)
	_, err = c2.Write([]byte("from-client-two"))
	require.NoError(t, err)

	buf1 := make([]byte, 64)
	c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	n1, err := c1.Read(buf1)
	require.NoError(t, err)
	require.Equal(t, "from-client-one", string(buf1[:n1]))

	buf2 := make([]byte, 64)
	c2.SetReadDeadline(time.Now().Add(2 * time.Second))
	n2, err := c2.Read(buf2)
	require.NoError(t, err)
	require.Equal(t, "from-client-two", string(buf2[:n2]))
}
