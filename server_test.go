package reactor

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestServerEchoRoundTrip drives the whole stack end to end: a real TCP
// client connects via net.Dial, the server echoes whatever it receives,
// and the client observes the echo before closing.
func TestServerEchoRoundTrip(t *testing.T) {
	mainLoop, err := NewLoop()
	require.NoError(t, err)
	defer mainLoop.Close()

	addr, err := NewEndpoint("127.0.0.1", 0)
	require.NoError(t, err)
	srv, err := NewServer(mainLoop, addr, "echo", false)
	require.NoError(t, err)

	connected := make(chan struct{}, 1)
	closed := make(chan struct{}, 1)
	srv.SetConnectionCallback(func(c *Connection) {
		switch c.State() {
		case StateConnected:
			connected <- struct{}{}
		case StateDisconnected:
			closed <- struct{}{}
		}
	})
	srv.SetMessageCallback(func(c *Connection, buf *Buffer, _ Timestamp) {
		c.Send([]byte(buf.RetrieveAllAsString()))
	})

	require.NoError(t, srv.Start(nil))
	go func() { _ = mainLoop.Run() }()
	defer mainLoop.Quit()

	bound, err := srv.Addr()
	require.NoError(t, err)

	conn, err := net.Dial("tcp", bound.String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("server never observed the connection")
	}

	_, err = conn.Write([]byte("hello\n"))
	require.NoError(t, err)

	reply := make([]byte, 6)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = readFull(conn, reply)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(reply))

	conn.Close()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("server never observed the close")
	}
}

// TestServerGracefulShutdownDrainsPendingOutput checks that Shutdown only
// half-closes the write side once everything already queued has drained,
// rather than truncating it.
func TestServerGracefulShutdownDrainsPendingOutput(t *testing.T) {
	mainLoop, err := NewLoop()
	require.NoError(t, err)
	defer mainLoop.Close()

	addr, err := NewEndpoint("127.0.0.1", 0)
	require.NoError(t, err)
	srv, err := NewServer(mainLoop, addr, "shutdown", false)
	require.NoError(t, err)

	var serverConn *Connection
	established := make(chan struct{})
	srv.SetConnectionCallback(func(c *Connection) {
		if c.State() == StateConnected {
			serverConn = c
			close(established)
		}
	})

	require.NoError(t, srv.Start(nil))
	go func() { _ = mainLoop.Run() }()
	defer mainLoop.Quit()

	bound, err := srv.Addr()
	require.NoError(t, err)

	conn, err := net.Dial("tcp", bound.String())
	require.NoError(t, err)
	defer conn.Close()

	<-established

	payload := make([]byte, 1<<20)
	serverConn.Send(payload)
	serverConn.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	got := make([]byte, len(payload))
	n, err := readFull(conn, got)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
