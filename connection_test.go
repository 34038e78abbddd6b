package reactor

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// socketpairConn builds a Connection around one end of a connected
// AF_UNIX socketpair and returns the Connection plus the raw fd for the
// test's own end, so assertions can read/write without going through the
// reactor at all.
func socketpairConn(t *testing.T, loop *Loop) (*Connection, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)

	conn := newConnection(loop, "test-conn", fds[0], Endpoint{}, Endpoint{})
	t.Cleanup(func() { _ = unix.Close(fds[1]) })
	return conn, fds[1]
}

func TestConnectionEstablishedFiresConnectionCallback(t *testing.T) {
	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()
	go func() { _ = loop.Run() }()
	defer loop.Quit()

	conn, _ := socketpairConn(t, loop)
	up := make(chan ConnState, 1)
	conn.setConnectionCallback(func(c *Connection) { up <- c.State() })

	loop.RunInLoop(conn.connectEstablished)

	select {
	case state := <-up:
		assert.Equal(t, StateConnected, state)
	case <-time.After(time.Second):
		t.Fatal("connectionCallback never fired")
	}
	assert.Equal(t, StateConnected, conn.State())
}

func TestConnectionMessageCallbackOnIncomingData(t *testing.T) {
	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()
	go func() { _ = loop.Run() }()
	defer loop.Quit()

	conn, peerFd := socketpairConn(t, loop)
	msgs := make(chan string, 1)
	conn.setMessageCallback(func(c *Connection, buf *Buffer, _ Timestamp) {
		msgs <- buf.RetrieveAllAsString()
	})
	loop.RunInLoop(conn.connectEstablished)

	_, err = unix.Write(peerFd, []byte("hello reactor"))
	require.NoError(t, err)

	select {
	case got := <-msgs:
		assert.Equal(t, "hello reactor", got)
	case <-time.After(time.Second):
		t.Fatal("messageCallback never fired")
	}
}

func TestConnectionSendWritesDirectly(t *testing.T) {
	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()
	go func() { _ = loop.Run() }()
	defer loop.Quit()

	conn, peerFd := socketpairConn(t, loop)
	loop.RunInLoop(conn.connectEstablished)

	conn.Send([]byte("ping"))

	buf := make([]byte, 16)
	require.Eventually(t, func() bool {
		n, err := unix.Read(peerFd, buf)
		return err == nil && n == 4
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "ping", string(buf[:4]))
}

// TestConnectionShutdownDrainsInFlightSendFile checks that calling Shutdown
// while a SendFile transfer is still in progress lets the transfer finish
// (sendFilePending holds off shutdownWrite) rather than issuing SHUT_WR
// mid-transfer and truncating it.
func TestConnectionShutdownDrainsInFlightSendFile(t *testing.T) {
	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()
	go func() { _ = loop.Run() }()
	defer loop.Quit()

	conn, peerFd := socketpairConn(t, loop)
	loop.RunInLoop(conn.connectEstablished)

	payload := make([]byte, 1<<20)
	for i := range payload {
		payload[i] = byte(i)
	}
	tmp, err := os.CreateTemp(t.TempDir(), "sendfile-*")
	require.NoError(t, err)
	defer tmp.Close()
	_, err = tmp.Write(payload)
	require.NoError(t, err)

	conn.SendFile(int(tmp.Fd()), 0, len(payload))
	conn.Shutdown()

	got := make([]byte, len(payload))
	total := 0
	deadline := time.Now().Add(5 * time.Second)
	for total < len(got) {
		require.True(t, time.Now().Before(deadline), "timed out draining sendfile payload, got %d/%d bytes", total, len(got))
		n, err := unix.Read(peerFd, got[total:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(time.Millisecond)
				continue
			}
			require.NoError(t, err)
		}
		total += n
	}
	assert.Equal(t, payload, got)
}

func TestConnectionHandleCloseFiresDownEdgeThenCloseCallback(t *testing.T) {
	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()
	go func() { _ = loop.Run() }()
	defer loop.Quit()

	conn, peerFd := socketpairConn(t, loop)
	var order []string
	done := make(chan struct{})
	conn.setConnectionCallback(func(c *Connection) {
		if c.State() == StateDisconnected {
			order = append(order, "connection-down")
		}
	})
	conn.setCloseCallback(func(c *Connection) {
		order = append(order, "close")
		close(done)
	})
	loop.RunInLoop(conn.connectEstablished)

	_ = unix.Close(peerFd)

	select {
	case <-done:
		require.Equal(t, []string{"connection-down", "close"}, order)
		assert.Equal(t, StateDisconnected, conn.State())
	case <-time.After(time.Second):
		t.Fatal("close path never completed")
	}
}
