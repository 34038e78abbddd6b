package reactor

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ConnState is a Connection's lifecycle state, per
// original_source/include/TcpConnection.h's StateE.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnecting
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// defaultHighWaterMark is the default pending-output threshold above which
// HighWaterMarkCallback fires, per TcpConnection's ctor (64 MiB).
const defaultHighWaterMark = 64 * 1024 * 1024

// Connection is one accepted TCP connection bound to exactly one worker
// Loop, grounded on original_source/include/TcpConnection.h and
// src/net/TcpConnection.cc. All state below is only ever touched on the
// owning loop's goroutine; Send/Shutdown/ForceClose/SendFile cross over via
// loop.RunInLoop from whatever goroutine calls them.
type Connection struct {
	loop    *Loop
	name    string
	fd      int
	channel *Channel

	local Endpoint
	peer  Endpoint

	state atomic.Int32

	inputBuffer  *Buffer
	outputBuffer *Buffer

	// sendFilePending is true while a SendFile transfer has bytes still to
	// go, so shutdownInLoop's guard sees it the way it sees
	// channel.isWriting() for the buffered Send path. sendFileInLoop doesn't
	// toggle the channel's write interest itself (it re-posts via
	// QueueInLoop rather than waiting for EPOLLOUT), so this is a separate
	// flag rather than reusing isWriting.
	sendFilePending bool

	highWaterMark int

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback

	ctx any
}

// newConnection wraps an accepted fd as a Connection bound to loop. The
// connection starts in StateConnecting; callers must call
// connectEstablished (typically via Server) before traffic flows.
func newConnection(loop *Loop, name string, fd int, local, peer Endpoint) *Connection {
	c := &Connection{
		loop:          loop,
		name:          name,
		fd:            fd,
		local:         local,
		peer:          peer,
		inputBuffer:   NewBuffer(),
		outputBuffer:  NewBuffer(),
		highWaterMark: defaultHighWaterMark,
	}
	c.state.Store(int32(StateConnecting))
	c.channel = newChannel(loop, fd)
	c.channel.setReadCallback(c.handleRead)
	c.channel.setWriteCallback(c.handleWrite)
	c.channel.setCloseCallback(c.handleClose)
	c.channel.setErrorCallback(c.handleError)

	if err := setKeepAlive(fd, true); err != nil {
		logger().Err().Err(err).Str("conn", name).Log("setKeepAlive failed")
	}
	if err := setTCPNoDelay(fd, true); err != nil {
		logger().Err().Err(err).Str("conn", name).Log("setTCPNoDelay failed")
	}
	return c
}

// Name returns the connection's server-assigned identifier.
func (c *Connection) Name() string { return c.name }

// LocalEndpoint returns the connection's local address.
func (c *Connection) LocalEndpoint() Endpoint { return c.local }

// PeerEndpoint returns the connection's remote address.
func (c *Connection) PeerEndpoint() Endpoint { return c.peer }

// State returns the connection's current lifecycle state.
func (c *Connection) State() ConnState { return ConnState(c.state.Load()) }

// String renders a short diagnostic identity, per SPEC_FULL.md §4.10.
func (c *Connection) String() string {
	return fmt.Sprintf("Connection{name=%s fd=%d local=%s peer=%s state=%s}", c.name, c.fd, c.local, c.peer, c.State())
}

// SetContext attaches an application-defined value to the connection, per
// SPEC_FULL.md §4.10.
func (c *Connection) SetContext(ctx any) { c.ctx = ctx }

// Context returns whatever SetContext last attached, or nil.
func (c *Connection) Context() any { return c.ctx }

func (c *Connection) setConnectionCallback(cb ConnectionCallback)         { c.connectionCallback = cb }
func (c *Connection) setMessageCallback(cb MessageCallback)               { c.messageCallback = cb }
func (c *Connection) setWriteCompleteCallback(cb WriteCompleteCallback)   { c.writeCompleteCallback = cb }
func (c *Connection) setHighWaterMarkCallback(cb HighWaterMarkCallback, n int) {
	c.highWaterMarkCallback = cb
	if n > 0 {
		c.highWaterMark = n
	}
}
func (c *Connection) setCloseCallback(cb CloseCallback) { c.closeCallback = cb }

// connectEstablished ties the channel to the connection's lifetime, enables
// read interest, and fires the up-edge ConnectionCallback, per
// TcpConnection::connectEstablished. Must run on the owning loop.
func (c *Connection) connectEstablished() {
	c.state.Store(int32(StateConnected))
	c.channel.tie(c)
	c.channel.enableReading()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// connectDestroyed fires the down-edge ConnectionCallback, detaches the
// channel from the loop, and closes the socket, per
// TcpConnection::connectDestroyed. Must run on the owning loop.
func (c *Connection) connectDestroyed() {
	if c.State() == StateConnected {
		c.state.Store(int32(StateDisconnected))
		c.channel.disableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	c.channel.remove()
	if err := unix.Close(c.fd); err != nil {
		logger().Err().Err(err).Str("conn", c.name).Log("close failed")
	}
}

// Send queues data for delivery, writing directly to the socket when
// possible and falling back to the output buffer (with write interest
// enabled) when the kernel isn't ready, per TcpConnection::send/sendInLoop.
// It returns ErrConnClosed once the connection has fully torn down;
// Connecting/Disconnecting sends are silently dropped, matching the
// original's "give up writing" log-and-return rather than an error return.
func (c *Connection) Send(data []byte) error {
	switch c.State() {
	case StateDisconnected:
		return ErrConnClosed
	case StateConnected:
	default:
		return nil
	}
	buf := append([]byte(nil), data...)
	if c.loop.isInLoopThread() {
		c.sendInLoop(buf)
	} else {
		c.loop.RunInLoop(func() { c.sendInLoop(buf) })
	}
	return nil
}

func (c *Connection) sendInLoop(data []byte) {
	if c.State() == StateDisconnected {
		logger().Err().Str("conn", c.name).Log("disconnected, give up writing")
		return
	}

	var nwrote int
	remaining := len(data)
	faultError := false

	if !c.channel.isWriting() && c.outputBuffer.Readable() == 0 {
		n, err := unix.Write(c.fd, data)
		if n < 0 {
			n = 0
		}
		nwrote = n
		if err == nil {
			remaining = len(data) - nwrote
			if remaining == 0 && c.writeCompleteCallback != nil {
				c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
			}
		} else if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			logger().Err().Err(err).Str("conn", c.name).Log("send failed")
			if err == unix.EPIPE || err == unix.ECONNRESET {
				faultError = true
			}
		}
	}

	if !faultError && remaining > 0 {
		oldLen := c.outputBuffer.Readable()
		if oldLen+remaining >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
			pending := oldLen + remaining
			c.loop.QueueInLoop(func() { c.highWaterMarkCallback(c, pending) })
		}
		c.outputBuffer.Append(data[nwrote:])
		if !c.channel.isWriting() {
			c.channel.enableWriting()
		}
	}
}

// Shutdown half-closes the connection's write side once pending output has
// drained, per TcpConnection::shutdown/shutdownInLoop.
func (c *Connection) Shutdown() {
	if c.State() != StateConnected {
		return
	}
	c.state.Store(int32(StateDisconnecting))
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *Connection) shutdownInLoop() {
	if !c.channel.isWriting() && !c.sendFilePending {
		if err := shutdownWrite(c.fd); err != nil {
			logger().Err().Err(err).Str("conn", c.name).Log("shutdownWrite failed")
		}
	}
}

// ForceClose closes the connection immediately regardless of pending
// output, the hard-close counterpart to Shutdown noted in SPEC_FULL.md
// §4.10.
func (c *Connection) ForceClose() {
	if c.State() == StateConnected || c.State() == StateDisconnecting {
		c.state.Store(int32(StateDisconnecting))
		c.loop.RunInLoop(func() { c.handleClose() })
	}
}

// SendFile sends count bytes from file, starting at offset, via sendfile(2)
// zero-copy, per TcpConnection::sendFile/sendFileInLoop.
func (c *Connection) SendFile(file int, offset int64, count int) {
	if c.State() != StateConnected {
		logger().Err().Str("conn", c.name).Log("sendFile - not connected")
		return
	}
	if c.loop.isInLoopThread() {
		c.sendFileInLoop(file, offset, count)
	} else {
		c.loop.RunInLoop(func() { c.sendFileInLoop(file, offset, count) })
	}
}

// sendFileInLoop drives one sendfile(2) attempt and, while bytes remain,
// re-posts itself via QueueInLoop rather than waiting on channel write
// interest. It only gives up outright once the connection has actually torn
// down (StateDisconnected), not merely once Shutdown has requested a
// half-close (StateDisconnecting) — matching sendInLoop's equivalent guard —
// so a Shutdown issued mid-transfer lets the transfer finish instead of
// truncating it.
func (c *Connection) sendFileInLoop(file int, offset int64, count int) {
	if c.State() == StateDisconnected {
		logger().Err().Str("conn", c.name).Log("disconnected, give up writing")
		c.sendFilePending = false
		return
	}

	var sent int
	remaining := count
	faultError := false

	if !c.channel.isWriting() && c.outputBuffer.Readable() == 0 {
		off := offset
		n, err := unix.Sendfile(c.fd, file, &off, remaining)
		if n < 0 {
			n = 0
		}
		sent = n
		if err == nil {
			remaining -= sent
		} else if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			logger().Err().Err(err).Str("conn", c.name).Log("sendFile failed")
			if err == unix.EPIPE || err == unix.ECONNRESET {
				faultError = true
			}
		}
		offset = off
	}

	if faultError || remaining == 0 {
		c.sendFilePending = false
		if !faultError {
			if c.writeCompleteCallback != nil {
				c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
			}
			if c.State() == StateDisconnecting {
				c.shutdownInLoop()
			}
		}
		return
	}

	c.sendFilePending = true
	c.loop.QueueInLoop(func() { c.sendFileInLoop(file, offset, remaining) })
}

// handleRead drains the socket into the input buffer and dispatches the
// message callback, treats a zero-byte orderly read as a peer close, and
// routes an actual read error to handleError rather than handleClose — an
// EAGAIN/EWOULDBLOCK is benign ("no data" on an edge-triggered re-check, per
// spec.md §7) and is not an error at all, per TcpConnection::handleRead.
func (c *Connection) handleRead(receiveTime Timestamp) {
	n, err := c.inputBuffer.ReadFromFD(c.fd)
	switch {
	case n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.inputBuffer, receiveTime)
		}
	case n == 0 && err == nil:
		c.handleClose()
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
	default:
		logger().Err().Err(err).Str("conn", c.name).Log("read failed")
		c.handleError()
	}
}

// handleWrite drains the output buffer, disabling write interest and firing
// WriteCompleteCallback once it empties, completing a deferred Shutdown if
// one is pending, per TcpConnection::handleWrite.
func (c *Connection) handleWrite() {
	if !c.channel.isWriting() {
		logger().Err().Str("conn", c.name).Int("fd", c.fd).Log("connection is down, no more writing")
		return
	}
	n, err := c.outputBuffer.WriteToFD(c.fd)
	if n > 0 {
		c.outputBuffer.Retrieve(n)
		if c.outputBuffer.Readable() == 0 {
			c.channel.disableWriting()
			if c.writeCompleteCallback != nil {
				c.loop.QueueInLoop(func() { c.writeCompleteCallback(c) })
			}
			if c.State() == StateDisconnecting {
				c.shutdownInLoop()
			}
		}
		return
	}
	if err != nil {
		logger().Err().Err(err).Str("conn", c.name).Log("write failed")
	}
}

// handleClose tears the connection down: fires the down-edge
// ConnectionCallback then hands off to the server's CloseCallback for
// removal from its registry, per TcpConnection::handleClose.
func (c *Connection) handleClose() {
	c.state.Store(int32(StateDisconnected))
	c.channel.disableAll()
	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

// handleError logs the socket's pending error, per TcpConnection::handleError.
func (c *Connection) handleError() {
	err := socketError(c.fd)
	logger().Err().Err(err).Str("conn", c.name).Log("socket error")
}
