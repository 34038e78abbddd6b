package reactor

import (
	"golang.org/x/sys/unix"
)

// defaultBacklog is the listen(2) backlog depth, per
// original_source/include/Socket.h's listen() default.
const defaultBacklog = 1024

// NewConnectionCallback hands an accepted connection's raw fd and peer
// address off to whatever dispatches it onto a worker loop (Server, in this
// package), per original_source/include/Acceptor.h.
type NewConnectionCallback func(connFd int, peer Endpoint)

// Acceptor owns a listening socket on one loop (conventionally the main
// loop) and hands off every accepted connection via NewConnectionCallback,
// grounded on original_source/src/net/Acceptor.cc.
type Acceptor struct {
	loop      *Loop
	listenFd  int
	channel   *Channel
	listening bool
	closed    bool
	onNewConn NewConnectionCallback
}

// NewAcceptor creates a non-blocking listening socket bound to addr. The
// socket is not placed in LISTEN state until Listen is called.
func NewAcceptor(loop *Loop, addr Endpoint, reusePort bool) (*Acceptor, error) {
	fd, err := newNonblockingSocket()
	if err != nil {
		return nil, err
	}
	if err := setReuseAddr(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, WrapError("setReuseAddr", err)
	}
	if err := setReusePort(fd, reusePort); err != nil {
		_ = unix.Close(fd)
		return nil, WrapError("setReusePort", err)
	}
	if err := bindSocket(fd, addr); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	a := &Acceptor{loop: loop, listenFd: fd}
	a.channel = newChannel(loop, fd)
	a.channel.setReadCallback(a.handleRead)
	return a, nil
}

// SetNewConnectionCallback registers the handoff callback. Must be called
// before Listen.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.onNewConn = cb
}

// Listen places the socket in LISTEN state and registers read interest,
// per Acceptor::listen. Must run on the acceptor's loop. Returns
// ErrAcceptorClosed if Close has already been called.
func (a *Acceptor) Listen() error {
	if a.closed {
		return ErrAcceptorClosed
	}
	a.listening = true
	if err := unix.Listen(a.listenFd, defaultBacklog); err != nil {
		return WrapError("listen", err)
	}
	a.channel.enableReading()
	return nil
}

// handleRead accepts exactly one pending connection per readiness event
// (spec.md §4.5), per Acceptor::handleRead. An EMFILE/ENFILE-class failure
// is logged and the loop continues; the listening socket is never torn
// down because of it.
func (a *Acceptor) handleRead(Timestamp) {
	connFd, peer, err := acceptConn(a.listenFd)
	if err != nil {
		logger().Err().Err(err).Log("accept failed")
		return
	}
	if a.onNewConn != nil {
		a.onNewConn(connFd, peer)
	} else {
		_ = unix.Close(connFd)
	}
}

// Addr returns the socket's bound local address, including the
// kernel-assigned port when the caller bound to port 0.
func (a *Acceptor) Addr() (Endpoint, error) {
	return localEndpoint(a.listenFd)
}

// Close stops listening and releases the socket.
func (a *Acceptor) Close() error {
	a.closed = true
	a.channel.disableAll()
	a.channel.remove()
	return unix.Close(a.listenFd)
}
