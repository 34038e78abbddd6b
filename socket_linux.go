//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// newNonblockingSocket creates a non-blocking, close-on-exec TCP socket,
// grounded on original_source/src/net/Acceptor.cc's createNonblocking.
func newNonblockingSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, WrapError("socket", err)
	}
	return fd, nil
}

// setReuseAddr enables SO_REUSEADDR, per Socket::setReuseAddr in the
// original source.
func setReuseAddr(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

// setReusePort enables SO_REUSEPORT, per Socket::setReusePort.
func setReusePort(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

// setTCPNoDelay disables Nagle's algorithm, per
// TcpConnection::TcpConnection's unconditional
// socket_->setTcpNoDelay(true) call (SPEC_FULL.md §4.10).
func setTCPNoDelay(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

// setKeepAlive enables SO_KEEPALIVE, per the original constructor's
// socket_->setKeepAlive(true).
func setKeepAlive(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// bindSocket binds fd to addr, per Acceptor::Acceptor's
// acceptSocket_.bindAddress call. Listen(2) is a separate step (Acceptor's
// Listen method), matching the original's split between construction and
// Acceptor::listen.
func bindSocket(fd int, addr Endpoint) error {
	if err := unix.Bind(fd, addr.sockaddr()); err != nil {
		return WrapError("bind", err)
	}
	return nil
}

// acceptConn accepts one connection from a listening fd, per
// Acceptor::handleRead / Socket::accept.
func acceptConn(listenFd int) (connFd int, peer Endpoint, err error) {
	nfd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, Endpoint{}, err
	}
	peer, err = endpointFromSockaddr(sa)
	if err != nil {
		_ = unix.Close(nfd)
		return -1, Endpoint{}, err
	}
	return nfd, peer, nil
}

// localEndpoint returns the local address a connected/listening fd is
// bound to.
func localEndpoint(fd int) (Endpoint, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return Endpoint{}, WrapError("getsockname", err)
	}
	return endpointFromSockaddr(sa)
}

// peerEndpoint returns the remote address a connected fd is talking to.
func peerEndpoint(fd int) (Endpoint, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return Endpoint{}, WrapError("getpeername", err)
	}
	return endpointFromSockaddr(sa)
}

// socketError reads and clears SO_ERROR, per TcpConnection::handleError.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

// shutdownWrite half-closes the write side of fd, per
// Socket::shutdownWrite / TcpConnection::shutdownInLoop.
func shutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}
