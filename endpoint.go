package reactor

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Endpoint is an immutable IPv4 address + port pair, grounded on
// original_source/include/InetAddress.h.
type Endpoint struct {
	ip   [4]byte
	port uint16
}

// NewEndpoint constructs an Endpoint from a dotted-quad host and port. An
// empty host binds to all interfaces (0.0.0.0).
func NewEndpoint(host string, port uint16) (Endpoint, error) {
	if host == "" {
		return Endpoint{port: port}, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return Endpoint{}, WrapError(fmt.Sprintf("parse host %q", host), ErrInvalidEndpoint)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return Endpoint{}, WrapError(fmt.Sprintf("host %q is not IPv4", host), ErrInvalidEndpoint)
	}
	var e Endpoint
	copy(e.ip[:], ip4)
	e.port = port
	return e, nil
}

// Port returns the endpoint's port.
func (e Endpoint) Port() uint16 { return e.port }

// Host renders the endpoint's address in dotted-quad form.
func (e Endpoint) Host() string {
	return net.IP(e.ip[:]).String()
}

// String renders "host:port", the canonical text form used as a loop-pool
// selection key (spec.md §4.7).
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host(), strconv.Itoa(int(e.port)))
}

// sockaddr converts the endpoint to the unix.Sockaddr representation used
// to bind/connect raw sockets.
func (e Endpoint) sockaddr() *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Port: int(e.port), Addr: e.ip}
}

// endpointFromSockaddr converts an accepted peer's unix.Sockaddr into an
// Endpoint. Only AF_INET peers are supported, matching the rest of this
// package's IPv4-only scope.
func endpointFromSockaddr(sa unix.Sockaddr) (Endpoint, error) {
	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return Endpoint{}, WrapError("peer address", ErrInvalidEndpoint)
	}
	var e Endpoint
	e.ip = sa4.Addr
	e.port = uint16(sa4.Port)
	return e, nil
}
