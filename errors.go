package reactor

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers should use errors.Is against these.
var (
	// ErrRingEmpty is returned by the consistent-hash ring when getNode is
	// called with no nodes present.
	ErrRingEmpty = errors.New("reactor: hash ring is empty")

	// ErrLoopAlreadyRunning is returned when Run is called on a loop that is
	// already inside its dispatch.
	ErrLoopAlreadyRunning = errors.New("reactor: loop is already running")

	// ErrLoopClosed is returned when an operation is attempted against a
	// loop that has quit and released its resources.
	ErrLoopClosed = errors.New("reactor: loop is closed")

	// ErrAcceptorClosed is returned when Listen is called on an acceptor
	// that has already been closed.
	ErrAcceptorClosed = errors.New("reactor: acceptor is closed")

	// ErrConnClosed is returned by operations against a connection that has
	// already transitioned to Disconnected.
	ErrConnClosed = errors.New("reactor: connection is closed")

	// ErrInvalidEndpoint is returned when an endpoint's host cannot be
	// parsed as an IPv4 address.
	ErrInvalidEndpoint = errors.New("reactor: invalid endpoint")
)

// WrapError wraps err with a message, preserving it for errors.Is/As.
func WrapError(message string, err error) error {
	return fmt.Errorf("%s: %w", message, err)
}
