package reactor

// multiplexer abstracts the OS readiness facility a loop polls for I/O
// events, per spec.md §4.1. The concrete Linux backend (poller_linux.go)
// wraps epoll; other backends could wrap kqueue/IOCP without changing
// anything above this interface.
type multiplexer interface {
	// poll blocks for up to timeoutMs, appends every ready Channel to
	// active (after setting its revents), and returns the timestamp
	// observed immediately after the underlying syscall returns.
	poll(timeoutMs int, active *[]*Channel) (Timestamp, error)

	// updateChannel registers, re-arms, or disarms ch with the kernel
	// according to its current interest mask and index, per the state
	// table in spec.md §4.1.
	updateChannel(ch *Channel) error

	// removeChannel detaches ch from the kernel (if still added) and from
	// the fd→Channel map.
	removeChannel(ch *Channel) error

	// close releases the multiplexer's own kernel resources (e.g. the
	// epoll fd). It does not touch registered channels.
	close() error
}
