package reactor

import "weak"

// ioEvents is the bitmask of I/O readiness a Channel registers interest in
// or observes, abstracted away from any particular multiplexer's native
// bit values (poller_linux.go translates to/from EPOLLIN etc.).
type ioEvents uint32

const (
	eventNone   ioEvents = 0
	eventRead   ioEvents = 1 << 0
	eventWrite  ioEvents = 1 << 1
	eventError  ioEvents = 1 << 2
	eventHangup ioEvents = 1 << 3
)

// channelIndex tracks a Channel's relationship to its loop's multiplexer,
// per spec.md §3/§4.1 and original_source/src/net/EPollPoller.cc's
// kNew/kAdded/kDeleted constants.
type channelIndex int8

const (
	channelNew channelIndex = iota
	channelAdded
	channelDeleted
)

// Channel is the event-handle registration record binding one file
// descriptor to per-event callbacks within a single loop, grounded on
// original_source/include/Channel.h and src/Channel.cc.
//
// A Channel's owning loop never changes after construction, and every
// mutation of its interest mask happens on that loop's goroutine — it is
// constructed by whatever owns the fd (Acceptor, Connection, the loop's own
// wakeup/timer handles) and must be removed from the multiplexer before its
// owner lets go of it.
type Channel struct {
	loop *Loop
	fd   int

	events  ioEvents // interest mask
	revents ioEvents // returned-events mask, set by the multiplexer just before dispatch

	index channelIndex

	readCallback  func(Timestamp)
	writeCallback func()
	closeCallback func()
	errorCallback func()

	tied   bool
	tether weak.Pointer[Connection]
}

// newChannel constructs a Channel for fd, owned by loop. The caller is
// responsible for setting callbacks and calling enableReading/enableWriting
// as appropriate before the channel is ever dispatched.
func newChannel(loop *Loop, fd int) *Channel {
	return &Channel{loop: loop, fd: fd, index: channelNew}
}

// Fd returns the channel's file descriptor.
func (c *Channel) Fd() int { return c.fd }

func (c *Channel) setReadCallback(f func(Timestamp)) { c.readCallback = f }
func (c *Channel) setWriteCallback(f func())         { c.writeCallback = f }
func (c *Channel) setCloseCallback(f func())         { c.closeCallback = f }
func (c *Channel) setErrorCallback(f func())         { c.errorCallback = f }

func (c *Channel) isWriting() bool { return c.events&eventWrite != 0 }
func (c *Channel) isReading() bool { return c.events&eventRead != 0 }
func (c *Channel) isNoneEvent() bool { return c.events == eventNone }

// enableReading, enableWriting, disableWriting, and disableAll mutate the
// interest mask and push the change to the loop's multiplexer via update().
func (c *Channel) enableReading() {
	c.events |= eventRead
	c.update()
}

func (c *Channel) disableReading() {
	c.events &^= eventRead
	c.update()
}

func (c *Channel) enableWriting() {
	c.events |= eventWrite
	c.update()
}

func (c *Channel) disableWriting() {
	c.events &^= eventWrite
	c.update()
}

func (c *Channel) disableAll() {
	c.events = eventNone
	c.update()
}

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// remove detaches the channel from its loop's multiplexer entirely. Callers
// must do this before releasing the fd.
func (c *Channel) remove() {
	c.loop.removeChannel(c)
}

// tie ties the channel's dispatch to conn's lifetime: once tied, handleEvent
// only runs the callback burst while conn is still reachable, mirroring the
// weak_ptr lock() guard in original_source/src/Channel.cc's handleEvent.
func (c *Channel) tie(conn *Connection) {
	c.tether = weak.Make(conn)
	c.tied = true
}

// handleEvent dispatches callbacks for the channel's current revents, in
// the precise order close → error → read → write (spec.md §4.3), honoring
// the lifetime tether if one was set.
func (c *Channel) handleEvent(receiveTime Timestamp) {
	if c.tied {
		conn := c.tether.Value()
		if conn == nil {
			return
		}
	}
	c.handleEventWithGuard(receiveTime)
}

func (c *Channel) handleEventWithGuard(receiveTime Timestamp) {
	if c.revents&eventHangup != 0 && c.revents&eventRead == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if c.revents&eventError != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if c.revents&(eventRead) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}
	if c.revents&eventWrite != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
