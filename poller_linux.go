//go:build linux

package reactor

import (
	"golang.org/x/sys/unix"
)

// initEventListSize and the amortized doubling below are grounded on
// original_source/src/net/EPollPoller.cc's kInitEventListSize/resize(2x)
// dance.
const initEventListSize = 16

// epollPoller is the Linux multiplexer backend: an epoll instance plus the
// fd→Channel map spec.md §3 calls for. It is only ever touched by its
// owning loop's goroutine, so — unlike the teacher's FastPoller, which is
// reachable from arbitrary goroutines and therefore needs a fixed array and
// an RWMutex — this implementation needs no locking at all.
type epollPoller struct {
	epfd     int
	events   []unix.EpollEvent
	channels map[int]*Channel
}

func newMultiplexer() (multiplexer, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, WrapError("epoll_create1", err)
	}
	return &epollPoller{
		epfd:     epfd,
		events:   make([]unix.EpollEvent, initEventListSize),
		channels: make(map[int]*Channel),
	}, nil
}

func (p *epollPoller) close() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) poll(timeoutMs int, active *[]*Channel) (Timestamp, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, WrapError("epoll_wait", err)
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		ch, ok := p.channels[int(ev.Fd)]
		if !ok {
			continue
		}
		ch.revents = epollToEvents(ev.Events)
		*active = append(*active, ch)
	}
	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return now, nil
}

func (p *epollPoller) updateChannel(ch *Channel) error {
	switch ch.index {
	case channelNew, channelDeleted:
		fd := ch.fd
		p.channels[fd] = ch
		if err := p.ctl(unix.EPOLL_CTL_ADD, ch); err != nil {
			delete(p.channels, fd)
			return err
		}
		ch.index = channelAdded
	default: // channelAdded
		if ch.isNoneEvent() {
			if err := p.ctl(unix.EPOLL_CTL_DEL, ch); err != nil {
				logger().Err().Err(err).Int("fd", ch.fd).Log("epoll_ctl del failed")
			}
			ch.index = channelDeleted
		} else if err := p.ctl(unix.EPOLL_CTL_MOD, ch); err != nil {
			return err
		}
	}
	return nil
}

func (p *epollPoller) removeChannel(ch *Channel) error {
	delete(p.channels, ch.fd)
	if ch.index == channelAdded {
		if err := p.ctl(unix.EPOLL_CTL_DEL, ch); err != nil {
			return err
		}
	}
	ch.index = channelNew
	return nil
}

func (p *epollPoller) ctl(op int, ch *Channel) error {
	ev := unix.EpollEvent{Events: eventsToEpoll(ch.events), Fd: int32(ch.fd)}
	err := unix.EpollCtl(p.epfd, op, ch.fd, &ev)
	if err != nil {
		// ADD/MOD failures are a programmer bug (spec.md §7): the fd or
		// event set is malformed. DEL failures are logged and swallowed
		// since the fd may already be gone.
		if op == unix.EPOLL_CTL_DEL {
			return WrapError("epoll_ctl del", err)
		}
		logger().Err().Err(err).Int("fd", ch.fd).Int("op", op).Log("epoll_ctl add/mod failed")
		panic(WrapError("epoll_ctl add/mod", err))
	}
	return nil
}

func eventsToEpoll(ev ioEvents) uint32 {
	var out uint32
	if ev&eventRead != 0 {
		out |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if ev&eventWrite != 0 {
		out |= unix.EPOLLOUT
	}
	return out
}

func epollToEvents(ev uint32) ioEvents {
	var out ioEvents
	if ev&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		out |= eventRead
	}
	if ev&unix.EPOLLOUT != 0 {
		out |= eventWrite
	}
	if ev&unix.EPOLLERR != 0 {
		out |= eventError
	}
	if ev&unix.EPOLLHUP != 0 {
		out |= eventHangup
	}
	return out
}
