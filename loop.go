package reactor

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// pollTimeout bounds how long a single poll() call may block, so a loop
// whose multiplexer never wakes (no channels registered yet, no wakeup
// written) still notices Quit or a timer armed from another loop within a
// bounded interval. Grounded on original_source/src/net/EPollPoller.cc's
// kPollTimeMs (10000).
const pollTimeout = 10 * time.Second

// Loop is one goroutine's event loop: a multiplexer, a timer queue, a
// cross-goroutine wakeup fd, and a pending-task queue, per spec.md §3/§4.2
// and original_source/include/EventLoop.h. Every method that touches loop
// state not guarded by pendingMu must run on the loop's own goroutine —
// callers from elsewhere must go through RunInLoop/QueueInLoop.
type Loop struct {
	poller multiplexer
	timers *timerQueue

	wakeFd      int
	wakeChannel *Channel

	channels map[int]*Channel

	pendingMu   sync.Mutex
	pending     []func()
	callingPend bool

	looping atomic.Bool
	quit    atomic.Bool
	closed  atomic.Bool

	// loopGoroutineID is the goroutine ID Run() is executing on, 0 when
	// not running. isInLoopThread compares against it, the same
	// stack-trace-parsing idiom the teacher's eventloop package uses in
	// place of the original's thread_local pointer, since Go gives no
	// cheaper stable goroutine identity.
	loopGoroutineID atomic.Uint64
}

// NewLoop constructs a Loop bound to the calling goroutine's multiplexer
// and wakeup/timer plumbing, but does not start it — call Run to do that.
func NewLoop() (*Loop, error) {
	poller, err := newMultiplexer()
	if err != nil {
		return nil, err
	}
	wakeFd, err := newWakeFd()
	if err != nil {
		_ = poller.close()
		return nil, err
	}
	l := &Loop{
		poller:   poller,
		wakeFd:   wakeFd,
		channels: make(map[int]*Channel),
	}
	l.wakeChannel = newChannel(l, wakeFd)
	l.wakeChannel.setReadCallback(l.handleWakeRead)
	l.wakeChannel.enableReading()

	timers, err := newTimerQueue(l)
	if err != nil {
		l.wakeChannel.disableAll()
		l.wakeChannel.remove()
		_ = closeWakeFd(wakeFd)
		_ = poller.close()
		return nil, err
	}
	l.timers = timers
	return l, nil
}

func (l *Loop) handleWakeRead(Timestamp) {
	wakeFdDrain(l.wakeFd)
}

// Run blocks the calling goroutine, dispatching ready channels and pending
// tasks until Quit is called. Grounded on original_source/src/net/
// EventLoop.cc's EventLoop::loop.
func (l *Loop) Run() error {
	if !l.looping.CompareAndSwap(false, true) {
		return ErrLoopAlreadyRunning
	}
	l.loopGoroutineID.Store(getGoroutineID())
	defer func() {
		l.loopGoroutineID.Store(0)
		l.looping.Store(false)
	}()

	var active []*Channel
	for !l.quit.Load() {
		active = active[:0]
		receiveTime, err := l.poller.poll(int(pollTimeout.Milliseconds()), &active)
		if err != nil {
			logger().Err().Err(err).Log("poll failed")
			continue
		}
		for _, ch := range active {
			ch.handleEvent(receiveTime)
		}
		l.doPendingTasks()
	}
	return nil
}

// Quit requests the loop to stop after its current iteration. Safe to call
// from any goroutine; wakes the loop if called from elsewhere, per
// EventLoop::quit.
func (l *Loop) Quit() {
	l.quit.Store(true)
	if !l.isInLoopThread() {
		if err := wakeFdWrite(l.wakeFd); err != nil {
			logger().Err().Err(err).Log("wakeup write failed on quit")
		}
	}
}

// RunInLoop runs f on the loop's goroutine: immediately if called from it,
// otherwise queued for the next iteration, per EventLoop::runInLoop. Returns
// ErrLoopClosed, without running f, once Close has been called.
func (l *Loop) RunInLoop(f func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if l.isInLoopThread() {
		f()
		return nil
	}
	return l.QueueInLoop(f)
}

// QueueInLoop appends f to the pending queue for the loop to run on its
// next pass, waking the loop if it might be blocked in poll or mid-drain of
// a previous batch (the latter so a task that enqueues another task during
// doPendingTasks is not starved until the next poll), per
// EventLoop::queueInLoop. Returns ErrLoopClosed, without queuing f, once
// Close has been called.
func (l *Loop) QueueInLoop(f func()) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	l.pendingMu.Lock()
	l.pending = append(l.pending, f)
	callingPend := l.callingPend
	l.pendingMu.Unlock()

	if !l.isInLoopThread() || callingPend {
		if err := wakeFdWrite(l.wakeFd); err != nil {
			logger().Err().Err(err).Log("wakeup write failed on queueInLoop")
		}
	}
	return nil
}

func (l *Loop) doPendingTasks() {
	l.pendingMu.Lock()
	l.callingPend = true
	tasks := l.pending
	l.pending = nil
	l.pendingMu.Unlock()

	for _, f := range tasks {
		f()
	}

	l.pendingMu.Lock()
	l.callingPend = false
	l.pendingMu.Unlock()
}

// isInLoopThread reports whether the calling goroutine is this Loop's own.
func (l *Loop) isInLoopThread() bool {
	id := l.loopGoroutineID.Load()
	if id == 0 {
		return false
	}
	return getGoroutineID() == id
}

// getGoroutineID parses the numeric ID out of the calling goroutine's own
// stack trace header ("goroutine 123 [running]: ..."). Go has no public,
// cheaper goroutine-identity primitive; this is the same trick the
// teacher's eventloop package uses for the same purpose.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// updateChannel registers ch (first call for a new fd), re-arms it, or
// disarms it with the loop's multiplexer, and tracks it in the fd→Channel
// map used to satisfy hasChannel.
func (l *Loop) updateChannel(ch *Channel) {
	l.channels[ch.Fd()] = ch
	if err := l.poller.updateChannel(ch); err != nil {
		logger().Err().Err(err).Int("fd", ch.Fd()).Log("updateChannel failed")
	}
}

// removeChannel detaches ch from the loop entirely.
func (l *Loop) removeChannel(ch *Channel) {
	delete(l.channels, ch.Fd())
	if err := l.poller.removeChannel(ch); err != nil {
		logger().Err().Err(err).Int("fd", ch.Fd()).Log("removeChannel failed")
	}
}

// hasChannel reports whether fd is currently registered with this loop.
func (l *Loop) hasChannel(fd int) bool {
	_, ok := l.channels[fd]
	return ok
}

// RunAt schedules callback to run once at when. Safe to call from any
// goroutine: the TimerID is allocated synchronously, and the heap insertion
// is marshaled onto the loop goroutine via RunInLoop, mirroring how the
// original's EventLoop::runAt generates the timer id synchronously but
// defers the actual mutation.
func (l *Loop) RunAt(when Timestamp, callback func()) TimerID {
	id := l.timers.nextTimerID()
	l.RunInLoop(func() { l.timers.addTimer(id, when, 0, callback) })
	return id
}

// RunAfter schedules callback to run once after d elapses. Safe to call from
// any goroutine.
func (l *Loop) RunAfter(d time.Duration, callback func()) TimerID {
	return l.RunAt(Now().Add(d), callback)
}

// RunEvery schedules callback to run repeatedly, every interval, starting
// interval from now. Safe to call from any goroutine.
func (l *Loop) RunEvery(interval time.Duration, callback func()) TimerID {
	id := l.timers.nextTimerID()
	when := Now().Add(interval)
	l.RunInLoop(func() { l.timers.addTimer(id, when, interval, callback) })
	return id
}

// Cancel stops a previously scheduled timer from firing again. Safe to call
// from any goroutine; the actual cancellation runs on the loop goroutine.
func (l *Loop) Cancel(id TimerID) {
	l.RunInLoop(func() { l.timers.cancel(id) })
}

// Close releases the loop's own fds (wakeup and timer); it does not touch
// channels an Acceptor/Connection/Server still owns, which must be removed
// and closed by their owners first. After Close, RunInLoop/QueueInLoop
// return ErrLoopClosed rather than accepting more work.
func (l *Loop) Close() error {
	l.closed.Store(true)
	l.timers.close()
	l.wakeChannel.disableAll()
	l.wakeChannel.remove()
	return closeWakeFd(l.wakeFd)
}
