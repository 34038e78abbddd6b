package reactor

import (
	"container/heap"
	"sync/atomic"
	"time"
)

// TimerID identifies a scheduled callback for later cancellation, the
// "acceptable extension" spec.md §4.4/§9 calls for beyond the original
// source's fire-and-forget Timer (original_source/include/Timer.h).
type TimerID uint64

// timerEntry is one scheduled callback: (expiration, interval, callback),
// per spec.md §3. interval > 0 means periodic; 0 means one-shot.
type timerEntry struct {
	seq      uint64
	when     Timestamp
	interval time.Duration
	callback func()
	id       TimerID
	canceled bool
}

// timerHeap orders entries by expiration, breaking ties by insertion order
// (spec.md §4.4: "among simultaneous expirations, FIFO by insertion").
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Time().Equal(h[j].when.Time()) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// timerQueue is the priority-ordered timer set driven by a timerfd, per
// spec.md §4.4. Its heap/entries/byID state is owned by exactly one Loop and
// only ever touched on that loop's goroutine; idCounter is the sole exception
// (see nextTimerID).
type timerQueue struct {
	loop    *Loop
	fd      int
	channel *Channel
	entries timerHeap
	byID    map[TimerID]*timerEntry
	nextSeq uint64

	// idCounter allocates TimerIDs. It is an atomic, not loop-goroutine-only
	// state like the rest of timerQueue, because Loop.RunAt/RunAfter/RunEvery
	// must hand back a TimerID synchronously to whatever goroutine called
	// them, before the corresponding heap insertion (which does run on the
	// loop goroutine, via RunInLoop) has happened.
	idCounter atomic.Uint64
}

func newTimerQueue(loop *Loop) (*timerQueue, error) {
	fd, err := newTimerFd()
	if err != nil {
		return nil, err
	}
	tq := &timerQueue{
		loop: loop,
		fd:   fd,
		byID: make(map[TimerID]*timerEntry),
	}
	tq.channel = newChannel(loop, fd)
	tq.channel.setReadCallback(tq.handleRead)
	tq.channel.enableReading()
	return tq, nil
}

// nextTimerID allocates a new TimerID. Unlike every other timerQueue method,
// this is safe to call from any goroutine: it only touches idCounter, never
// entries/byID, so a caller can obtain an id before marshaling the actual
// heap mutation onto the loop goroutine (see Loop.RunAt).
func (tq *timerQueue) nextTimerID() TimerID {
	return TimerID(tq.idCounter.Add(1))
}

// addTimer schedules callback to run at when under the given, already
// allocated, id, repeating every interval if interval > 0. It re-arms the
// kernel timer if when is the new earliest expiration, per spec.md §4.4.
// Must run on the owning loop's goroutine.
func (tq *timerQueue) addTimer(id TimerID, when Timestamp, interval time.Duration, callback func()) {
	tq.nextSeq++
	e := &timerEntry{
		seq:      tq.nextSeq,
		when:     when,
		interval: interval,
		callback: callback,
		id:       id,
	}
	wasEarliest := tq.entries.Len() == 0 || when.Before(tq.entries[0].when)
	heap.Push(&tq.entries, e)
	tq.byID[e.id] = e
	if wasEarliest {
		tq.rearm()
	}
}

// cancel marks a timer so it will not fire again. Already-queued heap
// entries are skipped lazily on pop rather than searched for and removed
// eagerly.
func (tq *timerQueue) cancel(id TimerID) {
	if e, ok := tq.byID[id]; ok {
		e.canceled = true
		delete(tq.byID, id)
	}
}

// handleRead is the timerfd's read callback: it drains the kernel
// notification, fires every expired entry (in expiration order, FIFO among
// ties), reschedules periodic ones, and re-arms or disarms the kernel timer
// to the new earliest expiration.
func (tq *timerQueue) handleRead(receiveTime Timestamp) {
	drainTimerFd(tq.fd)

	now := receiveTime
	var expired []*timerEntry
	for tq.entries.Len() > 0 && !tq.entries[0].when.After(now) {
		e := heap.Pop(&tq.entries).(*timerEntry)
		expired = append(expired, e)
	}

	for _, e := range expired {
		if e.canceled {
			continue
		}
		e.callback()
		if e.interval > 0 && !e.canceled {
			e.when = e.when.Add(e.interval)
			tq.nextSeq++
			e.seq = tq.nextSeq
			heap.Push(&tq.entries, e)
		} else {
			delete(tq.byID, e.id)
		}
	}

	tq.rearm()
}

// rearm sets the kernel timer to the minimum expiration of the non-empty
// set, or disarms it when empty, per spec.md §3's timer-queue invariant.
func (tq *timerQueue) rearm() {
	if tq.entries.Len() == 0 {
		if err := disarmTimerFd(tq.fd); err != nil {
			logger().Err().Err(err).Log("timerfd disarm failed")
		}
		return
	}
	d := tq.entries[0].when.Sub(Now())
	if err := armTimerFd(tq.fd, d); err != nil {
		logger().Err().Err(err).Log("timerfd settime failed")
	}
}

// close releases the timerfd and its channel registration.
func (tq *timerQueue) close() {
	tq.channel.disableAll()
	tq.channel.remove()
	closeTimerFd(tq.fd)
}
