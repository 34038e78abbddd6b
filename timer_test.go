package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerQueueFiresOneShot(t *testing.T) {
	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	fired := make(chan struct{}, 1)
	go func() { _ = loop.Run() }()
	defer loop.Quit()

	loop.RunAfter(20*time.Millisecond, func() {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
}

// TestTimerQueueCancelPreventsFire calls RunAfter and Cancel directly from
// the test goroutine, concurrently with loop.Run() draining the same timer
// heap on another goroutine. RunAfter/Cancel marshal their heap mutations
// onto the loop goroutine internally, so this is race-free without any
// test-side RunInLoop wrapping.
func TestTimerQueueCancelPreventsFire(t *testing.T) {
	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	go func() { _ = loop.Run() }()
	defer loop.Quit()

	fired := make(chan struct{}, 1)
	id := loop.RunAfter(30*time.Millisecond, func() { fired <- struct{}{} })
	loop.Cancel(id)

	select {
	case <-fired:
		t.Fatal("canceled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimerQueueRunEveryRepeats(t *testing.T) {
	loop, err := NewLoop()
	require.NoError(t, err)
	defer loop.Close()

	go func() { _ = loop.Run() }()
	defer loop.Quit()

	count := make(chan struct{}, 8)
	id := loop.RunEvery(10*time.Millisecond, func() {
		select {
		case count <- struct{}{}:
		default:
		}
	})

	for i := 0; i < 3; i++ {
		select {
		case <-count:
		case <-time.After(2 * time.Second):
			t.Fatalf("periodic timer only fired %d times", i)
		}
	}
	loop.Cancel(id)
}

func TestTimerHeapOrdersByExpirationThenSeq(t *testing.T) {
	var h timerHeap
	now := Now()
	h = append(h,
		&timerEntry{seq: 2, when: now.Add(10 * time.Millisecond)},
		&timerEntry{seq: 1, when: now.Add(10 * time.Millisecond)},
		&timerEntry{seq: 3, when: now.Add(5 * time.Millisecond)},
	)
	assert.True(t, h.Less(2, 0) || h.Less(2, 1))
	// Equal expirations break ties by sequence number.
	assert.True(t, h.Less(1, 0))
}
