package reactor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopPoolZeroThreadsReturnsBaseLoop(t *testing.T) {
	base, err := NewLoop()
	require.NoError(t, err)
	defer base.Close()

	p := newLoopPool(base, "pool-")
	require.NoError(t, p.start(nil))

	assert.Same(t, base, p.getNextLoop("any-key"))
	assert.Equal(t, []*Loop{base}, p.getAllLoops())
}

func TestLoopPoolDispatchIsStable(t *testing.T) {
	base, err := NewLoop()
	require.NoError(t, err)
	defer base.Close()

	p := newLoopPool(base, "pool-")
	p.setThreadNum(4)
	require.NoError(t, p.start(nil))
	defer func() {
		for _, l := range p.getAllLoops() {
			l.Quit()
		}
	}()

	require.Len(t, p.getAllLoops(), 4)

	keys := []string{"10.0.0.1:4000", "10.0.0.2:4001", "client-a", "client-b", "client-c"}
	first := make(map[string]*Loop, len(keys))
	for _, k := range keys {
		first[k] = p.getNextLoop(k)
	}
	for round := 0; round < 10; round++ {
		for _, k := range keys {
			assert.Same(t, first[k], p.getNextLoop(k), "dispatch for %q must be stable", k)
		}
	}
}

func TestLoopPoolThreadInitCallbackRuns(t *testing.T) {
	base, err := NewLoop()
	require.NoError(t, err)
	defer base.Close()

	p := newLoopPool(base, "pool-")
	p.setThreadNum(2)

	seen := make(chan *Loop, 2)
	require.NoError(t, p.start(func(loop *Loop) {
		seen <- loop
	}))
	defer func() {
		for _, l := range p.getAllLoops() {
			l.Quit()
		}
	}()

	loops := p.getAllLoops()
	require.Len(t, loops, 2)
	got := map[*Loop]bool{<-seen: true, <-seen: true}
	for _, l := range loops {
		assert.True(t, got[l])
	}
}
