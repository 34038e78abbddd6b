package reactor

import (
	"fmt"
	"sync"
)

// hashReplicas is the virtual-node count per worker loop, per
// original_source's EventLoopThreadPool ctor (hash_(3)).
const hashReplicas = 3

// ThreadInitCallback runs on a worker loop's own goroutine right after its
// Loop is constructed but before Run starts dispatching, per
// original_source/include/EventLoopThread.h's ThreadInitCallback.
type ThreadInitCallback func(loop *Loop)

// loopPool owns the main loop plus a fixed set of worker loops, each
// running on its own goroutine, and a consistent-hash ring used to pick a
// worker for a given key stably across calls, per
// original_source/src/net/EventLoopThreadPool.cc.
type loopPool struct {
	baseLoop *Loop
	name     string

	mu        sync.Mutex
	started   bool
	numThread int

	loops    []*Loop
	indexOf  map[string]int
	ring     *hashRing

	ready chan struct{}
}

func newLoopPool(baseLoop *Loop, name string) *loopPool {
	return &loopPool{
		baseLoop: baseLoop,
		name:     name,
		indexOf:  make(map[string]int),
		ring:     newHashRing(hashReplicas, defaultHash),
	}
}

// setThreadNum sets how many worker loops start will spawn. Must be called
// before start; 0 means the base loop itself handles all connections.
func (p *loopPool) setThreadNum(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.numThread = n
}

// start spawns numThread worker goroutines, each constructing its own Loop,
// running cb (if set) before the loop starts dispatching, and registering
// its name with the hash ring. It blocks until every worker loop has
// signaled readiness, replacing the original's per-thread condition
// variable handshake with a single done channel.
func (p *loopPool) start(cb ThreadInitCallback) error {
	p.mu.Lock()
	p.started = true
	n := p.numThread
	p.mu.Unlock()

	if n == 0 {
		if cb != nil {
			cb(p.baseLoop)
		}
		return nil
	}

	type spawned struct {
		name string
		loop *Loop
		err  error
	}
	results := make(chan spawned, n)

	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%s%d", p.name, i)
		go func(name string) {
			loop, err := NewLoop()
			if err != nil {
				results <- spawned{name: name, err: err}
				return
			}
			if cb != nil {
				cb(loop)
			}
			results <- spawned{name: name, loop: loop}
			if err := loop.Run(); err != nil {
				logger().Err().Err(err).Str("worker", name).Log("worker loop exited with error")
			}
		}(name)
	}

	named := make([]spawned, 0, n)
	for i := 0; i < n; i++ {
		s := <-results
		if s.err != nil {
			return WrapError("start worker loop "+s.name, s.err)
		}
		named = append(named, s)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range named {
		idx := len(p.loops)
		p.loops = append(p.loops, s.loop)
		p.indexOf[s.name] = idx
		p.ring.addNode(s.name)
	}
	return nil
}

// getNextLoop picks the worker loop key consistently hashes to. The ring's
// getNode returns the owning node's name, which indexOf then resolves to a
// loop; this indirection is what keeps the lookup total even though the
// ring internally deals in hash values (SPEC_FULL.md §9 item 2: the
// original computed a raw hash and used it directly as a slice index,
// which could run out of bounds).
func (p *loopPool) getNextLoop(key string) *Loop {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loops) == 0 {
		return p.baseLoop
	}
	name, err := p.ring.getNode(key)
	if err != nil {
		logger().Err().Err(err).Log("getNextLoop: empty ring, falling back to base loop")
		return p.baseLoop
	}
	idx, ok := p.indexOf[name]
	if !ok {
		logger().Err().Str("node", name).Log("getNextLoop: ring node has no loop, falling back to base loop")
		return p.baseLoop
	}
	return p.loops[idx]
}

// getAllLoops returns every worker loop, or just the base loop if no
// workers were started.
func (p *loopPool) getAllLoops() []*Loop {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.loops) == 0 {
		return []*Loop{p.baseLoop}
	}
	out := make([]*Loop, len(p.loops))
	copy(out, p.loops)
	return out
}
