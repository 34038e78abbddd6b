package reactor

import (
	"fmt"
	"sync"
)

// Server binds an Acceptor on the main loop to a loopPool, dispatching
// every accepted connection onto a worker loop chosen by consistent hash
// and keeping a name→Connection registry mutated only on the main loop,
// per spec.md §4.7.
type Server struct {
	mainLoop *Loop
	name     string
	acceptor *Acceptor
	pool     *loopPool

	nextConnID int

	mu    sync.Mutex
	conns map[string]*Connection

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	highWaterMark         int
}

// NewServer constructs a Server listening on addr, owned by mainLoop.
func NewServer(mainLoop *Loop, addr Endpoint, name string, reusePort bool) (*Server, error) {
	acceptor, err := NewAcceptor(mainLoop, addr, reusePort)
	if err != nil {
		return nil, err
	}
	s := &Server{
		mainLoop: mainLoop,
		name:     name,
		acceptor: acceptor,
		pool:     newLoopPool(mainLoop, name),
		conns:    make(map[string]*Connection),
	}
	acceptor.SetNewConnectionCallback(s.newConnection)
	return s, nil
}

// SetConnectionCallback registers the application's up/down-edge hook.
func (s *Server) SetConnectionCallback(cb ConnectionCallback) { s.connectionCallback = cb }

// SetMessageCallback registers the application's inbound-data hook.
func (s *Server) SetMessageCallback(cb MessageCallback) { s.messageCallback = cb }

// SetWriteCompleteCallback registers the application's drain-complete hook.
func (s *Server) SetWriteCompleteCallback(cb WriteCompleteCallback) { s.writeCompleteCallback = cb }

// SetHighWaterMarkCallback registers the application's backpressure hook,
// firing once pending output crosses n bytes.
func (s *Server) SetHighWaterMarkCallback(cb HighWaterMarkCallback, n int) {
	s.highWaterMarkCallback = cb
	s.highWaterMark = n
}

// Addr returns the listening socket's bound local address, including the
// kernel-assigned port when NewServer was called with port 0.
func (s *Server) Addr() (Endpoint, error) {
	return s.acceptor.Addr()
}

// SetThreadNum configures how many worker loops Start spawns. Call before
// Start.
func (s *Server) SetThreadNum(n int) {
	s.pool.setThreadNum(n)
}

// Start spawns the worker pool (per ThreadInitCallback, if any) and begins
// listening on the main loop.
func (s *Server) Start(cb ThreadInitCallback) error {
	if err := s.pool.start(cb); err != nil {
		return err
	}
	return s.acceptor.Listen()
}

// newConnection is the Acceptor's handoff callback: it runs on the main
// loop, picks a worker loop via consistent hash on the peer's text-form
// endpoint, constructs a named Connection, registers it, and posts
// connectEstablished to the worker, per spec.md §4.7.
func (s *Server) newConnection(connFd int, peer Endpoint) {
	s.nextConnID++
	name := fmt.Sprintf("%s-%d", s.name, s.nextConnID)

	loop := s.pool.getNextLoop(peer.String())

	local, err := localEndpoint(connFd)
	if err != nil {
		logger().Err().Err(err).Str("conn", name).Log("getsockname failed")
	}

	conn := newConnection(loop, name, connFd, local, peer)
	conn.setConnectionCallback(s.connectionCallback)
	conn.setMessageCallback(s.messageCallback)
	conn.setWriteCompleteCallback(s.writeCompleteCallback)
	conn.setHighWaterMarkCallback(s.highWaterMarkCallback, s.highWaterMark)
	conn.setCloseCallback(s.removeConnection)

	s.mu.Lock()
	s.conns[name] = conn
	s.mu.Unlock()

	loop.RunInLoop(conn.connectEstablished)
}

// removeConnection is a Connection's CloseCallback: it posts eviction from
// the registry to the main loop, then posts connectDestroyed to the
// connection's own (worker) loop, per spec.md §4.7.
func (s *Server) removeConnection(conn *Connection) {
	s.mainLoop.RunInLoop(func() {
		s.mu.Lock()
		delete(s.conns, conn.Name())
		s.mu.Unlock()
		conn.loop.RunInLoop(conn.connectDestroyed)
	})
}

// Connections returns a snapshot of the currently registered connections.
func (s *Server) Connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	return out
}
