// Package reactor is a multi-threaded, one-event-loop-per-goroutine TCP
// server framework in the muduo/reactor family: readiness-based
// multiplexing (epoll) drives non-blocking accept, read, and write, a
// consistent-hash ring distributes new connections across a pool of
// worker loops, and a priority-ordered timer queue rides the same
// multiplexer via timerfd.
//
// # Construction sequence
//
// Applications build a reactor server in a fixed order:
//
//  1. NewLoop to create the main loop (the one that will run Acceptor).
//  2. NewServer (or NewServerWithOptions), binding a listening Endpoint to
//     that main loop.
//  3. Register ConnectionCallback, MessageCallback, and optionally
//     WriteCompleteCallback / HighWaterMarkCallback on the Server.
//  4. Server.SetThreadNum to size the worker pool (0 keeps everything on
//     the main loop).
//  5. Server.Start, which spawns the worker-loop goroutines and places the
//     listening socket into LISTEN state.
//  6. mainLoop.Run, which blocks the calling goroutine dispatching
//     accept events (and, if no workers were started, all connection I/O)
//     until something calls mainLoop.Quit.
//
// Every worker loop spawned by Start runs its own Run independently; the
// pool's consistent-hash ring assigns each new connection to exactly one
// of them for its entire lifetime.
//
// # Threading
//
// A Loop's state is single-writer: only its own goroutine ever mutates it
// directly. Cross-goroutine calls (Connection.Send,
// Server.removeConnection) go through RunInLoop/QueueInLoop, which marshal
// the call onto the owning loop via a pending-task queue and an
// eventfd-backed wakeup. Loop.Quit from elsewhere sets an atomic flag and
// writes the same wakeup fd directly.
package reactor
