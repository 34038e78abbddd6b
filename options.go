package reactor

// serverOptions holds the subset of Server configuration that makes sense
// to set at construction time rather than via the Set*Callback methods,
// grounded on the teacher's options.go closure-wrapper pattern
// (LoopOption/loopOptionImpl) generalized to this package's Server.
type serverOptions struct {
	reusePort     bool
	threadNum     int
	highWaterMark int
}

// ServerOption configures a Server at construction time.
type ServerOption interface {
	applyServer(*serverOptions)
}

type serverOptionFunc struct {
	apply func(*serverOptions)
}

func (f *serverOptionFunc) applyServer(o *serverOptions) { f.apply(o) }

// WithReusePort enables SO_REUSEPORT on the listening socket, letting
// multiple processes (or, here, nothing — a single Acceptor already owns
// the fd — kept for parity with the original's reuseport constructor
// argument) share the port.
func WithReusePort(enabled bool) ServerOption {
	return &serverOptionFunc{func(o *serverOptions) { o.reusePort = enabled }}
}

// WithThreadNum sets the worker-loop count Start will spawn, equivalent to
// calling Server.SetThreadNum before Start.
func WithThreadNum(n int) ServerOption {
	return &serverOptionFunc{func(o *serverOptions) { o.threadNum = n }}
}

// WithHighWaterMark sets the default pending-output threshold (bytes) above
// which new connections' HighWaterMarkCallback fires.
func WithHighWaterMark(n int) ServerOption {
	return &serverOptionFunc{func(o *serverOptions) { o.highWaterMark = n }}
}

func resolveServerOptions(opts []ServerOption) *serverOptions {
	cfg := &serverOptions{highWaterMark: defaultHighWaterMark}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyServer(cfg)
	}
	return cfg
}

// NewServerWithOptions is NewServer generalized with ServerOption, the
// entry point applications reach for when they need reuse-port, an initial
// thread count, or a non-default watermark without a separate call to each
// setter.
func NewServerWithOptions(mainLoop *Loop, addr Endpoint, name string, opts ...ServerOption) (*Server, error) {
	cfg := resolveServerOptions(opts)
	s, err := NewServer(mainLoop, addr, name, cfg.reusePort)
	if err != nil {
		return nil, err
	}
	s.highWaterMark = cfg.highWaterMark
	if cfg.threadNum > 0 {
		s.SetThreadNum(cfg.threadNum)
	}
	return s, nil
}
