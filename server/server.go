package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/basio/basrv/errors"
	"github.com/basio/basrv/executor"
	"github.com/basio/basrv/handler"
	"github.com/basio/basrv/logging"
)

// Server owns the accept pool, I/O pool, elastic work pool and handler pool,
// and runs one acceptor per accept-executor against the configured address.
type Server struct {
	cfg *Config

	acceptPool *executor.FixedPool
	ioPool     *executor.FixedPool
	workPool   *executor.ElasticPool
	handlers   *handler.Pool

	acceptors []*acceptor

	running atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Server from options but does not bind any socket or start any
// pool; binding and pool startup are deferred to Run so that a configuration
// error at that point surfaces from Run rather than from New.
func New(allocator handler.Allocator, options ...Option) (*Server, error) {
	cfg := initOptions(options...)
	if cfg.Address == "" {
		return nil, errors.New(errors.KindConfig, errors.ErrInvalidConfig)
	}

	workPool, err := executor.NewElasticPool(executor.ElasticConfig{
		InitSize:      cfg.WorkPoolInitSize,
		HighWatermark: cfg.WorkPoolHighWatermark,
		ThreadLoad:    cfg.WorkPoolThreadLoad,
		QueueDepth:    cfg.QueueDepth,
	})
	if err != nil {
		return nil, errors.New(errors.KindConfig, err)
	}

	return &Server{
		cfg:        cfg,
		acceptPool: executor.NewFixedPool(cfg.AcceptPoolSize, cfg.QueueDepth),
		ioPool:     executor.NewFixedPool(cfg.IOPoolSize, cfg.QueueDepth),
		workPool:   workPool,
		handlers: handler.NewPool(handler.Config{
			Capacity:        cfg.PreallocatedHandlers,
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			Timeout:         cfg.Timeout,
			Allocator:       allocator,
		}),
		stopCh: make(chan struct{}),
	}, nil
}

// Run binds one SO_REUSEPORT listener per accept-executor, starts the accept,
// I/O and work pools, then blocks accepting and serving connections until
// Stop is called or ctx is canceled. A bind failure or pool start failure
// aborts startup and is returned directly, before any accept loop runs.
// Each acceptor's blocking accept loop is posted onto its own bound
// accept-executor and runs there for the acceptor's lifetime; errgroup joins
// them all on return.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New(errors.KindConfig, errors.ErrServerAlreadyRunning)
	}
	defer s.running.Store(false)

	acceptors := make([]*acceptor, s.cfg.AcceptPoolSize)
	for i := 0; i < s.cfg.AcceptPoolSize; i++ {
		a, err := newAcceptor(s.cfg.Address, s.acceptPool.At(i), s.ioPool, s.workPool, s.handlers)
		if err != nil {
			for _, opened := range acceptors[:i] {
				_ = opened.close()
			}
			return errors.New(errors.KindConfig, err)
		}
		acceptors[i] = a
	}
	s.acceptors = acceptors

	if err := s.acceptPool.Start(ctx); err != nil {
		s.closeAcceptors()
		return errors.New(errors.KindConfig, err)
	}
	if err := s.ioPool.Start(ctx); err != nil {
		s.closeAcceptors()
		return errors.New(errors.KindConfig, err)
	}
	if err := s.workPool.Start(ctx); err != nil {
		s.closeAcceptors()
		return errors.New(errors.KindConfig, err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, a := range s.acceptors {
		acc := a
		eg.Go(func() error {
			return acc.runOnExecutor()
		})
	}

	go func() {
		select {
		case <-egCtx.Done():
		case <-s.stopCh:
		}
		s.closeAcceptors()
	}()

	err := eg.Wait()
	if err != nil {
		logging.Errorf("server: run finished with error: %v", err)
	}
	return err
}

func (s *Server) closeAcceptors() {
	for _, a := range s.acceptors {
		if err := a.close(); err != nil {
			logging.Debugf("server: acceptor close error: %v", err)
		}
	}
}

// Stop begins a shutdown: stop accepting, then either drain the I/O and work
// pools until every open handler has run its close protocol and both pools
// report IsFree (force is false), or abandon whatever is in flight and stop
// immediately (force is true). ctx bounds how long Stop waits; once it
// expires, Stop returns a KindTimeout error while the shutdown it started
// goes on in the background, stopping the I/O and work pools once the drain
// gives up. A graceful stop does not close open handlers itself; it waits for
// them to close.
func (s *Server) Stop(ctx context.Context, force bool) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	done := make(chan struct{})
	go func() {
		s.acceptPool.Stop(force)
		s.acceptPool.Join()
		if !force {
			s.drainUntilIdle(ctx)
		}
		s.ioPool.Stop(force)
		s.ioPool.Join()
		s.workPool.Stop(force)
		s.workPool.Join()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.New(errors.KindTimeout, ctx.Err())
	}
}

// drainUntilIdle blocks until the handler pool is empty and both the I/O and
// work pools report IsFree — i.e. every open handler has completed its close
// protocol and recycled — or ctx is done, whichever comes first.
func (s *Server) drainUntilIdle(ctx context.Context) {
	const pollInterval = 10 * time.Millisecond
	for {
		if s.handlers.Load() == 0 && s.ioPool.IsFree() && s.workPool.IsFree() {
			return
		}
		select {
		case <-ctx.Done():
			logging.Warnf("server: stop context done with %d handlers still open", s.handlers.Load())
			return
		case <-time.After(pollInterval):
		}
	}
}

// HandlerLoad returns the number of currently checked-out handlers.
func (s *Server) HandlerLoad() int { return s.handlers.Load() }

// WorkPoolSize returns the elastic work pool's current active executor count.
func (s *Server) WorkPoolSize() int { return s.workPool.Size() }
