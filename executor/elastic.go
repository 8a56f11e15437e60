package executor

import (
	"context"
	"sync"

	"github.com/basio/basrv/internal/pool/goroutine"
	"github.com/basio/basrv/logging"
)

var _ Pool = (*ElasticPool)(nil)

// ElasticConfig controls the work pool's growth policy.
type ElasticConfig struct {
	// InitSize is the number of executors started immediately.
	InitSize int
	// HighWatermark is the maximum number of executors the pool will ever run.
	HighWatermark int
	// ThreadLoad is the target load per executor, measured with the load hint
	// passed to NextLoaded (the server and connector pass their checked-out
	// handler count); the pool grows a new executor when that load divided by
	// the active executor count meets or exceeds it, provided HighWatermark has
	// not been reached.
	ThreadLoad int
	// QueueDepth is the per-executor task queue depth.
	QueueDepth int
}

// ElasticPool is a work-executor pool that starts at InitSize and grows toward
// HighWatermark as load increases, backed by an ants.Pool so that each active
// executor's run loop occupies one pooled goroutine. It never shrinks: every
// launched executor stays in the round-robin rotation, and its run loop keeps
// its ants worker until Stop.
type ElasticPool struct {
	mu       sync.Mutex
	cfg      ElasticConfig
	gopool   *goroutine.Pool
	execs    []*Executor
	nextIdx  int
}

// NewElasticPool constructs InitSize unstarted executors, backed by an ants
// pool capped at HighWatermark workers. Call Start before drawing work from
// the pool.
func NewElasticPool(cfg ElasticConfig) (*ElasticPool, error) {
	if cfg.InitSize <= 0 {
		cfg.InitSize = 1
	}
	if cfg.HighWatermark < cfg.InitSize {
		cfg.HighWatermark = cfg.InitSize
	}
	if cfg.ThreadLoad <= 0 {
		cfg.ThreadLoad = 64
	}
	gopool, err := goroutine.New(cfg.HighWatermark)
	if err != nil {
		return nil, err
	}
	p := &ElasticPool{cfg: cfg, gopool: gopool}
	for i := 0; i < cfg.InitSize; i++ {
		p.execs = append(p.execs, New(i, cfg.QueueDepth))
	}
	return p, nil
}

// Start launches every already-built executor's run loop on the backing ants
// pool. Non-blocking; returns once every executor has been submitted.
func (p *ElasticPool) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.execs {
		if err := p.launch(e); err != nil {
			return err
		}
	}
	return nil
}

// launch marks e running and submits its run loop to the ants pool. Callers
// must hold p.mu.
func (p *ElasticPool) launch(e *Executor) error {
	e.status.Store(int32(StatusRunning))
	e.wg.Add(1)
	return p.gopool.Submit(e.loop)
}

// spawn builds and launches one additional executor, used to grow the active
// subset after Start. Callers must hold p.mu.
func (p *ElasticPool) spawn() error {
	e := New(len(p.execs), p.cfg.QueueDepth)
	p.execs = append(p.execs, e)
	return p.launch(e)
}

// Next returns an executor by round-robin without supplying a load hint, so
// it never triggers growth. Callers that track an external load metric (the
// handler pool's checked-out count) should call NextLoaded instead.
func (p *ElasticPool) Next() *Executor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextLocked()
}

// NextLoaded returns an executor by round-robin, first growing the active
// subset if load — an external load hint, typically handler.Pool.Load() —
// spread across the current executor count meets or exceeds ThreadLoad and
// HighWatermark has not yet been reached.
func (p *ElasticPool) NextLoaded(load int) *Executor {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shouldGrow(load) {
		if err := p.spawn(); err != nil {
			logging.Warnf("elastic pool: failed to grow: %v", err)
		}
	}
	return p.nextLocked()
}

func (p *ElasticPool) nextLocked() *Executor {
	e := p.execs[p.nextIdx]
	p.nextIdx = (p.nextIdx + 1) % len(p.execs)
	return e
}

func (p *ElasticPool) shouldGrow(load int) bool {
	if len(p.execs) >= p.cfg.HighWatermark {
		return false
	}
	return load/len(p.execs) >= p.cfg.ThreadLoad
}

// Size returns the number of currently active executors.
func (p *ElasticPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.execs)
}

// IsFree reports whether every active executor currently has no pending
// tasks. A snapshot, not a lock against concurrent posts.
func (p *ElasticPool) IsFree() bool {
	p.mu.Lock()
	execs := append([]*Executor(nil), p.execs...)
	p.mu.Unlock()
	for _, e := range execs {
		if !e.IsFree() {
			return false
		}
	}
	return true
}

// Stop signals every active executor to stop. When force is false each
// executor drains its queue before exiting; when true, pending tasks are
// abandoned. Always returns nil; the error return exists to satisfy Pool.
func (p *ElasticPool) Stop(force bool) error {
	p.mu.Lock()
	execs := append([]*Executor(nil), p.execs...)
	p.mu.Unlock()
	for _, e := range execs {
		e.Stop(force)
	}
	return nil
}

// Join blocks until every executor's run loop has exited, then releases the
// backing ants pool.
func (p *ElasticPool) Join() {
	p.mu.Lock()
	execs := append([]*Executor(nil), p.execs...)
	p.mu.Unlock()
	for _, e := range execs {
		e.Join()
	}
	p.gopool.Release()
}
