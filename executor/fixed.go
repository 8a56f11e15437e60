package executor

import (
	"context"
	"sync"
)

var _ Pool = (*FixedPool)(nil)

// FixedPool is a preallocated, unchanging set of executors, selected in
// round-robin order. It backs the accept pool and the I/O pool, both of
// which the design fixes at their configured size for the server's lifetime.
// Executors are built at construction but not started; call Start to launch
// their run loops.
type FixedPool struct {
	mu         sync.Mutex
	executors  []*Executor
	nextIdx    int
	queueDepth int
}

// NewFixedPool builds size unstarted executors, each with the given
// per-executor queue depth. Call Start before drawing work from the pool.
func NewFixedPool(size, queueDepth int) *FixedPool {
	p := &FixedPool{executors: make([]*Executor, size), queueDepth: queueDepth}
	for i := range p.executors {
		p.executors[i] = New(i, queueDepth)
	}
	return p
}

// Start launches every executor's run loop goroutine. Non-blocking; returns
// once every goroutine has been started. Calling Start on an executor more
// than once is a no-op, so a second Start call is harmless.
func (p *FixedPool) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, e := range p.executors {
		e.Start()
	}
	return nil
}

// Next returns the next executor in round-robin order.
func (p *FixedPool) Next() *Executor {
	p.mu.Lock()
	e := p.executors[p.nextIdx]
	p.nextIdx = (p.nextIdx + 1) % len(p.executors)
	p.mu.Unlock()
	return e
}

// Len reports the fixed size of the pool.
func (p *FixedPool) Len() int { return len(p.executors) }

// At returns the executor at the given slot, used by acceptors that need a
// stable 1:1 binding between listener and accept-executor.
func (p *FixedPool) At(i int) *Executor { return p.executors[i] }

// Iterate calls f for every executor in slot order, stopping early if f returns false.
func (p *FixedPool) Iterate(f func(int, *Executor) bool) {
	for i, e := range p.executors {
		if !f(i, e) {
			return
		}
	}
}

// IsFree reports whether every executor in the pool currently has no pending
// tasks. A snapshot, not a lock against concurrent posts.
func (p *FixedPool) IsFree() bool {
	for _, e := range p.executors {
		if !e.IsFree() {
			return false
		}
	}
	return true
}

// Stop signals every executor to stop. When force is false each executor
// drains its queue before exiting; when true, pending tasks are abandoned.
// Always returns nil; the error return exists to satisfy Pool.
func (p *FixedPool) Stop(force bool) error {
	for _, e := range p.executors {
		e.Stop(force)
	}
	return nil
}

// Join blocks until every executor's run loop has exited.
func (p *FixedPool) Join() {
	for _, e := range p.executors {
		e.Join()
	}
}
