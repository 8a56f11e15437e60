package handler

import (
	"sync"
	"time"

	"github.com/basio/basrv/errors"
	"github.com/basio/basrv/executor"
	"github.com/basio/basrv/transport"
)

// Config configures a Pool's fixed capacity and per-handler buffers.
type Config struct {
	// Capacity is the fixed number of handlers preallocated at construction;
	// Get returns ErrPoolExhausted once all of them are checked out.
	Capacity int
	// ReadBufferSize and WriteBufferSize size each handler's fixed buffers.
	ReadBufferSize  int
	WriteBufferSize int
	// Timeout, if positive, is the inactivity duration after which an open
	// handler closes itself with a KindTimeout cause. Zero disables the timer.
	Timeout time.Duration
	// Allocator produces the Work value bound to each handler on Get.
	Allocator Allocator
}

// Pool is a fixed-capacity free list of Handler slots. It never grows: the
// preallocated handler count bounds concurrent connections by construction.
type Pool struct {
	cfg   Config
	mu    sync.Mutex
	slots []*Handler
	gens  []uint64
	free  []int
}

// NewPool preallocates cfg.Capacity handler slots.
func NewPool(cfg Config) *Pool {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	p := &Pool{
		cfg:   cfg,
		slots: make([]*Handler, cfg.Capacity),
		gens:  make([]uint64, cfg.Capacity),
		free:  make([]int, cfg.Capacity),
	}
	for i := 0; i < cfg.Capacity; i++ {
		p.slots[i] = &Handler{
			pool:     p,
			index:    i,
			status:   StatusPooled,
			readBuf:  make([]byte, cfg.ReadBufferSize),
			writeBuf: make([]byte, cfg.WriteBufferSize),
		}
		p.free[i] = cfg.Capacity - 1 - i
	}
	return p
}

// Get draws a free handler, wires it to tr, ioExec and workExec, and returns
// it in StatusOpening. Call Open on the result once accept/connect bookkeeping
// is done. Returns ErrPoolExhausted if no slot is free.
func (p *Pool) Get(tr transport.Transport, ioExec, workExec *executor.Executor) (*Handler, error) {
	p.mu.Lock()
	if len(p.free) == 0 {
		p.mu.Unlock()
		return nil, errors.ErrPoolExhausted
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	h := p.slots[idx]
	gen := p.gens[idx]
	p.mu.Unlock()

	h.mu.Lock()
	h.gen = gen
	h.transport = tr
	h.ioExec = ioExec
	h.workExec = workExec
	h.timeout = p.cfg.Timeout
	h.work = p.cfg.Allocator.New()
	h.status = StatusOpening
	h.parent = Handle{}
	h.child = Handle{}
	h.firstErr = nil
	h.closeOnce = sync.Once{}
	h.mu.Unlock()

	return h, nil
}

// Load returns the number of currently checked-out handlers.
func (p *Pool) Load() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots) - len(p.free)
}

// Capacity returns the pool's fixed size.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// put recycles h back to the free list, bumping its generation so any
// outstanding Handle referencing it fails to resolve. Called once by the
// close protocol; safe to call only after OnClear has run.
func (p *Pool) put(h *Handler) {
	p.mu.Lock()
	h.mu.Lock()
	h.status = StatusPooled
	h.transport = nil
	work := h.work
	h.work = nil
	h.timer = nil
	idx := h.index
	h.mu.Unlock()
	p.gens[idx]++
	p.free = append(p.free, idx)
	p.mu.Unlock()

	if work != nil {
		p.cfg.Allocator.Free(work)
	}
}

// resolve returns the slot's handler if its generation still matches, i.e. it
// has not been recycled since the Handle was captured.
func (p *Pool) resolve(index int, generation uint64) (*Handler, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 0 || index >= len(p.slots) {
		return nil, false
	}
	if p.gens[index] != generation {
		return nil, false
	}
	return p.slots[index], true
}
