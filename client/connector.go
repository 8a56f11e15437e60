// Package client implements the outbound half of the paired-handler protocol:
// a Connector draws a handler from its own pool for each dial, wires it as
// the child of a caller-supplied parent handler, and opens it once connected.
package client

import (
	"context"

	"github.com/basio/basrv/errors"
	"github.com/basio/basrv/executor"
	"github.com/basio/basrv/handler"
	"github.com/basio/basrv/logging"
	"github.com/basio/basrv/transport"
)

// Config configures a Connector's handler pool and pinned executors.
type Config struct {
	// IOPoolSize sizes the fixed pool outbound handlers' I/O is pinned to.
	IOPoolSize int
	// WorkPoolInitSize, WorkPoolHighWatermark and WorkPoolThreadLoad configure
	// the elastic work pool outbound handlers' Work callbacks run on, sized
	// the same way as the server's: grown against the checked-out handler
	// count (see NextLoaded) rather than left fixed.
	WorkPoolInitSize      int
	WorkPoolHighWatermark int
	WorkPoolThreadLoad    int
	// PreallocatedHandlers bounds the number of concurrent outbound connections.
	PreallocatedHandlers int
	ReadBufferSize       int
	WriteBufferSize      int
	// Allocator produces the Work value bound to each outbound handler.
	Allocator handler.Allocator
}

// Connector dials outbound connections and pairs each one, as a child, with a
// caller-supplied parent handler.
type Connector struct {
	ioPool   *executor.FixedPool
	workPool *executor.ElasticPool
	handlers *handler.Pool
	dialer   transport.Connector
}

// New builds a Connector with its own fixed I/O pool, elastic work pool and
// handler pool, and starts both pools running. Returns an error if the
// elastic work pool cannot be built or either pool fails to start. A
// Connector has no separate run phase of its own to defer starting to, so
// New starts them immediately rather than leaving that to the caller.
func New(cfg Config) (*Connector, error) {
	workPool, err := executor.NewElasticPool(executor.ElasticConfig{
		InitSize:      cfg.WorkPoolInitSize,
		HighWatermark: cfg.WorkPoolHighWatermark,
		ThreadLoad:    cfg.WorkPoolThreadLoad,
		QueueDepth:    128,
	})
	if err != nil {
		return nil, err
	}
	ioPool := executor.NewFixedPool(cfg.IOPoolSize, 128)

	ctx := context.Background()
	if err := ioPool.Start(ctx); err != nil {
		return nil, err
	}
	if err := workPool.Start(ctx); err != nil {
		return nil, err
	}

	return &Connector{
		ioPool:   ioPool,
		workPool: workPool,
		handlers: handler.NewPool(handler.Config{
			Capacity:        cfg.PreallocatedHandlers,
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			Allocator:       cfg.Allocator,
		}),
		dialer: transport.NewTCPConnector(),
	}, nil
}

// Connect dials network/address and, on success, pairs the resulting child
// handler with parent: parent.SetChild(child) and child.SetParent(parent),
// mirroring the proxy example's connect-then-wire sequence, then calls
// child.Open() to fire the child's OnOpen callback.
func (c *Connector) Connect(network, address string, parent *handler.Handler) {
	c.dialer.AsyncConnect(network, address, func(tr transport.Transport, err error) {
		if err != nil {
			logging.Warnf("connector: dial %s %s failed: %v", network, address, err)
			return
		}
		ioExec := c.ioPool.Next()
		workExec := c.workPool.NextLoaded(c.handlers.Load())
		h, err := c.handlers.Get(tr, ioExec, workExec)
		if err != nil {
			logging.Warnf("connector: %v", errors.New(errors.KindResourceExhausted, err))
			_ = tr.Close()
			return
		}
		h.SetParent(parent.Handle())
		parent.SetChild(h.Handle())
		ioExec.Post(func() {
			h.Open()
		})
	})
}

// HandlerLoad returns the number of currently checked-out outbound handlers.
func (c *Connector) HandlerLoad() int { return c.handlers.Load() }
