// Package basrv is an asynchronous TCP server framework built around three
// executor pools (accept, I/O, work) and a paired-handler event protocol for
// building proxies. It re-exports the pieces most callers need so that a
// simple server can be assembled from this single import.
package basrv

import (
	"context"
	"time"

	"github.com/basio/basrv/client"
	"github.com/basio/basrv/handler"
	"github.com/basio/basrv/server"
)

// ShutdownGrace bounds how long Run waits for a graceful stop once ctx is
// canceled before returning Server.Stop's timeout error.
const ShutdownGrace = 30 * time.Second

type (
	// Work is the user callback set bound to a handler for its lifecycle.
	Work = handler.Work
	// WorkAllocator produces a Work value per handler drawn from a pool.
	WorkAllocator = handler.Allocator
	// Event is a message exchanged between paired handlers.
	Event = handler.Event
	// EventKind identifies the kind of a paired-handler Event.
	EventKind = handler.EventKind
	// Handler is the per-connection service handler passed to Work callbacks.
	Handler = handler.Handler
	// Handle is a generation-stamped weak reference to a pooled Handler.
	Handle = handler.Handle
	// Option configures a Server.
	Option = server.Option
	// Server accepts and serves connections.
	Server = server.Server
	// Connector dials outbound paired-handler connections.
	Connector = client.Connector
)

const (
	EventChildOpen    = handler.EventChildOpen
	EventParentWrite  = handler.EventParentWrite
	EventChildWrite   = handler.EventChildWrite
	EventParentClose  = handler.EventParentClose
	EventChildClose   = handler.EventChildClose
)

var (
	// WithAddress sets the listen address.
	WithAddress = server.WithAddress
	// WithAcceptPoolSize sets the fixed accept pool size.
	WithAcceptPoolSize = server.WithAcceptPoolSize
	// WithIOPoolSize sets the fixed I/O pool size.
	WithIOPoolSize = server.WithIOPoolSize
	// WithWorkPool sets the elastic work pool's growth policy.
	WithWorkPool = server.WithWorkPool
	// WithPreallocatedHandlers sets the fixed handler pool capacity.
	WithPreallocatedHandlers = server.WithPreallocatedHandlers
	// WithBufferSizes sets the fixed read/write buffer sizes.
	WithBufferSizes = server.WithBufferSizes
	// WithTimeout sets the per-handler inactivity timeout.
	WithTimeout = server.WithTimeout
)

// NewServer builds a Server bound to allocator, configured via options.
func NewServer(allocator WorkAllocator, options ...Option) (*Server, error) {
	return server.New(allocator, options...)
}

// NewConnector builds a Connector for dialing outbound paired connections.
func NewConnector(cfg client.Config) (*Connector, error) {
	return client.New(cfg)
}

// Run is a convenience wrapper around Server.Run/Stop: it serves until ctx is
// canceled, then performs a graceful (non-forced) stop bounded by
// ShutdownGrace, joining every executor pool before returning. Run's own
// return value is Server.Run's error, if any, else Stop's.
func Run(ctx context.Context, s *Server) error {
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	stopErr := s.Stop(stopCtx, false)

	if err := <-runErr; err != nil {
		return err
	}
	return stopErr
}
