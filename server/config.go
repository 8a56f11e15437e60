// Package server implements the listening side of the framework: the accept
// pool, I/O pool, elastic work pool and handler pool wired together behind a
// single Server.
package server

import "time"

// Option sets up a Config field.
type Option func(cfg *Config)

func initOptions(options ...Option) *Config {
	cfg := &Config{
		AcceptPoolSize:          1,
		IOPoolSize:              1,
		WorkPoolInitSize:        1,
		WorkPoolHighWatermark:   1,
		WorkPoolThreadLoad:      64,
		PreallocatedHandlers:    1024,
		ReadBufferSize:          4096,
		WriteBufferSize:         4096,
		QueueDepth:              128,
	}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg
}

// Config holds the tunables for a Server, populated via With* options.
type Config struct {
	// Address is the listen address, e.g. "0.0.0.0:9000".
	Address string
	// AcceptPoolSize is the fixed number of accept-executors, each bound to
	// its own SO_REUSEPORT listener on Address.
	AcceptPoolSize int
	// IOPoolSize is the fixed number of I/O-executors handlers are pinned to.
	IOPoolSize int
	// WorkPoolInitSize is the number of work-executors started immediately.
	WorkPoolInitSize int
	// WorkPoolHighWatermark is the maximum number of work-executors the
	// elastic pool will ever grow to.
	WorkPoolHighWatermark int
	// WorkPoolThreadLoad is the number of checked-out handlers per
	// work-executor at which the work pool grows, up to WorkPoolHighWatermark.
	WorkPoolThreadLoad int
	// PreallocatedHandlers is the fixed capacity of the handler pool; it bounds
	// the number of concurrent open connections.
	PreallocatedHandlers int
	// ReadBufferSize and WriteBufferSize size every handler's fixed buffers.
	ReadBufferSize  int
	WriteBufferSize int
	// Timeout is the per-handler inactivity timeout; zero disables it.
	Timeout time.Duration
	// QueueDepth is the per-executor posted-task queue depth.
	QueueDepth int
}

// WithAddress sets the listen address.
func WithAddress(address string) Option {
	return func(cfg *Config) { cfg.Address = address }
}

// WithAcceptPoolSize sets the fixed accept pool size.
func WithAcceptPoolSize(n int) Option {
	return func(cfg *Config) { cfg.AcceptPoolSize = n }
}

// WithIOPoolSize sets the fixed I/O pool size.
func WithIOPoolSize(n int) Option {
	return func(cfg *Config) { cfg.IOPoolSize = n }
}

// WithWorkPool sets the elastic work pool's initial size, high watermark and
// per-executor thread-load growth threshold.
func WithWorkPool(initSize, highWatermark, threadLoad int) Option {
	return func(cfg *Config) {
		cfg.WorkPoolInitSize = initSize
		cfg.WorkPoolHighWatermark = highWatermark
		cfg.WorkPoolThreadLoad = threadLoad
	}
}

// WithPreallocatedHandlers sets the fixed handler pool capacity.
func WithPreallocatedHandlers(n int) Option {
	return func(cfg *Config) { cfg.PreallocatedHandlers = n }
}

// WithBufferSizes sets the fixed read and write buffer sizes for every handler.
func WithBufferSizes(readSize, writeSize int) Option {
	return func(cfg *Config) {
		cfg.ReadBufferSize = readSize
		cfg.WriteBufferSize = writeSize
	}
}

// WithTimeout sets the per-handler inactivity timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(cfg *Config) { cfg.Timeout = d }
}

// WithQueueDepth sets the per-executor posted-task queue depth.
func WithQueueDepth(n int) Option {
	return func(cfg *Config) { cfg.QueueDepth = n }
}
