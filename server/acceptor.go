package server

import (
	stderrors "errors"
	"net"

	"github.com/basio/basrv/errors"
	"github.com/basio/basrv/executor"
	"github.com/basio/basrv/handler"
	"github.com/basio/basrv/logging"
	"github.com/basio/basrv/transport"
)

// acceptor binds one listener to one accept-executor. The design fixes the
// accept pool's size, so each acceptor gets a dedicated SO_REUSEPORT listener
// on the same address rather than sharing one listener across executors.
type acceptor struct {
	ln       transport.Acceptor
	acceptEx *executor.Executor
	ioPool   *executor.FixedPool
	workPool *executor.ElasticPool
	handlers *handler.Pool
}

func newAcceptor(address string, acceptEx *executor.Executor, ioPool *executor.FixedPool, workPool *executor.ElasticPool, handlers *handler.Pool) (*acceptor, error) {
	ln, err := transport.NewTCPAcceptor(address)
	if err != nil {
		return nil, err
	}
	return &acceptor{ln: ln, acceptEx: acceptEx, ioPool: ioPool, workPool: workPool, handlers: handlers}, nil
}

// runOnExecutor posts acceptLoop onto the acceptor's own accept-executor and
// blocks until it returns, so the blocking accept loop actually occupies
// that executor's goroutine rather than a bare goroutine started outside the
// executor abstraction. The accept-executor must already be running (its
// pool's Start must have been called) or Post fails and this returns
// immediately.
func (a *acceptor) runOnExecutor() error {
	result := make(chan error, 1)
	if !a.acceptEx.Post(func() { result <- a.acceptLoop() }) {
		return errors.New(errors.KindConfig, errors.ErrServerShutdown)
	}
	return <-result
}

// acceptLoop blocks accepting connections until the listener closes, handing
// each accepted transport to a freshly drawn handler bound to a round-robin
// I/O-executor and a load-aware work-executor. Returns nil on a clean
// shutdown-triggered listener close.
func (a *acceptor) acceptLoop() error {
	for {
		tr, err := a.ln.AsyncAccept()
		if err != nil {
			if stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			logging.Warnf("acceptor: accept error: %v", err)
			return errors.New(errors.KindTransport, err)
		}
		a.dispatch(tr)
	}
}

func (a *acceptor) dispatch(tr transport.Transport) {
	ioExec := a.ioPool.Next()
	workExec := a.workPool.NextLoaded(a.handlers.Load())
	h, err := a.handlers.Get(tr, ioExec, workExec)
	if err != nil {
		logging.Warnf("acceptor: handler pool exhausted, refusing connection from %v", tr.RemoteAddr())
		_ = tr.Close()
		return
	}
	ioExec.Post(func() {
		h.Open()
	})
}

func (a *acceptor) close() error {
	return a.ln.Close()
}
