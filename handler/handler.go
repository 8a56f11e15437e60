// Package handler implements the per-connection service handler: the state
// machine, buffers, and paired-handler event protocol that sit between a
// Transport and user Work callbacks.
package handler

import (
	stderrors "errors"
	"io"
	"sync"
	"time"

	"github.com/basio/basrv/errors"
	"github.com/basio/basrv/executor"
	"github.com/basio/basrv/logging"
	"github.com/basio/basrv/transport"
)

// Status is the handler's lifecycle state.
type Status int32

const (
	// StatusPooled means the handler sits in the free list, unused.
	StatusPooled Status = iota
	// StatusOpening means Get has drawn it and Open has not yet been called.
	StatusOpening
	// StatusOpen means it is actively serving a connection.
	StatusOpen
	// StatusClosing means Close has been invoked and the close protocol is
	// running; further AsyncReadSome/AsyncWrite calls are rejected.
	StatusClosing
	// StatusClosed means the close protocol has finished and the handler is
	// about to be (or has been) recycled.
	StatusClosed
)

// Handler binds one Transport, one Work value, and a fixed pair of read/write
// buffers into the object the design calls the service handler. All mutation
// of Handler state happens on ioExec; Work callbacks run on workExec.
type Handler struct {
	pool  *Pool
	index int
	gen   uint64

	transport transport.Transport
	work      Work

	readBuf  []byte
	writeBuf []byte

	ioExec   *executor.Executor
	workExec *executor.Executor

	timer   *time.Timer
	timeout time.Duration

	mu       sync.Mutex
	status   Status
	parent   Handle
	child    Handle
	firstErr error
	closeOnce sync.Once
}

// Status returns the handler's current lifecycle state.
func (h *Handler) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Handle returns a generation-stamped weak reference to this handler, safe to
// store past this handler's eventual recycling.
func (h *Handler) Handle() Handle {
	return Handle{pool: h.pool, index: h.index, generation: h.gen, valid: true}
}

// ReadBuffer exposes the fixed-capacity read buffer backing the last
// completed AsyncReadSome, sized per the pool's ReadBufferSize.
func (h *Handler) ReadBuffer() []byte { return h.readBuf }

// WriteBuffer exposes the fixed-capacity write buffer, for callers that stage
// bytes into it before calling AsyncWrite.
func (h *Handler) WriteBuffer() []byte { return h.writeBuf }

// Open transitions a freshly drawn handler from opening to open and fires
// OnOpen on the work-executor, arming the idle timer if configured. Called
// once by whoever drew the handler from the pool, after wiring its transport.
func (h *Handler) Open() {
	h.mu.Lock()
	h.status = StatusOpen
	h.armTimerLocked()
	h.mu.Unlock()
	h.workExec.Post(func() {
		h.work.OnOpen(h)
	})
}

func (h *Handler) armTimerLocked() {
	if h.timeout <= 0 {
		return
	}
	h.timer = time.AfterFunc(h.timeout, func() {
		h.CloseWithError(errors.New(errors.KindTimeout, nil))
	})
}

func (h *Handler) resetTimerLocked() {
	if h.timer != nil {
		h.timer.Reset(h.timeout)
	}
}

// AsyncReadSome starts a read into the handler's read buffer. done fires on
// the io-executor once the transport call completes; the handler then posts
// OnRead onto the work-executor. Does nothing if the handler is not open.
func (h *Handler) AsyncReadSome() {
	h.mu.Lock()
	if h.status != StatusOpen {
		h.mu.Unlock()
		return
	}
	tr := h.transport
	buf := h.readBuf
	h.mu.Unlock()

	tr.AsyncReadSome(buf, func(n int, err error) {
		h.ioExec.Post(func() { h.onReadComplete(n, err) })
	})
}

func (h *Handler) onReadComplete(n int, err error) {
	h.mu.Lock()
	if h.status != StatusOpen {
		h.mu.Unlock()
		return
	}
	h.resetTimerLocked()
	h.mu.Unlock()

	if err != nil {
		h.CloseWithError(classifyIOErr(err))
		return
	}
	h.workExec.Post(func() {
		h.work.OnRead(h, n)
	})
}

// AsyncWrite starts a write of buf[:n] from the handler's write buffer.
func (h *Handler) AsyncWrite(n int) {
	h.mu.Lock()
	if h.status != StatusOpen {
		h.mu.Unlock()
		return
	}
	tr := h.transport
	buf := h.writeBuf[:n]
	h.mu.Unlock()

	tr.AsyncWrite(buf, func(n int, err error) {
		h.ioExec.Post(func() { h.onWriteComplete(n, err) })
	})
}

func (h *Handler) onWriteComplete(n int, err error) {
	h.mu.Lock()
	if h.status != StatusOpen {
		h.mu.Unlock()
		return
	}
	h.resetTimerLocked()
	h.mu.Unlock()

	if err != nil {
		h.CloseWithError(classifyIOErr(err))
		return
	}
	h.workExec.Post(func() {
		h.work.OnWrite(h, n)
	})
}

func classifyIOErr(err error) error {
	if stderrors.Is(err, io.EOF) {
		return errors.New(errors.KindEOF, nil)
	}
	return errors.New(errors.KindTransport, err)
}

// Close closes the handler with a nil (clean) cause.
func (h *Handler) Close() {
	h.CloseWithError(nil)
}

// CloseWithError runs the six-step close protocol exactly once: mark closing,
// cancel the timer, shut down the transport, clear the peer references and
// notify those peers, invoke OnClose, then OnClear and recycle to the pool.
func (h *Handler) CloseWithError(cause error) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		if h.status == StatusPooled {
			h.mu.Unlock()
			return
		}
		h.status = StatusClosing
		if h.timer != nil {
			h.timer.Stop()
		}
		tr := h.transport
		h.mu.Unlock()

		if tr != nil {
			if err := tr.Close(); err != nil {
				logging.Debugf("handler: transport close error: %v", err)
			}
		}

		h.notifyPeersAndClear()

		h.mu.Lock()
		h.status = StatusClosed
		h.firstErr = cause
		h.mu.Unlock()

		h.workExec.Post(func() {
			h.work.OnClose(h, cause)
			h.work.OnClear(h)
			h.pool.put(h)
		})
	})
}

// notifyPeersAndClear implements step 4 of the close protocol: if this
// handler still has a parent reference, that peer is told (via its own
// PostChild, so it observes EventChildClose) that its child is closing; if it
// still has a child reference, that peer is told (via its own PostParent, so
// it observes EventParentClose) that its parent is closing. Either
// notification is silently dropped if the peer has already recycled.
func (h *Handler) notifyPeersAndClear() {
	h.mu.Lock()
	parent := h.parent
	child := h.child
	h.parent = Handle{}
	h.child = Handle{}
	h.mu.Unlock()

	if parent.IsSet() {
		if peer, ok := parent.Resolve(); ok {
			peer.PostChild(Event{Kind: EventChildClose})
		}
	}
	if child.IsSet() {
		if peer, ok := child.Resolve(); ok {
			peer.PostParent(Event{Kind: EventParentClose})
		}
	}
}

// SetParent assigns this handler's parent peer reference and notifies an
// optional ParentSetter Work implementation.
func (h *Handler) SetParent(parent Handle) {
	h.mu.Lock()
	h.parent = parent
	work := h.work
	h.mu.Unlock()
	if ps, ok := work.(ParentSetter); ok {
		ps.OnSetParent(h, parent)
	}
}

// SetChild assigns this handler's child peer reference and notifies an
// optional ChildSetter Work implementation.
func (h *Handler) SetChild(child Handle) {
	h.mu.Lock()
	h.child = child
	work := h.work
	h.mu.Unlock()
	if cs, ok := work.(ChildSetter); ok {
		cs.OnSetChild(h, child)
	}
}

// Parent resolves the current parent peer, if any.
func (h *Handler) Parent() (*Handler, bool) {
	h.mu.Lock()
	p := h.parent
	h.mu.Unlock()
	if !p.IsSet() {
		return nil, false
	}
	return p.Resolve()
}

// Child resolves the current child peer, if any.
func (h *Handler) Child() (*Handler, bool) {
	h.mu.Lock()
	c := h.child
	h.mu.Unlock()
	if !c.IsSet() {
		return nil, false
	}
	return c.Resolve()
}

// PostParent requires that this handler itself has a parent reference set
// (i.e. it is currently paired as somebody's child); it then asynchronously
// invokes this handler's own OnParent callback on its work-executor. Callers
// reach this method through a resolved Handle to the intended recipient, not
// on themselves: to tell your child something, resolve h.Child() and call
// PostParent on the result.
func (h *Handler) PostParent(event Event) {
	h.mu.Lock()
	open := h.status == StatusOpen || h.status == StatusOpening
	hasParent := h.parent.IsSet()
	h.mu.Unlock()
	if !open || !hasParent {
		return
	}
	h.workExec.Post(func() {
		h.work.OnParent(h, event)
	})
}

// PostChild requires that this handler itself has a child reference set (i.e.
// it is currently paired as somebody's parent); it then asynchronously
// invokes this handler's own OnChild callback on its work-executor. To tell
// your parent something, resolve h.Parent() and call PostChild on the result.
func (h *Handler) PostChild(event Event) {
	h.mu.Lock()
	open := h.status == StatusOpen || h.status == StatusOpening
	hasChild := h.child.IsSet()
	h.mu.Unlock()
	if !open || !hasChild {
		return
	}
	h.workExec.Post(func() {
		h.work.OnChild(h, event)
	})
}

// NotifyParent resolves this handler's parent peer and, if live, posts event
// to it via the peer's PostChild — the idiom used to tell your parent about
// something concerning you (its child).
func (h *Handler) NotifyParent(event Event) {
	if peer, ok := h.Parent(); ok {
		peer.PostChild(event)
	}
}

// NotifyChild resolves this handler's child peer and, if live, posts event to
// it via the peer's PostParent — the idiom used to tell your child about
// something concerning you (its parent).
func (h *Handler) NotifyChild(event Event) {
	if peer, ok := h.Child(); ok {
		peer.PostParent(event)
	}
}

// CloseError returns the cause recorded by the close protocol, or nil if the
// handler has not closed yet.
func (h *Handler) CloseError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.firstErr
}

// IOExecutor returns the executor this handler's transport I/O is pinned to.
func (h *Handler) IOExecutor() *executor.Executor { return h.ioExec }

// WorkExecutor returns the executor this handler's Work callbacks run on.
func (h *Handler) WorkExecutor() *executor.Executor { return h.workExec }
