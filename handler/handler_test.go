package handler

import (
	"errors"
	"fmt"
	stdio "io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	basrverr "github.com/basio/basrv/errors"
	"github.com/basio/basrv/executor"
	"github.com/basio/basrv/transport"
)

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }

// fakeTransport is an in-memory Transport driven by test code pushing bytes
// or errors into channels, avoiding any real socket for unit-level handler tests.
type fakeTransport struct {
	mu        sync.Mutex
	closed    bool
	readData  chan []byte
	readErr   chan error
	writes    chan []byte
	writeErrs chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		readData:  make(chan []byte, 8),
		readErr:   make(chan error, 8),
		writes:    make(chan []byte, 8),
		writeErrs: make(chan error, 8),
	}
}

func (f *fakeTransport) AsyncReadSome(buf []byte, done transport.CompletionFunc) {
	go func() {
		select {
		case data := <-f.readData:
			n := copy(buf, data)
			done(n, nil)
		case err := <-f.readErr:
			done(0, err)
		}
	}()
}

func (f *fakeTransport) AsyncWrite(buf []byte, done transport.CompletionFunc) {
	cp := append([]byte(nil), buf...)
	go func() {
		select {
		case err := <-f.writeErrs:
			done(0, err)
		default:
			f.writes <- cp
			done(len(cp), nil)
		}
	}()
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) LocalAddr() net.Addr  { return fakeAddr("local") }
func (f *fakeTransport) RemoteAddr() net.Addr { return fakeAddr("remote") }

// countingWork records callback invocations for assertions.
type countingWork struct {
	opens, reads, writes, closes, clears int32
	lastCloseErr                         atomic.Value
	onReadFn                             func(h *Handler, n int)
	onParentFn                           func(h *Handler, e Event)
	onChildFn                            func(h *Handler, e Event)
}

func (w *countingWork) OnOpen(h *Handler) { atomic.AddInt32(&w.opens, 1) }
func (w *countingWork) OnRead(h *Handler, n int) {
	atomic.AddInt32(&w.reads, 1)
	if w.onReadFn != nil {
		w.onReadFn(h, n)
	}
}
func (w *countingWork) OnWrite(h *Handler, n int) { atomic.AddInt32(&w.writes, 1) }
func (w *countingWork) OnClose(h *Handler, err error) {
	atomic.AddInt32(&w.closes, 1)
	if err != nil {
		w.lastCloseErr.Store(err)
	}
}
func (w *countingWork) OnParent(h *Handler, e Event) {
	if w.onParentFn != nil {
		w.onParentFn(h, e)
	}
}
func (w *countingWork) OnChild(h *Handler, e Event) {
	if w.onChildFn != nil {
		w.onChildFn(h, e)
	}
}
func (w *countingWork) OnClear(h *Handler) { atomic.AddInt32(&w.clears, 1) }

type staticAllocator struct {
	w *countingWork
}

func (a staticAllocator) New() Work  { return a.w }
func (a staticAllocator) Free(Work) {}

func newTestPool(t *testing.T, w *countingWork) (*Pool, *executor.Executor, *executor.Executor) {
	t.Helper()
	io := executor.New(0, 32)
	io.Start()
	work := executor.New(1, 32)
	work.Start()
	t.Cleanup(func() {
		io.Stop(false)
		io.Join()
		work.Stop(false)
		work.Join()
	})
	p := NewPool(Config{
		Capacity:        4,
		ReadBufferSize:  64,
		WriteBufferSize: 64,
		Allocator:       staticAllocator{w: w},
	})
	return p, io, work
}

func TestHandlerOpenFiresOnOpenOnce(t *testing.T) {
	w := &countingWork{}
	p, io, work := newTestPool(t, w)
	tr := newFakeTransport()

	h, err := p.Get(tr, io, work)
	require.NoError(t, err)

	io.Post(h.Open)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.opens) == 1 }, time.Second, time.Millisecond)
}

func TestHandlerReadWriteRoundTrip(t *testing.T) {
	w := &countingWork{}
	p, io, work := newTestPool(t, w)
	tr := newFakeTransport()

	h, err := p.Get(tr, io, work)
	require.NoError(t, err)
	io.Post(h.Open)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.opens) == 1 }, time.Second, time.Millisecond)

	io.Post(h.AsyncReadSome)
	tr.readData <- []byte("hello")

	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.reads) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "hello", string(h.ReadBuffer()[:5]))

	copy(h.WriteBuffer(), "world")
	io.Post(func() { h.AsyncWrite(5) })

	written := <-tr.writes
	require.Equal(t, "world", string(written))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.writes) == 1 }, time.Second, time.Millisecond)
}

func TestHandlerCloseIsIdempotentAndRecyclesToPool(t *testing.T) {
	w := &countingWork{}
	p, io, work := newTestPool(t, w)
	tr := newFakeTransport()

	h, err := p.Get(tr, io, work)
	require.NoError(t, err)
	io.Post(h.Open)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.opens) == 1 }, time.Second, time.Millisecond)

	h.Close()
	h.Close()
	h.CloseWithError(errors.New("ignored: close already ran"))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.closes) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.clears) == 1 }, time.Second, time.Millisecond)
	require.True(t, tr.isClosed())
	require.Eventually(t, func() bool { return p.Load() == 0 }, time.Second, time.Millisecond)
}

func TestHandlerReadErrorClassifiesEOF(t *testing.T) {
	w := &countingWork{}
	p, io, work := newTestPool(t, w)
	tr := newFakeTransport()

	h, err := p.Get(tr, io, work)
	require.NoError(t, err)
	io.Post(h.Open)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.opens) == 1 }, time.Second, time.Millisecond)

	io.Post(h.AsyncReadSome)
	// A wrapped io.EOF, not the bare sentinel, to prove classification uses
	// errors.Is rather than comparing error strings.
	tr.readErr <- fmt.Errorf("conn read: %w", stdio.EOF)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.closes) == 1 }, time.Second, time.Millisecond)
	closeErr := h.CloseError()
	require.True(t, basrverr.IsOK(closeErr))
}

func TestHandlerTimeoutClosesAfterInactivity(t *testing.T) {
	w := &countingWork{}
	io := executor.New(0, 32)
	io.Start()
	work := executor.New(1, 32)
	work.Start()
	t.Cleanup(func() {
		io.Stop(false)
		io.Join()
		work.Stop(false)
		work.Join()
	})
	p := NewPool(Config{
		Capacity:        2,
		ReadBufferSize:  16,
		WriteBufferSize: 16,
		Timeout:         20 * time.Millisecond,
		Allocator:       staticAllocator{w: w},
	})
	tr := newFakeTransport()
	h, err := p.Get(tr, io, work)
	require.NoError(t, err)
	io.Post(h.Open)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.closes) == 1 }, time.Second, time.Millisecond)
	closeErr := h.CloseError()
	var e *basrverr.Error
	require.ErrorAs(t, closeErr, &e)
	require.Equal(t, basrverr.KindTimeout, e.Kind)
}

func TestHandlerZeroTimeoutDisablesTimer(t *testing.T) {
	w := &countingWork{}
	io := executor.New(0, 32)
	io.Start()
	work := executor.New(1, 32)
	work.Start()
	t.Cleanup(func() {
		io.Stop(false)
		io.Join()
		work.Stop(false)
		work.Join()
	})
	p := NewPool(Config{
		Capacity:        2,
		ReadBufferSize:  16,
		WriteBufferSize: 16,
		Timeout:         0,
		Allocator:       staticAllocator{w: w},
	})
	tr := newFakeTransport()
	h, err := p.Get(tr, io, work)
	require.NoError(t, err)
	io.Post(h.Open)

	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.opens) == 1 }, time.Second, time.Millisecond)
	// With no timeout configured the handler must stay open indefinitely;
	// a short wait with no close is the only way to observe an absence.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(0), atomic.LoadInt32(&w.closes))
}

func TestPoolExhaustionReturnsError(t *testing.T) {
	w := &countingWork{}
	io := executor.New(0, 8)
	io.Start()
	work := executor.New(1, 8)
	work.Start()
	t.Cleanup(func() {
		io.Stop(false)
		io.Join()
		work.Stop(false)
		work.Join()
	})
	p := NewPool(Config{Capacity: 1, ReadBufferSize: 8, WriteBufferSize: 8, Allocator: staticAllocator{w: w}})

	_, err := p.Get(newFakeTransport(), io, work)
	require.NoError(t, err)

	_, err = p.Get(newFakeTransport(), io, work)
	require.ErrorIs(t, err, basrverr.ErrPoolExhausted)
}

func TestHandleResolveFailsAfterRecycle(t *testing.T) {
	w := &countingWork{}
	p, io, work := newTestPool(t, w)
	tr := newFakeTransport()

	h, err := p.Get(tr, io, work)
	require.NoError(t, err)
	hdl := h.Handle()

	io.Post(h.Open)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&w.opens) == 1 }, time.Second, time.Millisecond)

	h.Close()
	require.Eventually(t, func() bool { return p.Load() == 0 }, time.Second, time.Millisecond)

	_, ok := hdl.Resolve()
	require.False(t, ok, "a stale handle must not resolve after its slot recycles")
}
