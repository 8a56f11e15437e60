package handler

// Work is the user-supplied callback set bound to a Handler for its entire
// pooled → open → closed lifecycle. Every method runs on the handler's
// work-executor; OnClear runs in the same task as OnClose, right after it and
// before the handler is recycled.
type Work interface {
	// OnOpen fires once the transport has completed accept/connect setup.
	OnOpen(h *Handler)
	// OnRead fires after AsyncReadSome completes successfully, with the number
	// of bytes placed in h.ReadBuffer().
	OnRead(h *Handler, n int)
	// OnWrite fires after AsyncWrite completes successfully.
	OnWrite(h *Handler, n int)
	// OnClose fires exactly once per open handler, with the classified cause.
	OnClose(h *Handler, err error)
	// OnParent fires when a peer delivers an event addressed to this handler's
	// parent role (see Handler.PostParent).
	OnParent(h *Handler, event Event)
	// OnChild fires when a peer delivers an event addressed to this handler's
	// child role (see Handler.PostChild).
	OnChild(h *Handler, event Event)
	// OnClear fires synchronously when the handler is recycled back to its pool,
	// after OnClose, giving Work a chance to release any state it holds.
	OnClear(h *Handler)
}

// ParentSetter is an optional Work extension notified when SetParent assigns
// a parent peer. Clearing the peer during close does not notify it.
type ParentSetter interface {
	OnSetParent(h *Handler, parent Handle)
}

// ChildSetter is an optional Work extension notified when SetChild assigns a
// child peer. Clearing the peer during close does not notify it.
type ChildSetter interface {
	OnSetChild(h *Handler, child Handle)
}

// Allocator produces a fresh Work value for each handler drawn from a pool
// and is responsible for reclaiming resources a Work value owns.
type Allocator interface {
	New() Work
	Free(w Work)
}
