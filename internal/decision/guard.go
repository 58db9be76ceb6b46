package decision

import "sync"

// Guard stages a decision event for one (source, tool_call_id, tool)
// tool-call attempt and guarantees exactly one event is emitted.
//
// Rust's original used Drop: a guard dropped without an explicit
// emit_allow/emit_deny/emit_error emitted an S_INTERNAL_ERROR event from
// its destructor. Go has no destructors, so the equivalent discipline is:
// callers MUST `defer guard.Close()` immediately after construction; Close
// is a one-shot safety net that emits the staged not-finalized event only
// if none of Allow/Deny/Error already ran.
type Guard struct {
	mu      sync.Mutex
	emitter Emitter
	event   *Event
	emitted bool
}

// NewGuard constructs a guard and stages its default (Error/
// S_INTERNAL_ERROR) event. Callers must defer Close().
func NewGuard(emitter Emitter, source, toolCallID, tool string) *Guard {
	return &Guard{emitter: emitter, event: NewEvent(source, toolCallID, tool)}
}

// SetRequestID stages the JSON-RPC request id on the pending event.
func (g *Guard) SetRequestID(id interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.event != nil {
		g.event.SetRequestID(id)
	}
}

// SetMandateInfo stages mandate consumption linkage on the pending event.
func (g *Guard) SetMandateInfo(mandateID, useID string, useCount uint32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.event != nil {
		g.event.SetMandateInfo(mandateID, useID, useCount)
	}
}

// SetMandateMatches stages mandate match flags on the pending event.
func (g *Guard) SetMandateMatches(scopeMatch, kindMatch, txRefMatch *bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.event != nil {
		g.event.SetMandateMatches(scopeMatch, kindMatch, txRefMatch)
	}
}

// SetLatencies stages the authz/store latency breakdown on the pending
// event.
func (g *Guard) SetLatencies(authzMS, storeMS uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.event != nil {
		g.event.SetLatencies(authzMS, storeMS)
	}
}

// EmitAllow finalizes and emits the event as Allow. Only the first of
// EmitAllow/EmitDeny/EmitError/Close to run on a given guard has effect.
func (g *Guard) EmitAllow(reasonCode string) {
	g.finalize(func(e *Event) { e.SetAllow(reasonCode) })
}

// EmitDeny finalizes and emits the event as Deny.
func (g *Guard) EmitDeny(reasonCode, reason string) {
	g.finalize(func(e *Event) { e.SetDeny(reasonCode, reason) })
}

// EmitError finalizes and emits the event as Error.
func (g *Guard) EmitError(reasonCode, reason string) {
	g.finalize(func(e *Event) { e.SetError(reasonCode, reason) })
}

// Close is the safety net: call it via `defer guard.Close()` right after
// construction. If the guard was already finalized by one of the Emit*
// methods, Close is a no-op; otherwise it emits the staged
// S_INTERNAL_ERROR event, matching the Drop-time fallback of the original.
func (g *Guard) Close() {
	g.finalize(nil)
}

func (g *Guard) finalize(apply func(*Event)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.emitted {
		return
	}
	g.emitted = true
	if apply != nil {
		apply(g.event)
	}
	g.emitter.Emit(g.event)
}
