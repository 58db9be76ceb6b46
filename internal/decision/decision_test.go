package decision

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []*Event
}

func (r *recordingEmitter) Emit(e *Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) last() *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

func TestGuardEmitAllow(t *testing.T) {
	emitter := &recordingEmitter{}
	guard := NewGuard(emitter, "assay", "call-1", "search_products")
	defer guard.Close()

	guard.EmitAllow(PMandateValid)

	last := emitter.last()
	require.NotNil(t, last)
	assert.Equal(t, Allow, last.Data.Decision)
	assert.Equal(t, PMandateValid, last.Data.ReasonCode)
}

func TestGuardEmitDeny(t *testing.T) {
	emitter := &recordingEmitter{}
	guard := NewGuard(emitter, "assay", "call-2", "delete_all")
	defer guard.Close()

	guard.EmitDeny(MExpired, "mandate expired")

	last := emitter.last()
	require.NotNil(t, last)
	assert.Equal(t, Deny, last.Data.Decision)
	assert.Equal(t, MExpired, last.Data.ReasonCode)
	require.NotNil(t, last.Data.Reason)
	assert.Equal(t, "mandate expired", *last.Data.Reason)
}

func TestGuardClosedWithoutEmitProducesInternalError(t *testing.T) {
	emitter := &recordingEmitter{}
	func() {
		guard := NewGuard(emitter, "assay", "call-3", "search_products")
		defer guard.Close()
		// simulate an early return / panic recovery path: no EmitX call
	}()

	last := emitter.last()
	require.NotNil(t, last)
	assert.Equal(t, Error, last.Data.Decision)
	assert.Equal(t, SInternalError, last.Data.ReasonCode)
}

func TestGuardOnlyEmitsOnce(t *testing.T) {
	emitter := &recordingEmitter{}
	guard := NewGuard(emitter, "assay", "call-4", "search_products")
	guard.EmitAllow(PMandateValid)
	guard.EmitDeny(MExpired, "should not override") // no-op, already emitted
	guard.Close()                                   // no-op, already emitted

	assert.Len(t, emitter.events, 1)
	assert.Equal(t, Allow, emitter.events[0].Data.Decision)
}

func TestEventIDsAreUnique(t *testing.T) {
	e1 := NewEvent("assay", "call-5", "tool")
	e2 := NewEvent("assay", "call-6", "tool")
	assert.NotEqual(t, e1.ID, e2.ID)
	assert.Equal(t, "assay.tool.decision", e1.Type)
	assert.Equal(t, "1.0", e1.SpecVersion)
}

func TestNullEmitterDiscardsEvents(t *testing.T) {
	guard := NewGuard(NullEmitter{}, "assay", "call-7", "tool")
	guard.EmitAllow(PMandateValid)
	guard.Close()
}
