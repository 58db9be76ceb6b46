package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine evaluates tool-call requests against per-agent-type policies.
// The core entry point is Evaluate, which runs Policy.checkMTS followed by
// Policy.evaluate's five-step order, then applies the enforcement mode and
// emits an audit event.
//
// Usage:
//
//	engine := NewEngine(WithMode(Enforcing), WithAuditSink(sink))
//	engine.LoadPolicy("coding-assistant", compiled)
//	result, err := engine.Evaluate(ctx, agentCtx, "file.read", args)
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*Policy // agentType -> policy

	statesMu sync.Mutex
	states   map[string]*State // sessionID -> per-session rate-limit state

	audit AuditSink
	mode  EnforcementMode
}

// Option configures an Engine.
type Option func(*Engine)

// WithMode sets the enforcement mode.
func WithMode(mode EnforcementMode) Option {
	return func(e *Engine) { e.mode = mode }
}

// WithAuditSink sets the audit event sink.
func WithAuditSink(sink AuditSink) Option {
	return func(e *Engine) { e.audit = sink }
}

// NewEngine creates an Engine. Default: Permissive mode, no audit sink.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		policies: make(map[string]*Policy),
		states:   make(map[string]*State),
		mode:     Permissive,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks whether agent may call tool with args. args must already
// be decoded into plain Go values (e.g. via json.Unmarshal into
// interface{}).
//
// Evaluation order:
//
//  1. MTS tenant-isolation check (additive, only runs when the policy
//     declares an MTSLabel)
//  2. Policy.evaluate's five-step order (rate limit, deny, allow, schema,
//     unconstrained-mode fallback)
//
// The returned Decision has already had the engine's EnforcementMode
// applied: in Permissive mode a Deny is still audited but Evaluate returns
// Allow so the caller proceeds.
func (e *Engine) Evaluate(ctx context.Context, agent AgentContext, tool string, args interface{}) (Result, error) {
	requestID := generateRequestID()

	e.mu.RLock()
	policy, ok := e.policies[agent.AgentType]
	e.mu.RUnlock()
	if !ok {
		result := Result{Tool: tool, Decision: Deny, Code: "E_NO_POLICY", Reason: fmt.Sprintf("no policy loaded for agent type %q", agent.AgentType)}
		e.emitAudit(agent, result, requestID)
		result.Decision = e.applyMode(result.Decision)
		return result, nil
	}

	if ok, reason := policy.checkMTS(agent); !ok {
		result := Result{Tool: tool, Decision: Deny, Code: "E_MTS_VIOLATION", Reason: reason}
		e.emitAudit(agent, result, requestID)
		result.Decision = e.applyMode(result.Decision)
		return result, nil
	}

	state := e.sessionState(agent.SessionID, policy)
	result := policy.evaluate(state, tool, args)

	e.emitAudit(agent, result, requestID)
	result.Decision = e.applyMode(result.Decision)
	return result, nil
}

// sessionState returns the State for a session, creating one from the
// policy's limits on first use. State is keyed by policy name and
// SessionID, so all calls with an empty SessionID under one policy share a
// single State and its limits.
func (e *Engine) sessionState(sessionID string, policy *Policy) *State {
	key := policy.name + "\x00" + sessionID
	e.statesMu.Lock()
	defer e.statesMu.Unlock()
	s, ok := e.states[key]
	if !ok {
		s = NewState(policy.limits)
		e.states[key] = s
	}
	return s
}

// applyMode downgrades a Deny to Allow in Permissive mode; all other
// decisions pass through unchanged.
func (e *Engine) applyMode(d Decision) Decision {
	if e.mode == Permissive && d == Deny {
		return Allow
	}
	return d
}

func (e *Engine) emitAudit(agent AgentContext, result Result, requestID string) {
	if e.audit == nil {
		return
	}
	e.audit.Log(&AuditEvent{
		Timestamp: time.Now(),
		Agent:     agent,
		Tool:      result.Tool,
		Decision:  result.Decision,
		Code:      result.Code,
		Reason:    result.Reason,
		RequestID: requestID,
	})
}

// LoadPolicy adds or replaces the policy for an agent type. Any existing
// per-session state kept under the new policy's name is dropped so limits
// restart clean under the new policy.
func (e *Engine) LoadPolicy(agentType string, policy *Policy) {
	e.mu.Lock()
	e.policies[agentType] = policy
	e.mu.Unlock()

	e.statesMu.Lock()
	prefix := policy.name + "\x00"
	for key := range e.states {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(e.states, key)
		}
	}
	e.statesMu.Unlock()
}

// RemovePolicy removes the policy for an agent type.
func (e *Engine) RemovePolicy(agentType string) {
	e.mu.Lock()
	delete(e.policies, agentType)
	e.mu.Unlock()
}

// GetPolicy returns the policy loaded for an agent type, if any.
func (e *Engine) GetPolicy(agentType string) (*Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[agentType]
	return p, ok
}

// ListPolicies returns all agent types with a loaded policy.
func (e *Engine) ListPolicies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	types := make([]string, 0, len(e.policies))
	for t := range e.policies {
		types = append(types, t)
	}
	return types
}

// Mode returns the current enforcement mode.
func (e *Engine) Mode() EnforcementMode { return e.mode }

// SetMode changes the enforcement mode.
func (e *Engine) SetMode(mode EnforcementMode) { e.mode = mode }

func generateRequestID() string {
	return "req_" + uuid.NewString()
}
