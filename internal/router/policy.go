// Package router implements the tool-call interception server: a gRPC
// front door that evaluates each incoming tool call against the policy
// engine, emits a decision event (C12) for every attempt, and only then
// dispatches to the sandboxed ToolExecutor.
//
// Adapted from the teacher's pkg/router package. The teacher's
// RouterPolicyIntegration carried PolicyConfig knobs (CacheTTL, UseOPA,
// EnableController, MetricsAddr, HealthProbeAddr) for an internal
// decision cache and an in-process controller-runtime manager that
// internal/policy.Engine and internal/controller no longer need the
// router to own: the engine has no cache/OPA toggle, and the Pack
// controller is started independently by cmd/assay. What's left is the
// part the router still does itself: normalize a tool name, call
// Evaluate, and expose the engine for loading/removing compiled packs.
package router

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/assay-run/assay/internal/policy"
)

// PolicyConfig configures a RouterPolicyIntegration.
type PolicyConfig struct {
	// Mode is the enforcement mode new engines are created with when no
	// engine is supplied directly via NewRouterPolicyIntegrationWithEngine.
	Mode policy.EnforcementMode
	// AuditSink receives every evaluated decision, in addition to the
	// per-call decision event emitted through internal/decision.
	AuditSink policy.AuditSink
}

// RouterPolicyIntegration wraps a policy.Engine with the request-shape
// normalization the gRPC surface needs: callers speak in whatever
// casing their tool names use, the engine wants canonical
// "category.action" dot notation.
type RouterPolicyIntegration struct {
	engine *policy.Engine
}

// NewRouterPolicyIntegration builds a fresh engine from config.
func NewRouterPolicyIntegration(config PolicyConfig) *RouterPolicyIntegration {
	opts := []policy.Option{policy.WithMode(config.Mode)}
	if config.AuditSink != nil {
		opts = append(opts, policy.WithAuditSink(config.AuditSink))
	}
	return &RouterPolicyIntegration{engine: policy.NewEngine(opts...)}
}

// NewRouterPolicyIntegrationWithEngine wraps an already-constructed
// engine, e.g. one the Pack controller also loads policies into.
func NewRouterPolicyIntegrationWithEngine(engine *policy.Engine) *RouterPolicyIntegration {
	return &RouterPolicyIntegration{engine: engine}
}

// Evaluate normalizes toolName and evaluates it against agent's loaded policy.
func (r *RouterPolicyIntegration) Evaluate(ctx context.Context, agent policy.AgentContext, toolName string, args interface{}) (policy.Result, error) {
	return r.engine.Evaluate(ctx, agent, normalizeToolName(toolName), args)
}

// LoadPolicy installs a compiled policy for agentType.
func (r *RouterPolicyIntegration) LoadPolicy(agentType string, p *policy.Policy) {
	r.engine.LoadPolicy(agentType, p)
}

// RemovePolicy uninstalls the compiled policy for agentType.
func (r *RouterPolicyIntegration) RemovePolicy(agentType string) {
	r.engine.RemovePolicy(agentType)
}

// Engine returns the underlying policy engine.
func (r *RouterPolicyIntegration) Engine() *policy.Engine { return r.engine }

// Mode returns the engine's current enforcement mode.
func (r *RouterPolicyIntegration) Mode() policy.EnforcementMode { return r.engine.Mode() }

// SetMode changes the engine's enforcement mode.
func (r *RouterPolicyIntegration) SetMode(mode policy.EnforcementMode) { r.engine.SetMode(mode) }

var (
	camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	nonAlnum      = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// normalizeToolName converts CamelCase or snake_case tool names (e.g.
// "ReadFile", "read_file") to the engine's canonical dot notation
// ("read.file"); an input that already contains a dot is only
// lower-cased.
func normalizeToolName(name string) string {
	if strings.Contains(name, ".") {
		return strings.ToLower(name)
	}
	spaced := camelBoundary.ReplaceAllString(name, "$1.$2")
	parts := nonAlnum.Split(spaced, -1)
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, strings.ToLower(p))
		}
	}
	if len(kept) == 0 {
		return strings.ToLower(name)
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return strings.Join(kept[:len(kept)-1], "") + "." + kept[len(kept)-1]
}

// ErrUnknownAgentType is returned when a request carries no resolvable agent context.
var ErrUnknownAgentType = fmt.Errorf("router: request carries no agent type")
