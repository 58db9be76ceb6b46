// Package policy implements the policy engine (C11): a single evaluate()
// entry point that checks rate limits, deny/allow tool-name patterns, and
// JSON-Schema argument validation, in that deterministic order. Grounded on
// the teacher's pkg/policy package (kept HOW: Engine/AgentContext/AuditSink/
// EnforcementMode shapes, the SELinux-AVC audit log framing) retargeted at
// original_source/crates/assay-core/src/mcp/policy.rs's WHAT (evaluate()'s
// five-step order, v1-to-v2 policy migration, PolicyDecision variants).
package policy

import "time"

// Decision is the outcome of evaluating one tool call against a policy.
type Decision int

const (
	// Deny blocks the tool call.
	Deny Decision = iota
	// Allow permits the tool call.
	Allow
	// AllowWithWarning permits the tool call but flags it: the tool had no
	// schema and the policy's unconstrained mode is Warn.
	AllowWithWarning
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "ALLOW"
	case AllowWithWarning:
		return "ALLOW_WITH_WARNING"
	case Deny:
		return "DENY"
	default:
		return "UNKNOWN"
	}
}

// EnforcementMode controls how the engine applies a Deny decision.
type EnforcementMode int

const (
	// Permissive logs denials but lets the call proceed (rollout/testing).
	Permissive EnforcementMode = iota
	// Enforcing actually blocks denied requests.
	Enforcing
)

func (m EnforcementMode) String() string {
	switch m {
	case Permissive:
		return "permissive"
	case Enforcing:
		return "enforcing"
	default:
		return "unknown"
	}
}

// Violation is one JSON-Schema validation failure, reported as an
// instance-location/message pair.
type Violation struct {
	Path    string
	Message string
}

// Result is the full outcome of Evaluate: the decision plus the
// machine-parseable reason code and human reason the decision event (C12)
// carries forward.
type Result struct {
	Tool       string
	Decision   Decision
	Code       string // "", "E_RATE_LIMIT", "E_TOOL_DENIED", "E_TOOL_NOT_ALLOWED", "E_ARG_SCHEMA", "E_TOOL_UNCONSTRAINED", "E_MTS_VIOLATION", "E_NO_POLICY"
	Reason     string
	Violations []Violation
}

// AgentContext identifies the caller making a tool-call attempt.
type AgentContext struct {
	AgentType string
	SandboxID string
	TenantID  string
	SessionID string
	MTSLabel  string
	PolicyRef string
}

// AuditEvent records one evaluated tool-call attempt for compliance.
type AuditEvent struct {
	Timestamp time.Time
	Agent     AgentContext
	Tool      string
	Decision  Decision
	Code      string
	Reason    string
	RequestID string
}
