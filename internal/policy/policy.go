package policy

import (
	"fmt"
)

// Policy is a compiled Definition: glob sets for allow/deny, compiled
// JSON-Schemas per tool, and the settings that govern unconstrained tools
// and rate limits. Construct with NewPolicy.
type Policy struct {
	name    string
	allow   *globSet
	deny    *globSet
	schemas compiledSchemas

	unconstrained UnconstrainedMode
	limits        *Limits
	mtsLabel      *MTSLabel
}

// NewPolicy compiles a parsed Definition into a Policy ready for
// evaluation.
func NewPolicy(def *Definition) (*Policy, error) {
	allow, err := compileGlobSet(def.Tools.Allow)
	if err != nil {
		return nil, err
	}
	deny, err := compileGlobSet(def.Tools.Deny)
	if err != nil {
		return nil, err
	}
	schemas, err := compileSchemas(def.Schemas)
	if err != nil {
		return nil, err
	}

	var mts *MTSLabel
	if def.MTSLabel != "" {
		mts, err = ParseMTSLabel(def.MTSLabel)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", def.Name, err)
		}
	}

	return &Policy{
		name:          def.Name,
		allow:         allow,
		deny:          deny,
		schemas:       schemas,
		unconstrained: def.Enforcement.UnconstrainedTools,
		limits:        def.Limits,
		mtsLabel:      mts,
	}, nil
}

// Name returns the policy's declared name.
func (p *Policy) Name() string { return p.name }

// HasAllowlist reports whether this policy declares any allow patterns.
// When true, tools not matching the allowlist are denied by default
// (allowlist semantics); when false, any tool not explicitly denied is
// permitted (denylist semantics).
func (p *Policy) HasAllowlist() bool {
	return !p.allow.empty()
}

// evaluate runs the five-step decision order against one tool call:
//
//  1. rate limits (State.allow)
//  2. deny-pattern match -> Deny
//  3. allow-pattern match, when an allowlist is declared -> not matching is Deny
//  4. schema lookup + validation, when the tool has a compiled schema
//  5. no schema found -> apply the policy's UnconstrainedMode
//
// args is the tool call's arguments already decoded into plain Go values
// (e.g. via json.Unmarshal into interface{}), as schema.Validate expects.
func (p *Policy) evaluate(state *State, tool string, args interface{}) Result {
	res := Result{Tool: tool}

	if state != nil && !state.allow() {
		res.Decision = Deny
		res.Code = "E_RATE_LIMIT"
		res.Reason = "rate limit exceeded"
		return res
	}

	if matched, pattern := p.deny.matches(tool); matched {
		res.Decision = Deny
		res.Code = "E_TOOL_DENIED"
		res.Reason = fmt.Sprintf("tool %q matches deny pattern %q", tool, pattern)
		return res
	}

	if p.HasAllowlist() {
		if matched, _ := p.allow.matches(tool); !matched {
			res.Decision = Deny
			res.Code = "E_TOOL_NOT_ALLOWED"
			res.Reason = fmt.Sprintf("tool %q does not match any allow pattern", tool)
			return res
		}
	}

	schema, hasSchema := p.schemas[tool]
	if hasSchema {
		violations := validateArgs(schema, args)
		if len(violations) > 0 {
			res.Decision = Deny
			res.Code = "E_ARG_SCHEMA"
			res.Reason = fmt.Sprintf("tool %q arguments failed schema validation", tool)
			res.Violations = violations
			return res
		}
		res.Decision = Allow
		return res
	}

	switch p.unconstrained {
	case UnconstrainedDeny:
		res.Decision = Deny
		res.Code = "E_TOOL_UNCONSTRAINED"
		res.Reason = fmt.Sprintf("tool %q has no schema and unconstrained_tools is deny", tool)
	case UnconstrainedAllow:
		res.Decision = Allow
	default: // UnconstrainedWarn
		res.Decision = AllowWithWarning
		res.Code = "E_TOOL_UNCONSTRAINED"
		res.Reason = fmt.Sprintf("tool %q has no schema; allowed with warning", tool)
	}
	return res
}

// checkMTS applies the additive tenant-isolation pre-check: if the policy
// declares an MTSLabel, the agent's own label must dominate it. A policy
// with no MTSLabel skips this check entirely, so packs that never mention
// MTS see exactly the five-step order above and nothing else.
func (p *Policy) checkMTS(agent AgentContext) (ok bool, reason string) {
	if p.mtsLabel == nil {
		return true, ""
	}
	agentLabel, err := ParseMTSLabel(agent.MTSLabel)
	if err != nil {
		return false, fmt.Sprintf("invalid agent MTS label %q: %v", agent.MTSLabel, err)
	}
	if !agentLabel.CanAccess(p.mtsLabel) {
		return false, fmt.Sprintf("agent label %s does not dominate policy label %s", agentLabel, p.mtsLabel)
	}
	return true, ""
}
