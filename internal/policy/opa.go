// Diagnostic OPA evaluation. This mirrors a policy's allow/deny/MTS shape
// into a generated Rego module (internal/policy/rego) and evaluates it
// alongside Engine.Evaluate so an operator can compare the two: if OPA's
// verdict and the engine's decision disagree, that is a signal a policy
// has drifted from its Rego description, not an enforcement path of its
// own. Engine.Evaluate never calls into this evaluator.
package policy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	polrego "github.com/assay-run/assay/internal/policy/rego"
)

// OPAPolicy is one compiled, prepared Rego query for a policy.
type OPAPolicy struct {
	Name          string
	PreparedQuery rego.PreparedEvalQuery
	RegoModule    string
	CompiledAt    time.Time
}

// OPAEvaluator holds one OPAPolicy per agent type.
type OPAEvaluator struct {
	mu       sync.RWMutex
	policies map[string]*OPAPolicy
}

// NewOPAEvaluator returns an empty evaluator.
func NewOPAEvaluator() *OPAEvaluator {
	return &OPAEvaluator{policies: make(map[string]*OPAPolicy)}
}

// OPAInput is the JSON shape handed to the generated Rego module as `input`.
type OPAInput struct {
	Tool  string        `json:"tool"`
	Agent OPAAgentInput `json:"agent"`
}

// OPAAgentInput is the agent identity portion of OPAInput.
type OPAAgentInput struct {
	Type      string `json:"type"`
	MTSLabel  string `json:"mts_label"`
}

// OPAVerdict is the diagnostic outcome of evaluating a tool call through
// the generated Rego module.
type OPAVerdict struct {
	Allow       bool
	Deny        bool
	MTSAllow    bool
	Constrained bool
}

// LoadPolicy compiles spec into a Rego module and prepares it for
// evaluation under agentType.
func (e *OPAEvaluator) LoadPolicy(agentType string, spec polrego.PolicySpec) error {
	module, err := polrego.Generate(spec)
	if err != nil {
		return err
	}
	prepared, err := PrepareRegoQuery(module)
	if err != nil {
		return fmt.Errorf("policy: prepare diagnostic rego query for %q: %w", agentType, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[agentType] = &OPAPolicy{
		Name:          spec.Name,
		PreparedQuery: prepared,
		RegoModule:    module,
		CompiledAt:    time.Now(),
	}
	return nil
}

// Evaluate runs the diagnostic Rego module for agentType against tool.
// Returns (nil, false, nil) if no diagnostic policy is loaded for that
// agent type -- the caller should treat that as "nothing to compare
// against", not as a denial.
func (e *OPAEvaluator) Evaluate(ctx context.Context, agentType, mtsLabel, tool string) (*OPAVerdict, bool, error) {
	e.mu.RLock()
	policy, ok := e.policies[agentType]
	e.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	input := OPAInput{Tool: tool, Agent: OPAAgentInput{Type: agentType, MTSLabel: mtsLabel}}
	results, err := policy.PreparedQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, true, fmt.Errorf("policy: diagnostic rego eval: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, true, fmt.Errorf("policy: diagnostic rego query returned no result")
	}

	decision, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return nil, true, fmt.Errorf("policy: diagnostic rego query returned unexpected shape")
	}

	v := &OPAVerdict{}
	v.Allow, _ = decision["allow"].(bool)
	v.Deny, _ = decision["deny"].(bool)
	v.MTSAllow, _ = decision["mts"].(bool)
	v.Constrained, _ = decision["constrained"].(bool)
	return v, true, nil
}

// Agrees reports whether this diagnostic verdict's final allow/deny call
// matches the engine's real Decision. Used to surface drift, never to
// gate enforcement.
func (v *OPAVerdict) Agrees(d Decision) bool {
	opaAllows := v.Allow && !v.Deny && v.MTSAllow
	engineAllows := d == Allow || d == AllowWithWarning
	return opaAllows == engineAllows
}

// RemovePolicy drops the diagnostic policy for an agent type.
func (e *OPAEvaluator) RemovePolicy(agentType string) {
	e.mu.Lock()
	delete(e.policies, agentType)
	e.mu.Unlock()
}

// PrepareRegoQuery compiles a Rego module into a PreparedEvalQuery under
// the query path data.assaypolicy.decision.
func PrepareRegoQuery(module string) (rego.PreparedEvalQuery, error) {
	r := rego.New(
		rego.Query("data.assaypolicy.decision"),
		rego.Module("policy.rego", module),
	)
	prepared, err := r.PrepareForEval(context.Background())
	if err != nil {
		return rego.PreparedEvalQuery{}, fmt.Errorf("policy: prepare rego query: %w", err)
	}
	return prepared, nil
}

// ValidateRegoModule checks that a generated module is syntactically
// valid without registering it.
func ValidateRegoModule(module string) error {
	_, err := PrepareRegoQuery(module)
	return err
}
