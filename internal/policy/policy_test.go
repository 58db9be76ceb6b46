package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPolicy(t *testing.T, doc string) *Policy {
	t.Helper()
	def, err := ParseDefinition([]byte(doc))
	require.NoError(t, err)
	p, err := NewPolicy(def)
	require.NoError(t, err)
	return p
}

func TestEvaluateDenyPatternWins(t *testing.T) {
	p := mustPolicy(t, `
name: deny-wins
tools:
  allow: ["shell.*"]
  deny: ["shell.exec"]
`)
	res := p.evaluate(nil, "shell.exec", nil)
	assert.Equal(t, Deny, res.Decision)
	assert.Equal(t, "E_TOOL_DENIED", res.Code)
}

func TestEvaluateAllowlistExcludesUnlisted(t *testing.T) {
	p := mustPolicy(t, `
name: allowlist
tools:
  allow: ["file.read"]
`)
	res := p.evaluate(nil, "file.write", nil)
	assert.Equal(t, Deny, res.Decision)
	assert.Equal(t, "E_TOOL_NOT_ALLOWED", res.Code)
}

func TestEvaluateNoAllowlistMeansDenylistOnly(t *testing.T) {
	p := mustPolicy(t, `
name: denylist-only
tools:
  deny: ["shell.exec"]
`)
	res := p.evaluate(nil, "file.read", nil)
	assert.Equal(t, AllowWithWarning, res.Decision)
}

func TestEvaluateSchemaValidationPasses(t *testing.T) {
	p := mustPolicy(t, `
name: schema-pass
tools:
  allow: ["file.read"]
schemas:
  file.read:
    type: object
    properties:
      path: { type: string }
    required: [path]
`)
	res := p.evaluate(nil, "file.read", map[string]interface{}{"path": "/tmp/x"})
	assert.Equal(t, Allow, res.Decision)
	assert.Empty(t, res.Violations)
}

func TestEvaluateSchemaValidationFails(t *testing.T) {
	p := mustPolicy(t, `
name: schema-fail
tools:
  allow: ["file.read"]
schemas:
  file.read:
    type: object
    properties:
      path: { type: string }
    required: [path]
`)
	res := p.evaluate(nil, "file.read", map[string]interface{}{})
	assert.Equal(t, Deny, res.Decision)
	assert.Equal(t, "E_ARG_SCHEMA", res.Code)
	assert.NotEmpty(t, res.Violations)
}

func TestEvaluateUnconstrainedWarnDefault(t *testing.T) {
	p := mustPolicy(t, `
name: unconstrained-warn
tools:
  allow: ["file.read"]
`)
	res := p.evaluate(nil, "file.read", map[string]interface{}{"anything": true})
	assert.Equal(t, AllowWithWarning, res.Decision)
	assert.Equal(t, "E_TOOL_UNCONSTRAINED", res.Code)
}

func TestEvaluateUnconstrainedDenyMode(t *testing.T) {
	p := mustPolicy(t, `
name: unconstrained-deny
tools:
  allow: ["file.read"]
enforcement:
  unconstrained_tools: deny
`)
	res := p.evaluate(nil, "file.read", nil)
	assert.Equal(t, Deny, res.Decision)
	assert.Equal(t, "E_TOOL_UNCONSTRAINED", res.Code)
}

func TestEvaluateUnconstrainedAllowMode(t *testing.T) {
	p := mustPolicy(t, `
name: unconstrained-allow
tools:
  allow: ["file.read"]
enforcement:
  unconstrained_tools: allow
`)
	res := p.evaluate(nil, "file.read", nil)
	assert.Equal(t, Allow, res.Decision)
	assert.Empty(t, res.Code)
}

func TestEvaluateRateLimitExhausted(t *testing.T) {
	p := mustPolicy(t, `
name: rate-limited
tools:
  allow: ["file.read"]
enforcement:
  unconstrained_tools: allow
limits:
  max_tool_calls_total: 2
`)
	state := NewState(p.limits)

	res1 := p.evaluate(state, "file.read", nil)
	assert.Equal(t, Allow, res1.Decision)
	res2 := p.evaluate(state, "file.read", nil)
	assert.Equal(t, Allow, res2.Decision)
	res3 := p.evaluate(state, "file.read", nil)
	assert.Equal(t, Deny, res3.Decision)
	assert.Equal(t, "E_RATE_LIMIT", res3.Code)
}

func TestCheckMTSNoLabelAlwaysPasses(t *testing.T) {
	p := mustPolicy(t, `
name: no-mts
tools:
  allow: ["file.read"]
`)
	ok, reason := p.checkMTS(AgentContext{MTSLabel: ""})
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestCheckMTSViolation(t *testing.T) {
	p := mustPolicy(t, `
name: mts-strict
tools:
  allow: ["file.read"]
mts_label: "s0:c1,c2"
`)
	ok, reason := p.checkMTS(AgentContext{MTSLabel: "s0:c1"})
	assert.False(t, ok)
	assert.NotEmpty(t, reason)

	ok, _ = p.checkMTS(AgentContext{MTSLabel: "s0:c1,c2,c3"})
	assert.True(t, ok)
}
