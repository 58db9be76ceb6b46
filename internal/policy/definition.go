package policy

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// UnconstrainedMode selects what happens when a tool has no compiled
// schema: the last step of evaluate() (§4.11 step 5).
type UnconstrainedMode int

const (
	// UnconstrainedWarn allows the call but returns AllowWithWarning. Default.
	UnconstrainedWarn UnconstrainedMode = iota
	// UnconstrainedDeny blocks any tool call lacking a schema.
	UnconstrainedDeny
	// UnconstrainedAllow allows unconditionally, no warning.
	UnconstrainedAllow
)

func (m UnconstrainedMode) String() string {
	switch m {
	case UnconstrainedDeny:
		return "deny"
	case UnconstrainedAllow:
		return "allow"
	default:
		return "warn"
	}
}

// UnmarshalYAML accepts the three snake_case mode names; absent/empty
// defaults to Warn.
func (m *UnconstrainedMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	switch s {
	case "", "warn":
		*m = UnconstrainedWarn
	case "deny":
		*m = UnconstrainedDeny
	case "allow":
		*m = UnconstrainedAllow
	default:
		return fmt.Errorf("policy: invalid unconstrained_tools mode %q", s)
	}
	return nil
}

// ToolPolicy is the v2 allow/deny section, keyed under "tools" in the
// document. Legacy root-level allow/deny fold into this on load.
type ToolPolicy struct {
	Allow []string `yaml:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty"`
}

// EnforcementSettings configures step 5 of evaluate().
type EnforcementSettings struct {
	UnconstrainedTools UnconstrainedMode `yaml:"unconstrained_tools,omitempty"`
}

// Limits are the optional total-call caps checked at step 1 of evaluate().
// Nil fields mean "no limit".
type Limits struct {
	MaxRequestsTotal  *uint64 `yaml:"max_requests_total,omitempty"`
	MaxToolCallsTotal *uint64 `yaml:"max_tool_calls_total,omitempty"`
}

// ConstraintParam is a single v1 (deprecated) regex-style argument
// constraint: the argument must match Matches.
type ConstraintParam struct {
	Matches string `yaml:"matches,omitempty"`
}

// ConstraintRule is one v1 (deprecated) per-tool constraint rule, migrated
// into a JSON-Schema on load.
type ConstraintRule struct {
	Tool   string
	Params map[string]ConstraintParam
}

// ConstraintList accepts the v1 document's two legacy shapes for
// `constraints`: a list of {tool, params} rules, or a map of
// tool -> param -> (matches string | {matches: string}). Grounded on
// assay-core/src/mcp/policy.rs's ConstraintsCompat/InputParamConstraint
// untagged-enum deserializer.
type ConstraintList []ConstraintRule

// UnmarshalYAML implements the dual-shape decode.
func (c *ConstraintList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*c = nil
		return nil
	case yaml.SequenceNode:
		var list []ConstraintRule
		if err := value.Decode(&list); err != nil {
			return fmt.Errorf("policy: invalid constraints list: %w", err)
		}
		*c = list
		return nil
	case yaml.MappingNode:
		var raw map[string]map[string]yaml.Node
		if err := value.Decode(&raw); err != nil {
			return fmt.Errorf("policy: invalid constraints map: %w", err)
		}
		list := make([]ConstraintRule, 0, len(raw))
		for tool, params := range raw {
			rule := ConstraintRule{Tool: tool, Params: make(map[string]ConstraintParam, len(params))}
			for name, node := range params {
				var p ConstraintParam
				if node.Kind == yaml.ScalarNode {
					var s string
					if err := node.Decode(&s); err != nil {
						return fmt.Errorf("policy: invalid constraint param %q for tool %q: %w", name, tool, err)
					}
					p = ConstraintParam{Matches: s}
				} else if err := node.Decode(&p); err != nil {
					return fmt.Errorf("policy: invalid constraint param %q for tool %q: %w", name, tool, err)
				}
				rule.Params[name] = p
			}
			list = append(list, rule)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Tool < list[j].Tool })
		*c = list
		return nil
	default:
		return fmt.Errorf("policy: constraints must be a sequence or mapping")
	}
}

// Definition is a parsed, not-yet-compiled policy document: the shape a
// pack's tool-policy section arrives in from YAML, including both the
// current (v2) and deprecated (v1) shapes before normalization.
type Definition struct {
	Version string `yaml:"version,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Tools   ToolPolicy `yaml:"tools,omitempty"`

	// Legacy v1: root-level allow/deny, folded into Tools on load.
	Allow []string `yaml:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty"`

	// Schemas maps tool name to a raw JSON-Schema document (decoded from
	// YAML into plain Go values). The key "$defs" holds shared definitions
	// injected into every other schema at compile time.
	Schemas map[string]interface{} `yaml:"schemas,omitempty"`

	// Constraints is the deprecated v1 regex-constraint shape, migrated to
	// Schemas by migrateConstraintsToSchemas.
	Constraints ConstraintList `yaml:"constraints,omitempty"`

	Enforcement EnforcementSettings `yaml:"enforcement,omitempty"`
	Limits      *Limits             `yaml:"limits,omitempty"`

	// MTSLabel is the tenant-isolation label this policy requires of the
	// calling agent (empty disables the check).
	MTSLabel string `yaml:"mts_label,omitempty"`
}

// StrictDeprecationsEnv, when set to "1", makes ParseDefinition reject v1
// policy documents instead of migrating them.
const StrictDeprecationsEnv = "ASSAY_STRICT_DEPRECATIONS"

var deprecationWarnOnce sync.Once

// ParseDefinition decodes a YAML policy document and normalizes it: legacy
// root-level allow/deny fold into Tools, and v1 constraints migrate to
// JSON-Schemas. The one exception to "no global mutable state" in this
// codebase: a process-wide once-only deprecation notice, matching the
// original's single latched warning.
func ParseDefinition(content []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, fmt.Errorf("policy: parse definition: %w", err)
	}

	if def.isV1Format() {
		if os.Getenv(StrictDeprecationsEnv) == "1" {
			return nil, fmt.Errorf("policy: strict mode: v1 policy format (constraints) is not allowed")
		}
		warnDeprecatedV1Once()
	}

	def.normalizeLegacyShapes()
	if len(def.Constraints) > 0 {
		def.migrateConstraintsToSchemas()
	}

	return &def, nil
}

func (d *Definition) isV1Format() bool {
	return len(d.Constraints) > 0 || d.Version == "1.0"
}

// normalizeLegacyShapes folds root-level allow/deny into tools.allow/deny.
func (d *Definition) normalizeLegacyShapes() {
	if len(d.Allow) > 0 {
		d.Tools.Allow = append(append([]string{}, d.Tools.Allow...), d.Allow...)
		d.Allow = nil
	}
	if len(d.Deny) > 0 {
		d.Tools.Deny = append(append([]string{}, d.Tools.Deny...), d.Deny...)
		d.Deny = nil
	}
}

// migrateConstraintsToSchemas converts every v1 regex constraint rule into
// a minimal JSON-Schema (string type, pattern, required) and clears
// Constraints.
func (d *Definition) migrateConstraintsToSchemas() {
	if d.Schemas == nil {
		d.Schemas = map[string]interface{}{}
	}
	for _, c := range d.Constraints {
		d.Schemas[c.Tool] = constraintToSchema(c)
	}
	d.Constraints = nil
	if d.Version == "" || d.Version == "1.0" {
		d.Version = "2.0"
	}
}

func constraintToSchema(c ConstraintRule) map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string
	for name, param := range c.Params {
		if param.Matches == "" {
			continue
		}
		properties[name] = map[string]interface{}{
			"type":      "string",
			"pattern":   param.Matches,
			"minLength": 1,
		}
		required = append(required, name)
	}
	sort.Strings(required)
	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": true,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func warnDeprecatedV1Once() {
	deprecationWarnOnce.Do(func() {
		fmt.Fprintln(os.Stderr, "policy: deprecated v1 policy format detected (constraints:); migrate to tools.allow/deny + schemas")
	})
}
