// Package rego generates a diagnostic-only Rego module from a policy's
// compiled shape (allow/deny tool-name glob patterns, the set of tools that
// carry a JSON-Schema, and an optional MTS label). The generated module is
// never used to make the real access-control decision -- internal/policy's
// Policy.evaluate is authoritative -- it exists so an operator can run OPA
// side-by-side and flag any divergence between the two (see opa.go).
package rego

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// PolicySpec is the input for Rego generation: a simplified mirror of
// internal/policy.Policy, using only exported primitives to avoid an
// import cycle.
type PolicySpec struct {
	// Name is the policy name.
	Name string

	// AllowPatterns and DenyPatterns are glob patterns over tool names.
	AllowPatterns []string
	DenyPatterns  []string

	// SchemaTools lists tools that carry a compiled argument schema. The
	// generated Rego cannot validate JSON-Schema itself; it only flags
	// whether a tool is constrained, for comparison against the Code field
	// of a Result ("E_TOOL_UNCONSTRAINED").
	SchemaTools []string

	// MTSLabel is the tenant-isolation label the policy requires, or "".
	MTSLabel string
}

const regoTemplate = `# Generated for policy {{.Name}}. Diagnostic use only: compare against
# the real Evaluate() decision, never enforce directly from this module.
package assaypolicy

import future.keywords.if
import future.keywords.in

default allow := false
default deny := false
default mts_allow := true
default constrained := false
default final_allow := false

{{range .DenyRules}}
deny if {
	glob.match("{{.}}", [], input.tool)
}
{{end}}

{{if .HasAllowlist}}
{{range .AllowRules}}
allow if {
	glob.match("{{.}}", [], input.tool)
}
{{end}}
{{else}}
allow := true
{{end}}

{{if ne .MTSLabel ""}}
mts_allow if {
	input.agent.mts_label == "{{.MTSLabel}}"
}
{{end}}

constrained if {
	input.tool in {{.SchemaToolsSet}}
}

final_allow if {
	allow
	not deny
	mts_allow
}

decision := {
	"allow": final_allow,
	"deny": deny,
	"mts": mts_allow,
	"constrained": constrained,
}
`

type templateData struct {
	Name           string
	AllowRules     []string
	DenyRules      []string
	HasAllowlist   bool
	MTSLabel       string
	SchemaToolsSet string
}

// Generate renders spec into a complete Rego module string.
func Generate(spec PolicySpec) (string, error) {
	tmpl, err := template.New("policy.rego").Parse(regoTemplate)
	if err != nil {
		return "", fmt.Errorf("rego: parse template: %w", err)
	}

	quoted := make([]string, len(spec.SchemaTools))
	for i, t := range spec.SchemaTools {
		quoted[i] = fmt.Sprintf("%q", t)
	}
	data := templateData{
		Name:           spec.Name,
		AllowRules:     spec.AllowPatterns,
		DenyRules:      spec.DenyPatterns,
		HasAllowlist:   len(spec.AllowPatterns) > 0,
		MTSLabel:       spec.MTSLabel,
		SchemaToolsSet: "{" + strings.Join(quoted, ", ") + "}",
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rego: execute template: %w", err)
	}
	return buf.String(), nil
}
