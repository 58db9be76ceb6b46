// Package packs implements the pack execution engine (C7): pack definitions
// loaded from YAML, their checks run against an evidence bundle, and the
// collision policy that governs multiple packs defining the same rule.
// Grounded on
// original_source/crates/assay-evidence/src/lint/packs/{schema,checks,executor}.rs.
package packs

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind determines a pack's collision policy and whether a disclaimer is
// mandatory.
type Kind string

const (
	KindCompliance Kind = "compliance"
	KindSecurity   Kind = "security"
	KindQuality    Kind = "quality"
)

// Severity is a rule's finding severity.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Priority orders severities for truncation: lowest first.
func (s Severity) Priority() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	default:
		return 0
	}
}

// Requirements constrains which assay versions a pack is compatible with.
type Requirements struct {
	AssayMinVersion       string `yaml:"assay_min_version" json:"assay_min_version"`
	EvidenceSchemaVersion string `yaml:"evidence_schema_version,omitempty" json:"evidence_schema_version,omitempty"`
}

// Rule is one check within a pack.
type Rule struct {
	ID           string         `yaml:"id" json:"id"`
	Severity     Severity       `yaml:"severity" json:"severity"`
	Description  string         `yaml:"description" json:"description"`
	ArticleRef   string         `yaml:"article_ref,omitempty" json:"article_ref,omitempty"`
	HelpMarkdown string         `yaml:"help_markdown,omitempty" json:"help_markdown,omitempty"`
	Check        CheckDefinition `yaml:"check" json:"check"`
}

// CanonicalID is "{pack_name}@{pack_version}:{rule_id}".
func (r Rule) CanonicalID(packName, packVersion string) string {
	return fmt.Sprintf("%s@%s:%s", packName, packVersion, r.ID)
}

// Validate checks structural invariants not expressible in the YAML schema
// alone.
func (r Rule) Validate(packName string) error {
	if r.ID == "" {
		return fmt.Errorf("packs: pack %q has a rule with empty id", packName)
	}
	return r.Check.Validate(packName, r.ID)
}

// Definition is a pack as loaded from YAML.
type Definition struct {
	Name        string       `yaml:"name" json:"name"`
	Version     string       `yaml:"version" json:"version"`
	Kind        Kind         `yaml:"kind" json:"kind"`
	Description string       `yaml:"description" json:"description"`
	Author      string       `yaml:"author" json:"author"`
	License     string       `yaml:"license" json:"license"`
	SourceURL   string       `yaml:"source_url,omitempty" json:"source_url,omitempty"`
	Disclaimer  string       `yaml:"disclaimer,omitempty" json:"disclaimer,omitempty"`
	Requires    Requirements `yaml:"requires" json:"requires"`
	Rules       []Rule       `yaml:"rules" json:"rules"`
}

// ParseDefinition decodes a pack YAML document.
func ParseDefinition(content []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, fmt.Errorf("packs: invalid pack yaml: %w", err)
	}
	return &def, nil
}

// Validate enforces the pack-level invariants: compliance packs must carry
// a disclaimer, the pack name must be a valid identifier, and rule ids must
// be unique within the pack.
func (d *Definition) Validate() error {
	if d.Kind == KindCompliance && d.Disclaimer == "" {
		return fmt.Errorf("packs: pack %q is kind %q but missing disclaimer", d.Name, KindCompliance)
	}
	if !isValidPackName(d.Name) {
		return fmt.Errorf("packs: invalid pack name %q: must be lowercase alphanumeric with hyphens", d.Name)
	}

	seen := make(map[string]struct{}, len(d.Rules))
	for _, rule := range d.Rules {
		if _, dup := seen[rule.ID]; dup {
			return fmt.Errorf("packs: pack %q has duplicate rule id %q", d.Name, rule.ID)
		}
		seen[rule.ID] = struct{}{}
		if err := rule.Validate(d.Name); err != nil {
			return err
		}
	}
	return nil
}

func isValidPackName(name string) bool {
	if name == "" || name[0] == '-' || name[len(name)-1] == '-' {
		return false
	}
	for _, c := range name {
		if !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c != '-' {
			return false
		}
	}
	return true
}
