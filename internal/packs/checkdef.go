package packs

import "fmt"

// CheckType discriminates CheckDefinition's tagged union.
type CheckType string

const (
	CheckEventCount        CheckType = "event_count"
	CheckEventPairs         CheckType = "event_pairs"
	CheckEventFieldPresent CheckType = "event_field_present"
	CheckEventTypeExists   CheckType = "event_type_exists"
	CheckManifestField     CheckType = "manifest_field"
)

// CheckDefinition is the tagged union of check kinds a pack rule can use.
// Only the fields relevant to Type are populated; the others are left at
// their zero value, mirroring the YAML document's own shape (each rule
// sets only the fields its check type declares).
type CheckDefinition struct {
	Type CheckType `yaml:"type" json:"type"`

	// event_count
	Min int `yaml:"min,omitempty" json:"min,omitempty"`

	// event_pairs
	StartPattern  string `yaml:"start_pattern,omitempty" json:"start_pattern,omitempty"`
	FinishPattern string `yaml:"finish_pattern,omitempty" json:"finish_pattern,omitempty"`

	// event_field_present
	PathsAnyOf []string `yaml:"paths_any_of,omitempty" json:"paths_any_of,omitempty"`
	AnyOf      []string `yaml:"any_of,omitempty" json:"any_of,omitempty"`
	InData     bool     `yaml:"in_data,omitempty" json:"in_data,omitempty"`

	// event_type_exists
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`

	// manifest_field
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	Required bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// Validate enforces the per-type structural invariants checks.rs encodes as
// construction-time errors.
func (c CheckDefinition) Validate(packName, ruleID string) error {
	switch c.Type {
	case CheckEventCount:
		if c.Min == 0 {
			return invalidCheck(packName, ruleID, "event_count.min must be > 0")
		}
	case CheckEventPairs:
		if c.StartPattern == "" || c.FinishPattern == "" {
			return invalidCheck(packName, ruleID, "event_pairs patterns cannot be empty")
		}
	case CheckEventFieldPresent:
		hasPaths := len(c.PathsAnyOf) > 0
		hasLegacy := len(c.AnyOf) > 0
		if !hasPaths && !hasLegacy {
			return invalidCheck(packName, ruleID, "event_field_present requires paths_any_of or any_of")
		}
	case CheckEventTypeExists:
		if c.Pattern == "" {
			return invalidCheck(packName, ruleID, "event_type_exists.pattern cannot be empty")
		}
	case CheckManifestField:
		if c.Path == "" {
			return invalidCheck(packName, ruleID, "manifest_field.path cannot be empty")
		}
	default:
		return invalidCheck(packName, ruleID, fmt.Sprintf("unknown check type %q", c.Type))
	}
	return nil
}

func invalidCheck(packName, ruleID, reason string) error {
	return fmt.Errorf("packs: pack %q rule %q has invalid check: %s", packName, ruleID, reason)
}

// FieldPaths normalizes event_field_present's paths_any_of / legacy any_of
// + in_data into a flat list of RFC-6901 JSON Pointers. paths_any_of takes
// priority when both are present.
func (c CheckDefinition) FieldPaths() []string {
	if c.Type != CheckEventFieldPresent {
		return nil
	}
	if len(c.PathsAnyOf) > 0 {
		return c.PathsAnyOf
	}
	if len(c.AnyOf) > 0 {
		paths := make([]string, len(c.AnyOf))
		for i, f := range c.AnyOf {
			if c.InData {
				paths[i] = "/data/" + f
			} else {
				paths[i] = "/" + f
			}
		}
		return paths
	}
	return nil
}
