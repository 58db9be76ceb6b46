package packs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckDefinitionValidate(t *testing.T) {
	cases := []struct {
		name    string
		check   CheckDefinition
		wantErr bool
	}{
		{"event_count ok", CheckDefinition{Type: CheckEventCount, Min: 1}, false},
		{"event_count zero", CheckDefinition{Type: CheckEventCount, Min: 0}, true},
		{"event_pairs ok", CheckDefinition{Type: CheckEventPairs, StartPattern: "*.started", FinishPattern: "*.finished"}, false},
		{"event_pairs empty", CheckDefinition{Type: CheckEventPairs, StartPattern: "", FinishPattern: "*.finished"}, true},
		{"event_field_present paths_any_of", CheckDefinition{Type: CheckEventFieldPresent, PathsAnyOf: []string{"/run_id"}}, false},
		{"event_field_present legacy", CheckDefinition{Type: CheckEventFieldPresent, AnyOf: []string{"traceparent"}}, false},
		{"event_field_present empty", CheckDefinition{Type: CheckEventFieldPresent}, true},
		{"event_type_exists ok", CheckDefinition{Type: CheckEventTypeExists, Pattern: "*.started"}, false},
		{"event_type_exists empty", CheckDefinition{Type: CheckEventTypeExists, Pattern: ""}, true},
		{"manifest_field ok", CheckDefinition{Type: CheckManifestField, Path: "/run_id"}, false},
		{"manifest_field empty", CheckDefinition{Type: CheckManifestField, Path: ""}, true},
		{"unknown type", CheckDefinition{Type: "bogus"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check.Validate("pack-a", "rule-1")
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFieldPathsPrefersModernOverLegacy(t *testing.T) {
	c := CheckDefinition{
		Type:       CheckEventFieldPresent,
		PathsAnyOf: []string{"/run_id", "/data/traceparent"},
		AnyOf:      []string{"ignored"},
	}
	assert.Equal(t, []string{"/run_id", "/data/traceparent"}, c.FieldPaths())
}

func TestFieldPathsLegacyInData(t *testing.T) {
	c := CheckDefinition{Type: CheckEventFieldPresent, AnyOf: []string{"traceparent"}, InData: true}
	assert.Equal(t, []string{"/data/traceparent"}, c.FieldPaths())
}

func TestFieldPathsLegacyTopLevel(t *testing.T) {
	c := CheckDefinition{Type: CheckEventFieldPresent, AnyOf: []string{"run_id"}, InData: false}
	assert.Equal(t, []string{"/run_id"}, c.FieldPaths())
}
