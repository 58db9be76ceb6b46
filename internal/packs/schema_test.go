package packs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefinitionRoundTrip(t *testing.T) {
	doc := []byte(`
name: eu-ai-act-baseline
version: 1.0.0
kind: compliance
description: EU AI Act baseline checks
author: assay
license: Apache-2.0
disclaimer: This pack is informational only.
requires:
  assay_min_version: ">=2.9.0"
rules:
  - id: RULE-001
    severity: error
    description: every run must have at least one event
    check:
      type: event_count
      min: 1
`)
	def, err := ParseDefinition(doc)
	require.NoError(t, err)
	assert.Equal(t, "eu-ai-act-baseline", def.Name)
	assert.Equal(t, KindCompliance, def.Kind)
	require.Len(t, def.Rules, 1)
	assert.Equal(t, CheckEventCount, def.Rules[0].Check.Type)
	assert.Equal(t, 1, def.Rules[0].Check.Min)
	require.NoError(t, def.Validate())
}

func TestValidateRequiresDisclaimerForCompliance(t *testing.T) {
	def := &Definition{
		Name: "pack-a", Version: "1.0.0", Kind: KindCompliance,
		Requires: Requirements{AssayMinVersion: ">=0.0.0"},
		Rules:    []Rule{{ID: "r1", Severity: SeverityError, Check: CheckDefinition{Type: CheckEventCount, Min: 1}}},
	}
	err := def.Validate()
	assert.ErrorContains(t, err, "disclaimer")
}

func TestValidatePackNameFormat(t *testing.T) {
	valid := []string{"a", "soc2", "eu-ai-act-baseline", "pack-v1"}
	invalid := []string{"", "-pack", "pack-", "Pack", "pack_name", "pack name"}
	for _, n := range valid {
		assert.True(t, isValidPackName(n), n)
	}
	for _, n := range invalid {
		assert.False(t, isValidPackName(n), n)
	}
}

func TestValidateRejectsDuplicateRuleIDs(t *testing.T) {
	def := &Definition{
		Name: "pack-a", Version: "1.0.0", Kind: KindSecurity,
		Requires: Requirements{AssayMinVersion: ">=0.0.0"},
		Rules: []Rule{
			{ID: "r1", Severity: SeverityError, Check: CheckDefinition{Type: CheckEventCount, Min: 1}},
			{ID: "r1", Severity: SeverityError, Check: CheckDefinition{Type: CheckEventCount, Min: 2}},
		},
	}
	assert.ErrorContains(t, def.Validate(), "duplicate rule id")
}

func TestSeverityPriority(t *testing.T) {
	assert.Less(t, SeverityInfo.Priority(), SeverityWarning.Priority())
	assert.Less(t, SeverityWarning.Priority(), SeverityError.Priority())
}
