package rego

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIncludesDenyAllowAndMTS(t *testing.T) {
	spec := PolicySpec{
		Name:          "coding-assistant",
		AllowPatterns: []string{"file.*"},
		DenyPatterns:  []string{"shell.exec"},
		SchemaTools:   []string{"file.read"},
		MTSLabel:      "s0:c1",
	}
	module, err := Generate(spec)
	require.NoError(t, err)
	assert.Contains(t, module, "package assaypolicy")
	assert.Contains(t, module, `glob.match("shell.exec"`)
	assert.Contains(t, module, `glob.match("file.*"`)
	assert.Contains(t, module, `input.agent.mts_label == "s0:c1"`)
}

func TestGenerateNoAllowlistAllowsByDefault(t *testing.T) {
	spec := PolicySpec{Name: "open", DenyPatterns: []string{"shell.exec"}}
	module, err := Generate(spec)
	require.NoError(t, err)
	assert.Contains(t, module, "allow := true")
}
