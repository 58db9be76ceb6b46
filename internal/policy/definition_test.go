package policy

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefinitionV2(t *testing.T) {
	doc := []byte(`
version: "2.0"
name: coding-assistant
tools:
  allow: ["file.*", "shell.exec"]
  deny: ["shell.exec:rm*"]
schemas:
  file.read:
    type: object
    properties:
      path: { type: string }
    required: [path]
`)
	def, err := ParseDefinition(doc)
	require.NoError(t, err)
	assert.Equal(t, "coding-assistant", def.Name)
	assert.Equal(t, []string{"file.*", "shell.exec"}, def.Tools.Allow)
	assert.Contains(t, def.Schemas, "file.read")
	assert.Empty(t, def.Constraints)
}

func TestParseDefinitionLegacyRootAllowDeny(t *testing.T) {
	doc := []byte(`
name: legacy
allow: ["file.read"]
deny: ["file.write"]
`)
	def, err := ParseDefinition(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"file.read"}, def.Tools.Allow)
	assert.Equal(t, []string{"file.write"}, def.Tools.Deny)
	assert.Nil(t, def.Allow)
	assert.Nil(t, def.Deny)
}

func TestParseDefinitionConstraintsListShape(t *testing.T) {
	doc := []byte(`
name: v1-list
constraints:
  - tool: file.write
    params:
      path:
        matches: "^/workspace/.*"
`)
	def, err := ParseDefinition(doc)
	require.NoError(t, err)
	require.Contains(t, def.Schemas, "file.write")
	schema := def.Schemas["file.write"].(map[string]interface{})
	assert.Equal(t, "object", schema["type"])
	props := schema["properties"].(map[string]interface{})
	path := props["path"].(map[string]interface{})
	assert.Equal(t, "^/workspace/.*", path["pattern"])
}

func TestParseDefinitionConstraintsMapShape(t *testing.T) {
	doc := []byte(`
name: v1-map
constraints:
  file.write:
    path: "^/workspace/.*"
  file.read:
    path:
      matches: "^/workspace/.*"
`)
	def, err := ParseDefinition(doc)
	require.NoError(t, err)
	assert.Contains(t, def.Schemas, "file.write")
	assert.Contains(t, def.Schemas, "file.read")
}

func TestParseDefinitionStrictDeprecationsRejectsV1(t *testing.T) {
	t.Setenv(StrictDeprecationsEnv, "1")
	defer os.Unsetenv(StrictDeprecationsEnv)

	doc := []byte(`
name: v1-strict
constraints:
  - tool: file.write
    params:
      path: { matches: ".*" }
`)
	_, err := ParseDefinition(doc)
	assert.Error(t, err)
}

func TestUnconstrainedModeUnmarshal(t *testing.T) {
	doc := []byte(`
name: strict-mode
enforcement:
  unconstrained_tools: deny
`)
	def, err := ParseDefinition(doc)
	require.NoError(t, err)
	assert.Equal(t, UnconstrainedDeny, def.Enforcement.UnconstrainedTools)
}

func TestUnconstrainedModeInvalid(t *testing.T) {
	doc := []byte(`
name: bad-mode
enforcement:
  unconstrained_tools: maybe
`)
	_, err := ParseDefinition(doc)
	assert.Error(t, err)
}
