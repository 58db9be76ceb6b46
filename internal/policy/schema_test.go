package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileSchemasWithSharedDefs(t *testing.T) {
	raw := map[string]interface{}{
		"$defs": map[string]interface{}{
			"path": map[string]interface{}{
				"type":    "string",
				"pattern": "^/workspace/",
			},
		},
		"file.read": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{"$ref": "#/$defs/path"},
			},
			"required": []interface{}{"path"},
		},
	}

	schemas, err := compileSchemas(raw)
	require.NoError(t, err)
	require.Contains(t, schemas, "file.read")
	assert.NotContains(t, schemas, "$defs")

	violations := validateArgs(schemas["file.read"], map[string]interface{}{"path": "/etc/passwd"})
	assert.NotEmpty(t, violations)

	violations = validateArgs(schemas["file.read"], map[string]interface{}{"path": "/workspace/a.txt"})
	assert.Empty(t, violations)
}

func TestCompileSchemasEmpty(t *testing.T) {
	schemas, err := compileSchemas(nil)
	require.NoError(t, err)
	assert.Empty(t, schemas)
}

func TestValidateArgsMissingRequired(t *testing.T) {
	raw := map[string]interface{}{
		"file.write": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":    map[string]interface{}{"type": "string"},
				"content": map[string]interface{}{"type": "string"},
			},
			"required": []interface{}{"path", "content"},
		},
	}
	schemas, err := compileSchemas(raw)
	require.NoError(t, err)

	violations := validateArgs(schemas["file.write"], map[string]interface{}{"path": "/tmp/x"})
	require.NotEmpty(t, violations)
}
