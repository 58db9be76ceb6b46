package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// compiledSchemas holds one compiled JSON-Schema per tool name. Tools
// absent from this map are "unconstrained": step 5 of evaluate() applies.
type compiledSchemas map[string]*jsonschema.Schema

// compileSchemas compiles every schema in raw, after injecting raw["$defs"]
// (if present) into each individual tool schema so definitions can be
// shared across tools the way a single top-level document would allow.
// Grounded on assay-core/src/mcp/policy.rs's compile_all_schemas, which
// performs the same per-tool $defs merge before handing each schema to its
// validator.
func compileSchemas(raw map[string]interface{}) (compiledSchemas, error) {
	if len(raw) == 0 {
		return compiledSchemas{}, nil
	}

	defs, hasDefs := raw["$defs"]

	out := make(compiledSchemas, len(raw))
	for tool, schema := range raw {
		if tool == "$defs" {
			continue
		}

		doc, ok := schema.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("policy: schema for tool %q is not an object", tool)
		}
		if hasDefs {
			merged := make(map[string]interface{}, len(doc)+1)
			for k, v := range doc {
				merged[k] = v
			}
			if _, already := merged["$defs"]; !already {
				merged["$defs"] = defs
			}
			doc = merged
		}

		compiled, err := compileOne(tool, doc)
		if err != nil {
			return nil, err
		}
		out[tool] = compiled
	}
	return out, nil
}

func compileOne(tool string, doc map[string]interface{}) (*jsonschema.Schema, error) {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("policy: encode schema for tool %q: %w", tool, err)
	}

	url := "mem://policy/" + tool + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(encoded)); err != nil {
		return nil, fmt.Errorf("policy: add schema resource for tool %q: %w", tool, err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("policy: compile schema for tool %q: %w", tool, err)
	}
	return schema, nil
}

// validateArgs validates args (already decoded into plain Go values, e.g.
// via encoding/json.Unmarshal into interface{}) against schema and flattens
// any validation error into Violations.
func validateArgs(schema *jsonschema.Schema, args interface{}) []Violation {
	err := schema.Validate(args)
	if err == nil {
		return nil
	}
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []Violation{{Path: "", Message: err.Error()}}
	}
	var out []Violation
	flattenViolations(ve, &out)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Message < out[j].Message
	})
	return out
}

func flattenViolations(ve *jsonschema.ValidationError, out *[]Violation) {
	if len(ve.Causes) == 0 {
		*out = append(*out, Violation{Path: ve.InstanceLocation, Message: ve.Message})
		return
	}
	for _, cause := range ve.Causes {
		flattenViolations(cause, out)
	}
}
