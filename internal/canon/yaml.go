package canon

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"
)

// allowedYAMLTags are the only resolved tags a pack/mandate document may
// use. Anything else (!!timestamp, !!binary, custom !tag) is rejected,
// matching spec.md §4.1's "reject explicit/custom tags" rule.
var allowedYAMLTags = map[string]bool{
	"":          true,
	"!!str":     true,
	"!!int":     true,
	"!!bool":    true,
	"!!null":    true,
	"!!map":     true,
	"!!seq":     true,
	"!!merge":   false, // explicitly rejected below via the literal check
	"!!float":   false,
	"!!binary":  false,
	"!!timestamp": false,
}

// CanonicalizeYAML parses yaml_text under the strict rules of C1 and
// returns canonical JCS bytes plus their "sha256:<hex>" digest. Empty input
// canonicalizes to JSON null.
func CanonicalizeYAML(yamlText string) (bytes_ []byte, digest string, err error) {
	v, err := DecodeYAMLStrict(yamlText)
	if err != nil {
		return nil, "", err
	}
	b, err := Encode(v)
	if err != nil {
		return nil, "", err
	}
	return b, DigestBytes(b), nil
}

// DecodeYAMLStrict parses a single YAML document into the same value tree
// shape strictjson.Decode produces, rejecting anchors/aliases, custom
// tags, multi-document streams, merge keys, and out-of-range numbers.
func DecodeYAMLStrict(yamlText string) (interface{}, error) {
	if len(bytesTrimSpace([]byte(yamlText))) == 0 {
		return nil, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader([]byte(yamlText)))
	var doc yaml.Node
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("canon: yaml parse error: %w", err)
	}

	// Reject multi-document streams: a second Decode must hit EOF.
	var extra yaml.Node
	if err := dec.Decode(&extra); err != io.EOF {
		return nil, fmt.Errorf("canon: multi-document YAML streams are rejected")
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("canon: malformed YAML document")
	}
	return walkYAMLNode(doc.Content[0], 0)
}

func walkYAMLNode(n *yaml.Node, depth int) (interface{}, error) {
	if depth > MaxNestingDepth {
		return nil, &StrictJSONError{Kind: ErrKindNestingTooDeep, Path: "$"}
	}
	if n.Anchor != "" {
		return nil, fmt.Errorf("canon: YAML anchors are rejected (anchor %q)", n.Anchor)
	}
	switch n.Kind {
	case yaml.AliasNode:
		return nil, fmt.Errorf("canon: YAML aliases are rejected")
	case yaml.ScalarNode:
		return walkYAMLScalar(n)
	case yaml.SequenceNode:
		out := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := walkYAMLNode(c, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		return walkYAMLMapping(n, depth)
	default:
		return nil, fmt.Errorf("canon: unsupported YAML node kind")
	}
}

func walkYAMLMapping(n *yaml.Node, depth int) (interface{}, error) {
	out := make(map[string]interface{})
	for i := 0; i+1 < len(n.Content); i += 2 {
		keyNode := n.Content[i]
		valNode := n.Content[i+1]
		if keyNode.Value == "<<" {
			return nil, fmt.Errorf("canon: YAML merge keys (<<) are rejected")
		}
		if keyNode.Kind != yaml.ScalarNode || keyNode.Tag != "!!str" {
			return nil, fmt.Errorf("canon: only plain string mapping keys are allowed")
		}
		key := keyNode.Value
		if _, exists := out[key]; exists {
			return nil, &StrictJSONError{Kind: ErrKindDuplicateKey, Path: "$", Key: key}
		}
		v, err := walkYAMLNode(valNode, depth+1)
		if err != nil {
			return nil, err
		}
		out[key] = v
		if len(out) > MaxKeysPerObject {
			return nil, &StrictJSONError{Kind: ErrKindTooManyKeys, Path: "$"}
		}
	}
	return out, nil
}

func walkYAMLScalar(n *yaml.Node) (interface{}, error) {
	allowed, known := allowedYAMLTags[n.Tag]
	if !known {
		return nil, fmt.Errorf("canon: unsupported YAML tag %q", n.Tag)
	}
	if !allowed {
		return nil, fmt.Errorf("canon: YAML tag %q is rejected (floats, binary, and timestamps are not canonicalizable)", n.Tag)
	}

	switch n.Tag {
	case "!!null":
		return nil, nil
	case "!!bool":
		b, err := strconv.ParseBool(n.Value)
		if err != nil {
			return nil, fmt.Errorf("canon: invalid YAML bool %q", n.Value)
		}
		return b, nil
	case "!!int":
		v, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("canon: invalid YAML int %q", n.Value)
		}
		if v > MaxSafeInteger || v < MinSafeInteger {
			return nil, &StrictJSONError{Kind: ErrKindUnsafeInteger, Path: "$", Msg: n.Value}
		}
		return v, nil
	default: // "" or "!!str"
		return n.Value, nil
	}
}

func bytesTrimSpace(b []byte) []byte {
	start, end := 0, len(b)
	isSpace := func(c byte) bool {
		return c == ' ' || c == '\t' || c == '\n' || c == '\r'
	}
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}
