package packs

import (
	"fmt"
	"os"

	"github.com/assay-run/assay/internal/canon"
)

// Source identifies where a loaded pack's bytes came from, mirroring
// internal/registry.ResolveSource's (kind, detail) shape for style
// consistency across the two resolution paths.
type Source struct {
	Kind   string // "builtin", "file", "registry"
	Detail string
}

func (s Source) String() string {
	if s.Detail == "" {
		return s.Kind
	}
	return s.Kind + ":" + s.Detail
}

// BuiltInSource marks a pack shipped inside the binary/bundled-packs dir.
func BuiltInSource(name string) Source { return Source{Kind: "builtin", Detail: name} }

// FileSource marks a pack loaded from a local path.
func FileSource(path string) Source { return Source{Kind: "file", Detail: path} }

// RegistrySource marks a pack resolved through internal/registry.
func RegistrySource(nameVersion string) Source { return Source{Kind: "registry", Detail: nameVersion} }

// LoadedPack is a validated pack definition plus its content digest and
// provenance.
type LoadedPack struct {
	Definition *Definition
	Digest     string
	Source     Source
}

// CanonicalRuleID returns "{pack_name}@{pack_version}:{rule_id}" for a rule
// id belonging to this pack.
func (lp *LoadedPack) CanonicalRuleID(ruleID string) string {
	return fmt.Sprintf("%s@%s:%s", lp.Definition.Name, lp.Definition.Version, ruleID)
}

// Load reads, parses, validates, and digests a pack YAML file.
func Load(path string) (*LoadedPack, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("packs: failed to read %s: %w", path, err)
	}
	return LoadFromContent(content, FileSource(path))
}

// LoadFromContent parses, validates, and digests raw pack YAML bytes
// already resolved from source.
func LoadFromContent(content []byte, source Source) (*LoadedPack, error) {
	def, err := ParseDefinition(content)
	if err != nil {
		return nil, err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &LoadedPack{
		Definition: def,
		Digest:     canon.DigestBytes(content),
		Source:     source,
	}, nil
}
