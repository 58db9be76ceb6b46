// Package registry implements pack resolution (C5): reference parsing, the
// on-disk pack cache, the registry HTTP client, OIDC token exchange, and
// the priority-ordered resolver that ties them together. Grounded on
// original_source/crates/assay-registry/src/{reference,cache,resolver,auth,trust}.rs.
package registry

import (
	"fmt"
	"strings"
)

// RefKind classifies a parsed pack reference.
type RefKind int

const (
	RefLocal RefKind = iota
	RefBundled
	RefRegistry
	RefByos
)

func (k RefKind) String() string {
	switch k {
	case RefLocal:
		return "local"
	case RefBundled:
		return "bundled"
	case RefRegistry:
		return "registry"
	case RefByos:
		return "byos"
	default:
		return "unknown"
	}
}

// Ref is a parsed pack reference, a tagged union over the four source
// kinds reference.rs's PackRef enum distinguishes.
type Ref struct {
	Kind RefKind
	// Path is set for RefLocal.
	Path string
	// Name is set for RefBundled and RefRegistry.
	Name string
	// Version is set for RefRegistry.
	Version string
	// PinnedDigest is set for RefRegistry when the reference carries a
	// "#sha256:..." suffix.
	PinnedDigest string
	// URL is set for RefByos.
	URL string
}

func (r Ref) String() string {
	switch r.Kind {
	case RefLocal:
		return r.Path
	case RefBundled:
		return r.Name
	case RefRegistry:
		s := r.Name + "@" + r.Version
		if r.PinnedDigest != "" {
			s += "#" + r.PinnedDigest
		}
		return s
	case RefByos:
		return r.URL
	default:
		return ""
	}
}

func (r Ref) IsLocal() bool    { return r.Kind == RefLocal }
func (r Ref) IsBundled() bool  { return r.Kind == RefBundled }
func (r Ref) IsRegistry() bool { return r.Kind == RefRegistry }
func (r Ref) IsByos() bool     { return r.Kind == RefByos }

var byosSchemes = []string{"s3://", "gs://", "azure://", "https://", "http://"}

// ParseRef classifies s into one of the four reference kinds, following
// reference.rs's parse() priority: BYOS schemes first, then local-path
// heuristics, then Windows drive letters, then "name@version[#digest]",
// finally falling back to a bare bundled name.
func ParseRef(s string) (Ref, error) {
	if s == "" {
		return Ref{}, fmt.Errorf("registry: empty pack reference")
	}

	for _, scheme := range byosSchemes {
		if strings.HasPrefix(s, scheme) {
			return Ref{Kind: RefByos, URL: s}, nil
		}
	}

	if looksLikeLocalPath(s) {
		return Ref{Kind: RefLocal, Path: s}, nil
	}

	// Windows drive letter: "C:\..." or "C:/...".
	if len(s) >= 2 && isASCIILetter(s[0]) && s[1] == ':' {
		return Ref{Kind: RefLocal, Path: s}, nil
	}

	if idx := strings.Index(s, "@"); idx >= 0 {
		name := s[:idx]
		rest := s[idx+1:]

		version := rest
		pinnedDigest := ""
		if h := strings.Index(rest, "#"); h >= 0 {
			version = rest[:h]
			digestPart := rest[h+1:]
			if !strings.HasPrefix(digestPart, "sha256:") {
				return Ref{}, fmt.Errorf("registry: pinned digest must be sha256:<hex>, got %q", digestPart)
			}
			pinnedDigest = digestPart
		}

		if version == "" {
			return Ref{}, fmt.Errorf("registry: reference %q is missing a version after '@'", s)
		}
		if err := ValidatePackName(name); err != nil {
			return Ref{}, err
		}
		return Ref{Kind: RefRegistry, Name: name, Version: version, PinnedDigest: pinnedDigest}, nil
	}

	if err := ValidatePackName(s); err != nil {
		return Ref{}, err
	}
	return Ref{Kind: RefBundled, Name: s}, nil
}

func looksLikeLocalPath(s string) bool {
	if strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "/") {
		return true
	}
	return strings.HasSuffix(s, ".yaml") || strings.HasSuffix(s, ".yml")
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// ValidatePackName enforces reference.rs's validate_pack_name: non-empty,
// starts with a lowercase ascii letter, contains only [a-z0-9-], no
// trailing hyphen, no consecutive hyphens.
func ValidatePackName(name string) error {
	if name == "" {
		return fmt.Errorf("registry: pack name must not be empty")
	}
	first := name[0]
	if first < 'a' || first > 'z' {
		return fmt.Errorf("registry: pack name %q must start with a lowercase letter", name)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		if !isLower && !isDigit && c != '-' {
			return fmt.Errorf("registry: pack name %q contains invalid character %q", name, string(c))
		}
	}
	if strings.HasSuffix(name, "-") {
		return fmt.Errorf("registry: pack name %q must not end with a hyphen", name)
	}
	if strings.Contains(name, "--") {
		return fmt.Errorf("registry: pack name %q must not contain consecutive hyphens", name)
	}
	return nil
}
