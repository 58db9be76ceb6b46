// Package lockfile implements the pack lockfile (C6): a versioned,
// YAML-serialized pinning of resolved pack digests, generated from and
// verified against internal/registry's resolver. Grounded on
// original_source/crates/assay-registry/src/lockfile.rs.
package lockfile

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/assay-run/assay/internal/registry"
)

// FileName is the conventional lockfile name, matching lockfile.rs's
// LOCKFILE_NAME.
const FileName = "assay.packs.lock"

// Version is the current lockfile schema version. Parse rejects any
// document whose version field is greater than this.
const Version = 2

// Source names where a locked pack's content came from, the Go spelling
// of LockSource's lowercase-serialized variants.
type Source string

const (
	SourceBundled  Source = "bundled"
	SourceRegistry Source = "registry"
	SourceByos     Source = "byos"
	SourceLocal    Source = "local"
)

// Signature records which key signed a locked pack, if any.
type Signature struct {
	Algorithm string `yaml:"algorithm" json:"algorithm"`
	KeyID     string `yaml:"key_id" json:"key_id"`
}

// LockedPack is one pinned pack entry.
type LockedPack struct {
	Name        string     `yaml:"name" json:"name"`
	Version     string     `yaml:"version" json:"version"`
	Digest      string     `yaml:"digest" json:"digest"`
	Source      Source     `yaml:"source" json:"source"`
	RegistryURL string     `yaml:"registry_url,omitempty" json:"registry_url,omitempty"`
	ByosURL     string     `yaml:"byos_url,omitempty" json:"byos_url,omitempty"`
	Signature   *Signature `yaml:"signature,omitempty" json:"signature,omitempty"`
}

// Lockfile is the full document.
type Lockfile struct {
	Version     int          `yaml:"version" json:"version"`
	GeneratedAt time.Time    `yaml:"generated_at" json:"generated_at"`
	GeneratedBy string       `yaml:"generated_by" json:"generated_by"`
	Packs       []LockedPack `yaml:"packs" json:"packs"`
}

// CLIVersion is substituted into a freshly created lockfile's
// generated_by field, mirroring lockfile.rs's "assay-cli/{CARGO_PKG_VERSION}".
// A build tagged binary may override this at link time; it defaults to
// "dev" so an untagged build still produces a valid document.
var CLIVersion = "dev"

// New returns an empty, freshly stamped lockfile.
func New() *Lockfile {
	return &Lockfile{
		Version:     Version,
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: "assay-cli/" + CLIVersion,
		Packs:       []LockedPack{},
	}
}

// Load reads and parses a lockfile from path.
func Load(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lockfile: failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML content into a Lockfile, rejecting any document
// whose version exceeds the version this package understands.
func Parse(content []byte) (*Lockfile, error) {
	var lf Lockfile
	if err := yaml.Unmarshal(content, &lf); err != nil {
		return nil, fmt.Errorf("lockfile: invalid YAML: %w", err)
	}
	if lf.Version > Version {
		return nil, fmt.Errorf("lockfile: unsupported lockfile version %d (understand up to %d)", lf.Version, Version)
	}
	return &lf, nil
}

// ToYAML renders the lockfile as YAML bytes.
func (lf *Lockfile) ToYAML() ([]byte, error) {
	b, err := yaml.Marshal(lf)
	if err != nil {
		return nil, fmt.Errorf("lockfile: failed to marshal: %w", err)
	}
	return b, nil
}

// Save writes the lockfile to path.
func (lf *Lockfile) Save(path string) error {
	b, err := lf.ToYAML()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("lockfile: failed to write %s: %w", path, err)
	}
	return nil
}

// AddPack inserts pack, replacing any existing entry with the same name,
// re-sorting by name, and bumping GeneratedAt.
func (lf *Lockfile) AddPack(pack LockedPack) {
	kept := lf.Packs[:0:0]
	for _, p := range lf.Packs {
		if p.Name != pack.Name {
			kept = append(kept, p)
		}
	}
	kept = append(kept, pack)
	sort.Slice(kept, func(i, j int) bool { return kept[i].Name < kept[j].Name })
	lf.Packs = kept
	lf.GeneratedAt = time.Now().UTC()
}

// RemovePack removes the entry named name, reporting whether it was
// present.
func (lf *Lockfile) RemovePack(name string) bool {
	before := len(lf.Packs)
	kept := lf.Packs[:0:0]
	for _, p := range lf.Packs {
		if p.Name != name {
			kept = append(kept, p)
		}
	}
	lf.Packs = kept
	return len(lf.Packs) != before
}

// GetPack returns the entry named name, if present.
func (lf *Lockfile) GetPack(name string) (LockedPack, bool) {
	for _, p := range lf.Packs {
		if p.Name == name {
			return p, true
		}
	}
	return LockedPack{}, false
}

// Contains reports whether name is locked.
func (lf *Lockfile) Contains(name string) bool {
	_, ok := lf.GetPack(name)
	return ok
}

// PackNames returns every locked pack's name.
func (lf *Lockfile) PackNames() []string {
	names := make([]string, len(lf.Packs))
	for i, p := range lf.Packs {
		names[i] = p.Name
	}
	return names
}

// Mismatch records one pack whose locked digest no longer matches what
// the resolver currently resolves to.
type Mismatch struct {
	Name     string
	Version  string
	Expected string
	Actual   string
}

// VerifyResult is the outcome of checking every locked pack against the
// resolver.
type VerifyResult struct {
	AllMatch   bool
	Matched    []string
	Mismatched []Mismatch
	Missing    []string
	// Extra would list resolvable packs absent from the lockfile; this
	// requires the caller's full reference set, which VerifyLockfile does
	// not have, so it is always empty here (lockfile.rs notes the same
	// limitation).
	Extra []string
}

// GenerateLockfile resolves each reference and builds a fresh lockfile
// pinning every result's digest, source, and (if present) signing key.
func GenerateLockfile(ctx context.Context, references []string, resolver *registry.Resolver) (*Lockfile, error) {
	lf := New()
	for _, reference := range references {
		ref, err := registry.ParseRef(reference)
		if err != nil {
			return nil, err
		}
		resolved, err := resolver.ResolveRef(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("lockfile: failed to resolve %q: %w", reference, err)
		}

		name, version := lockedNameVersion(ref)
		pack := LockedPack{
			Name:    name,
			Version: version,
			Digest:  resolved.Digest,
		}
		switch resolved.Source.Kind {
		case "bundled":
			pack.Source = SourceBundled
		case "registry":
			pack.Source = SourceRegistry
			pack.RegistryURL = resolved.Source.Detail
		case "byos":
			pack.Source = SourceByos
			pack.ByosURL = resolved.Source.Detail
		case "local", "cache":
			pack.Source = SourceLocal
		}
		if resolved.Verification != nil {
			pack.Signature = &Signature{Algorithm: "Ed25519", KeyID: resolved.Verification.KeyID}
		}

		lf.AddPack(pack)
	}
	return lf, nil
}

// lockedNameVersion derives the (name, version) pair a reference maps to
// in a lockfile, following lockfile.rs's per-kind derivation.
func lockedNameVersion(ref registry.Ref) (string, string) {
	switch ref.Kind {
	case registry.RefRegistry:
		return ref.Name, ref.Version
	case registry.RefBundled:
		return ref.Name, "bundled"
	case registry.RefByos:
		return trimYAMLExt(baseName(ref.URL)), "byos"
	case registry.RefLocal:
		return trimYAMLExt(baseName(ref.Path)), "local"
	default:
		return ref.String(), ""
	}
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' || path[i] == '\\' {
			return path[i+1:]
		}
	}
	return path
}

func trimYAMLExt(name string) string {
	for _, ext := range []string{".yaml", ".yml"} {
		if len(name) > len(ext) && name[len(name)-len(ext):] == ext {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// resolvableReference rebuilds a reference string the resolver can
// resolve for each locked pack, following lockfile.rs's verify_lockfile:
// Bundled resolves by bare name, Registry by pinned "name@version#digest",
// Byos by its stored URL (falling back to name), Local is skipped (its
// original path is not recoverable from the lockfile alone).
func resolvableReference(pack LockedPack) (string, bool) {
	switch pack.Source {
	case SourceBundled:
		return pack.Name, true
	case SourceRegistry:
		return fmt.Sprintf("%s@%s#%s", pack.Name, pack.Version, pack.Digest), true
	case SourceByos:
		if pack.ByosURL != "" {
			return pack.ByosURL, true
		}
		return pack.Name, true
	default: // SourceLocal
		return "", false
	}
}

// VerifyLockfile resolves every locked pack again and compares digests.
func VerifyLockfile(ctx context.Context, lf *Lockfile, resolver *registry.Resolver) (*VerifyResult, error) {
	result := &VerifyResult{}
	for _, pack := range lf.Packs {
		reference, ok := resolvableReference(pack)
		if !ok {
			continue
		}
		resolved, err := resolver.Resolve(ctx, reference)
		if err != nil {
			result.Missing = append(result.Missing, pack.Name)
			continue
		}
		if resolved.Digest != pack.Digest {
			result.Mismatched = append(result.Mismatched, Mismatch{
				Name:     pack.Name,
				Version:  pack.Version,
				Expected: pack.Digest,
				Actual:   resolved.Digest,
			})
			continue
		}
		result.Matched = append(result.Matched, pack.Name)
	}
	result.AllMatch = len(result.Mismatched) == 0 && len(result.Missing) == 0
	return result, nil
}

// CheckLockfile is VerifyLockfile with CI-style hard failure on any
// mismatch or missing pack.
func CheckLockfile(ctx context.Context, lf *Lockfile, resolver *registry.Resolver) error {
	result, err := VerifyLockfile(ctx, lf, resolver)
	if err != nil {
		return err
	}
	if result.AllMatch {
		return nil
	}
	return fmt.Errorf("lockfile: verification failed: %d mismatched, %d missing", len(result.Mismatched), len(result.Missing))
}

// UpdateLockfile re-resolves every registry-sourced entry at its unpinned
// name@version and updates its digest if it changed, bumping GeneratedAt
// only when at least one entry actually changed.
func UpdateLockfile(ctx context.Context, lf *Lockfile, resolver *registry.Resolver) (changed bool, err error) {
	for i, pack := range lf.Packs {
		if pack.Source != SourceRegistry {
			continue
		}
		resolved, err := resolver.Resolve(ctx, pack.Name+"@"+pack.Version)
		if err != nil {
			return changed, fmt.Errorf("lockfile: failed to re-resolve %s@%s: %w", pack.Name, pack.Version, err)
		}
		if resolved.Digest != pack.Digest {
			lf.Packs[i].Digest = resolved.Digest
			changed = true
		}
	}
	if changed {
		lf.GeneratedAt = time.Now().UTC()
	}
	return changed, nil
}
