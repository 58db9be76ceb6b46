package lockfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStampsVersionAndGeneratedBy(t *testing.T) {
	lf := New()
	assert.Equal(t, Version, lf.Version)
	assert.NotEmpty(t, lf.GeneratedBy)
	assert.Empty(t, lf.Packs)
}

func TestParseRoundTrip(t *testing.T) {
	yamlDoc := []byte(`
version: 2
generated_at: 2026-01-01T00:00:00Z
generated_by: assay-cli/1.0.0
packs:
  - name: eu-ai-act-pro
    version: 1.2.0
    digest: sha256:abc123
    source: registry
    registry_url: https://registry.getassay.dev/v1
    signature:
      algorithm: Ed25519
      key_id: sha256:deadbeef
`)
	lf, err := Parse(yamlDoc)
	require.NoError(t, err)
	assert.Equal(t, 2, lf.Version)
	require.Len(t, lf.Packs, 1)
	pack := lf.Packs[0]
	assert.Equal(t, "eu-ai-act-pro", pack.Name)
	assert.Equal(t, SourceRegistry, pack.Source)
	require.NotNil(t, pack.Signature)
	assert.Equal(t, "Ed25519", pack.Signature.Algorithm)
}

func TestParseRejectsUnsupportedVersion(t *testing.T) {
	_, err := Parse([]byte("version: 99\npacks: []\n"))
	assert.Error(t, err)
}

func TestAddPackSortsByName(t *testing.T) {
	lf := New()
	lf.AddPack(LockedPack{Name: "zeta", Version: "1.0.0", Digest: "sha256:z", Source: SourceBundled})
	lf.AddPack(LockedPack{Name: "alpha", Version: "1.0.0", Digest: "sha256:a", Source: SourceBundled})

	assert.Equal(t, []string{"alpha", "zeta"}, lf.PackNames())
}

func TestAddPackReplacesSameName(t *testing.T) {
	lf := New()
	lf.AddPack(LockedPack{Name: "pack", Version: "1.0.0", Digest: "sha256:old", Source: SourceBundled})
	lf.AddPack(LockedPack{Name: "pack", Version: "2.0.0", Digest: "sha256:new", Source: SourceBundled})

	require.Len(t, lf.Packs, 1)
	pack, ok := lf.GetPack("pack")
	require.True(t, ok)
	assert.Equal(t, "2.0.0", pack.Version)
	assert.Equal(t, "sha256:new", pack.Digest)
}

func TestRemovePack(t *testing.T) {
	lf := New()
	lf.AddPack(LockedPack{Name: "pack", Version: "1.0.0", Digest: "sha256:x", Source: SourceBundled})

	assert.True(t, lf.RemovePack("pack"))
	assert.False(t, lf.Contains("pack"))
	assert.False(t, lf.RemovePack("pack"))
}

func TestToYAMLIncludesSourceLowercase(t *testing.T) {
	lf := New()
	lf.AddPack(LockedPack{Name: "pack", Version: "1.0.0", Digest: "sha256:x", Source: SourceRegistry})
	b, err := lf.ToYAML()
	require.NoError(t, err)
	assert.Contains(t, string(b), "source: registry")
}

func TestPackNameFromPathStripsDirAndYAMLExt(t *testing.T) {
	assert.Equal(t, "my-pack", baseNameNoExt("my-pack.yaml"))
	assert.Equal(t, "pack", baseNameNoExt("./nested/pack.yml"))
}

func baseNameNoExt(path string) string {
	return trimYAMLExt(baseName(path))
}
