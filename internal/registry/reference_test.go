package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRefLocal(t *testing.T) {
	for _, s := range []string{"./pack.yaml", "../packs/pack.yaml", "/abs/pack.yaml", "pack.yml"} {
		ref, err := ParseRef(s)
		require.NoError(t, err, s)
		assert.True(t, ref.IsLocal(), s)
		assert.Equal(t, s, ref.Path)
	}
}

func TestParseRefBundled(t *testing.T) {
	ref, err := ParseRef("eu-ai-act")
	require.NoError(t, err)
	assert.True(t, ref.IsBundled())
	assert.Equal(t, "eu-ai-act", ref.Name)
}

func TestParseRefRegistry(t *testing.T) {
	ref, err := ParseRef("eu-ai-act-pro@1.2.0")
	require.NoError(t, err)
	assert.True(t, ref.IsRegistry())
	assert.Equal(t, "eu-ai-act-pro", ref.Name)
	assert.Equal(t, "1.2.0", ref.Version)
	assert.Empty(t, ref.PinnedDigest)
}

func TestParseRefRegistryWithDigest(t *testing.T) {
	ref, err := ParseRef("eu-ai-act-pro@1.2.0#sha256:abcd")
	require.NoError(t, err)
	assert.Equal(t, "sha256:abcd", ref.PinnedDigest)
}

func TestParseRefRegistryMissingVersion(t *testing.T) {
	_, err := ParseRef("eu-ai-act-pro@")
	assert.Error(t, err)
}

func TestParseRefRegistryInvalidDigestPrefix(t *testing.T) {
	_, err := ParseRef("eu-ai-act-pro@1.0.0#md5:abcd")
	assert.Error(t, err)
}

func TestParseRefByos(t *testing.T) {
	for _, s := range []string{"s3://bucket/pack.yaml", "gs://bucket/pack.yaml", "https://example.com/pack.yaml"} {
		ref, err := ParseRef(s)
		require.NoError(t, err, s)
		assert.True(t, ref.IsByos(), s)
		assert.Equal(t, s, ref.URL)
	}
}

func TestParseRefEmpty(t *testing.T) {
	_, err := ParseRef("")
	assert.Error(t, err)
}

func TestValidatePackName(t *testing.T) {
	valid := []string{"a", "eu-ai-act", "pack123", "a-b-c"}
	for _, n := range valid {
		assert.NoError(t, ValidatePackName(n), n)
	}

	invalid := []string{"Eu-ai-act", "1pack", "eu-ai-act-", "eu--ai-act", "eu_ai_act", ""}
	for _, n := range invalid {
		assert.Error(t, ValidatePackName(n), n)
	}
}

func TestResolveSourceDisplay(t *testing.T) {
	assert.Equal(t, "local:/path/to/pack.yaml", ResolveSource{Kind: sourceKindLocal, Detail: "/path/to/pack.yaml"}.String())
	assert.Equal(t, "bundled:my-pack", ResolveSource{Kind: sourceKindBundled, Detail: "my-pack"}.String())
	assert.Equal(t, "cache", ResolveSource{Kind: sourceKindCache}.String())
}
