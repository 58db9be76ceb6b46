package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/assay-run/assay/internal/canon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *PackCache {
	t.Helper()
	c, err := NewPackCacheWithDir(t.TempDir())
	require.NoError(t, err)
	return c
}

func TestCachePutGetRoundTrip(t *testing.T) {
	c := testCache(t)
	content := "name: test\nversion: 1.0.0\n"
	result := &FetchResult{Content: content, ComputedDigest: canon.DigestBytes([]byte(content)), ETag: `"v1"`}

	require.NoError(t, c.Put("test", "1.0.0", result, "https://registry.example.com"))

	entry, err := c.Get("test", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, content, entry.Content)
	assert.Equal(t, result.ComputedDigest, entry.Metadata.Digest)
}

func TestCacheGetMiss(t *testing.T) {
	c := testCache(t)
	entry, err := c.Get("nonexistent", "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCacheDetectsCorruption(t *testing.T) {
	c := testCache(t)
	content := "name: test\n"
	result := &FetchResult{Content: content, ComputedDigest: canon.DigestBytes([]byte(content))}
	require.NoError(t, c.Put("test", "1.0.0", result, ""))

	// Corrupt the cached content in place.
	require.NoError(t, os.WriteFile(filepath.Join(c.packDir("test", "1.0.0"), "pack.yaml"), []byte("tampered"), 0o644))

	_, err := c.Get("test", "1.0.0")
	assert.ErrorIs(t, err, ErrDigestMismatch)
}

func TestCacheExpiry(t *testing.T) {
	c := testCache(t)
	content := "name: test\n"
	result := &FetchResult{Content: content, ComputedDigest: canon.DigestBytes([]byte(content)), CacheControl: "max-age=0"}
	require.NoError(t, c.Put("test", "1.0.0", result, ""))

	entry, err := c.Get("test", "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, entry, "expired entry should not be returned")
}

func TestCacheEvict(t *testing.T) {
	c := testCache(t)
	content := "name: test\n"
	result := &FetchResult{Content: content, ComputedDigest: canon.DigestBytes([]byte(content))}
	require.NoError(t, c.Put("test", "1.0.0", result, ""))

	require.NoError(t, c.Evict("test", "1.0.0"))

	entry, err := c.Get("test", "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCacheCorruptMetadataIsError(t *testing.T) {
	c := testCache(t)
	dir := c.packDir("test", "1.0.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pack.yaml"), []byte("name: test\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte("{not json"), 0o644))

	_, err := c.Get("test", "1.0.0")
	assert.Error(t, err)
}

func TestCacheCorruptSignatureDropsSignatureOnly(t *testing.T) {
	c := testCache(t)
	content := "name: test\n"
	result := &FetchResult{Content: content, ComputedDigest: canon.DigestBytes([]byte(content))}
	require.NoError(t, c.Put("test", "1.0.0", result, ""))
	require.NoError(t, os.WriteFile(filepath.Join(c.packDir("test", "1.0.0"), "signature.json"), []byte("{not json"), 0o644))

	entry, err := c.Get("test", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Nil(t, entry.Signature)
	assert.Equal(t, content, entry.Content)
}

func TestCacheAtomicWriteLeavesNoTempFiles(t *testing.T) {
	c := testCache(t)
	content := "name: test\n"
	result := &FetchResult{Content: content, ComputedDigest: canon.DigestBytes([]byte(content))}
	require.NoError(t, c.Put("test", "1.0.0", result, ""))

	entries, err := os.ReadDir(c.packDir("test", "1.0.0"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestCacheListAndClear(t *testing.T) {
	c := testCache(t)
	content := "name: test\n"
	result := &FetchResult{Content: content, ComputedDigest: canon.DigestBytes([]byte(content))}
	require.NoError(t, c.Put("a", "1.0.0", result, ""))
	require.NoError(t, c.Put("b", "2.0.0", result, ""))

	list, err := c.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a@1.0.0", "b@2.0.0"}, list)

	require.NoError(t, c.Clear())
	list, err = c.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestParseCacheControlExpiry(t *testing.T) {
	assert.Equal(t, 2*time.Hour, parseCacheControlExpiry("max-age=7200"))
	assert.Equal(t, DefaultCacheTTL, parseCacheControlExpiry(""))
	assert.Equal(t, DefaultCacheTTL, parseCacheControlExpiry("no-store"))
}
