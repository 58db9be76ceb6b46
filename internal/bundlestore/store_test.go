package bundlestore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	dir := t.TempDir()
	local, err := NewLocalBackend(dir, "")
	require.NoError(t, err)
	return map[string]Backend{
		"memory": NewMemoryBackend(""),
		"local":  local,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.PutBundle(ctx, "sha256:abc123", []byte("bundle content")))
			exists, err := b.BundleExists(ctx, "sha256:abc123")
			require.NoError(t, err)
			assert.True(t, exists)
			got, err := b.GetBundle(ctx, "sha256:abc123")
			require.NoError(t, err)
			assert.Equal(t, []byte("bundle content"), got)
		})
	}
}

func TestPutIsNotIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.PutBundle(ctx, "sha256:abc", []byte("a")))
			err := b.PutBundle(ctx, "sha256:abc", []byte("a"))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrAlreadyExists))
		})
	}
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.GetBundle(ctx, "sha256:nonexistent")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestLinkRunBundleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.LinkRunBundle(ctx, "run-1", "sha256:abc"))
			require.NoError(t, b.LinkRunBundle(ctx, "run-1", "sha256:abc"))
			ids, err := b.ListBundlesForRun(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, []string{"sha256:abc"}, ids)
		})
	}
}

func TestListBundlesRespectsLimit(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, b.PutBundle(ctx, "sha256:aaa", []byte("a")))
			require.NoError(t, b.PutBundle(ctx, "sha256:bbb", []byte("b")))
			require.NoError(t, b.PutBundle(ctx, "sha256:ccc", []byte("c")))

			all, err := b.ListBundles(ctx, "", 0)
			require.NoError(t, err)
			assert.Len(t, all, 3)

			limited, err := b.ListBundles(ctx, "", 2)
			require.NoError(t, err)
			assert.Len(t, limited, 2)
		})
	}
}

func TestKeyBuilderRoundTripsIDs(t *testing.T) {
	keys := NewKeyBuilder("assay/evidence")
	bundleKey := keys.BundleKey("sha256:test")
	id, ok := keys.ParseBundleKey(bundleKey)
	require.True(t, ok)
	assert.Equal(t, "sha256:test", id)

	refKey := keys.RunBundleRefKey("run-1", "sha256:test")
	id, ok = keys.ParseRunRefKey("run-1", refKey)
	require.True(t, ok)
	assert.Equal(t, "sha256:test", id)
}

func TestLocalBackendCreatesRootDirectory(t *testing.T) {
	dir := t.TempDir()
	nested := dir + "/does/not/exist/yet"
	b, err := NewLocalBackend(nested, "")
	require.NoError(t, err)
	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	require.NoError(t, b.PutBundle(context.Background(), "sha256:x", []byte("y")))
}
