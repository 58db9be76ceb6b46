package bundlestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSBackend stores bundles in a Google Cloud Storage bucket, grounded on
// object_store_backend.rs's AmazonS3Builder path generalized to the cloud
// SDK actually present in the retrieval pack's dependency closure
// (cloud.google.com/go/storage, pulled in transitively by the certen
// validator example's Firestore client).
type GCSBackend struct {
	client *storage.Client
	bucket string
	keys   KeyBuilder
}

// NewGCSBackend wraps an already-authenticated client for bucket, storing
// objects under prefix.
func NewGCSBackend(client *storage.Client, bucket, prefix string) *GCSBackend {
	return &GCSBackend{client: client, bucket: bucket, keys: NewKeyBuilder(prefix)}
}

var _ Backend = (*GCSBackend)(nil)

func (g *GCSBackend) obj(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucket).Object(key)
}

func (g *GCSBackend) putIfNotExists(ctx context.Context, key string, data []byte) error {
	w := g.obj(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("bundlestore: gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return WrapAlreadyExists(key)
		}
		return fmt.Errorf("bundlestore: gcs commit failed: %w", err)
	}
	return nil
}

// isPreconditionFailed reports whether err looks like the GCS "412
// Precondition Failed" the If(DoesNotExist) condition raises on conflict.
// The storage package does not export a typed sentinel for this, so callers
// match on the status text the API returns.
func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "412") || strings.Contains(msg, "Precondition Failed") || strings.Contains(msg, "conditionNotMet")
}

func (g *GCSBackend) PutBundle(ctx context.Context, bundleID string, data []byte) error {
	return g.putIfNotExists(ctx, g.keys.BundleKey(bundleID), data)
}

func (g *GCSBackend) GetBundle(ctx context.Context, bundleID string) ([]byte, error) {
	r, err := g.obj(g.keys.BundleKey(bundleID)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("bundlestore: gcs read failed: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GCSBackend) BundleExists(ctx context.Context, bundleID string) (bool, error) {
	_, err := g.obj(g.keys.BundleKey(bundleID)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("bundlestore: gcs stat failed: %w", err)
}

func (g *GCSBackend) LinkRunBundle(ctx context.Context, runID, bundleID string) error {
	err := g.putIfNotExists(ctx, g.keys.RunBundleRefKey(runID, bundleID), []byte(bundleID))
	if err != nil && errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}

func (g *GCSBackend) ListBundlesForRun(ctx context.Context, runID string) ([]string, error) {
	prefix := g.keys.RunBundlesPrefix(runID)
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bundlestore: gcs list failed: %w", err)
		}
		if id, ok := g.keys.ParseRunRefKey(runID, attrs.Name); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (g *GCSBackend) ListBundles(ctx context.Context, prefix string, limit int) ([]Meta, error) {
	basePrefix := g.keys.BundlesPrefix()
	fullPrefix := basePrefix + prefix
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: fullPrefix})
	if limit <= 0 {
		limit = 1000
	}
	var out []Meta
	for len(out) < limit {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bundlestore: gcs list failed: %w", err)
		}
		id, ok := g.keys.ParseBundleKey(attrs.Name)
		if !ok {
			continue
		}
		out = append(out, Meta{BundleID: id, Size: attrs.Size, Modified: attrs.Updated})
	}
	return out, nil
}
