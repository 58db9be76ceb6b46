// Package bundlestore is the content-addressed evidence bundle store (C9):
// a Backend interface with local filesystem, in-memory, and Google Cloud
// Storage implementations, grounded on
// original_source/crates/assay-evidence/src/store/object_store_backend.rs.
package bundlestore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a bundle_id has no stored object.
var ErrNotFound = errors.New("bundlestore: bundle not found")

// ErrAlreadyExists is returned by a conditional put that loses the race (or
// finds the object already there); callers treat it as success, since
// bundle_ids are content-addressed and a duplicate put is a no-op.
var ErrAlreadyExists = errors.New("bundlestore: bundle already exists")

// Meta describes a stored bundle without fetching its bytes.
type Meta struct {
	BundleID string
	Size     int64
	Modified time.Time
}

// Backend is the storage contract every bundle store implementation
// satisfies, mirroring the Rust BundleStore trait.
type Backend interface {
	PutBundle(ctx context.Context, bundleID string, data []byte) error
	GetBundle(ctx context.Context, bundleID string) ([]byte, error)
	BundleExists(ctx context.Context, bundleID string) (bool, error)
	LinkRunBundle(ctx context.Context, runID, bundleID string) error
	ListBundlesForRun(ctx context.Context, runID string) ([]string, error)
	ListBundles(ctx context.Context, prefix string, limit int) ([]Meta, error)
}

// KeyBuilder derives stable storage keys under an optional prefix, matching
// the layout the Rust KeyBuilder produces: "<prefix>/bundles/<id>" for
// content and "<prefix>/runs/<run_id>/bundles/<bundle_id>" for run links.
type KeyBuilder struct {
	prefix string
}

// NewKeyBuilder trims a trailing slash so joins never produce "//".
func NewKeyBuilder(prefix string) KeyBuilder {
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	return KeyBuilder{prefix: prefix}
}

func (k KeyBuilder) join(parts ...string) string {
	out := k.prefix
	for _, p := range parts {
		out += "/" + p
	}
	for len(out) > 0 && out[0] == '/' {
		out = out[1:]
	}
	return out
}

func (k KeyBuilder) BundleKey(bundleID string) string {
	return k.join("bundles", bundleID)
}

func (k KeyBuilder) BundlesPrefix() string {
	return k.join("bundles") + "/"
}

func (k KeyBuilder) RunBundleRefKey(runID, bundleID string) string {
	return k.join("runs", runID, "bundles", bundleID)
}

func (k KeyBuilder) RunBundlesPrefix(runID string) string {
	return k.join("runs", runID, "bundles") + "/"
}

// ParseBundleKey recovers a bundle_id from a full object key under this
// builder's bundles prefix, or returns ("", false) if it doesn't match.
func (k KeyBuilder) ParseBundleKey(key string) (string, bool) {
	prefix := k.BundlesPrefix()
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	return key[len(prefix):], true
}

// ParseRunRefKey recovers a bundle_id from a run-link object key under this
// builder's run-bundles prefix for runID.
func (k KeyBuilder) ParseRunRefKey(runID, key string) (string, bool) {
	prefix := k.RunBundlesPrefix(runID)
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	return key[len(prefix):], true
}

// WrapAlreadyExists normalizes a backend's native AlreadyExists signal into
// the package-level sentinel, attaching the bundle_id for context.
func WrapAlreadyExists(bundleID string) error {
	return fmt.Errorf("%w: %s", ErrAlreadyExists, bundleID)
}
