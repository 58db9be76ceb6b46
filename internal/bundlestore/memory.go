package bundlestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is an in-process store for tests and single-process
// deployments, mirroring object_store::memory::InMemory.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string][]byte
	stamps  map[string]time.Time
	keys    KeyBuilder
}

// NewMemoryBackend constructs an empty in-memory store under prefix.
func NewMemoryBackend(prefix string) *MemoryBackend {
	return &MemoryBackend{
		objects: map[string][]byte{},
		stamps:  map[string]time.Time{},
		keys:    NewKeyBuilder(prefix),
	}
}

var _ Backend = (*MemoryBackend)(nil)

func (m *MemoryBackend) putIfNotExists(key string, data []byte, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.objects[key]; exists {
		return WrapAlreadyExists(key)
	}
	m.objects[key] = data
	m.stamps[key] = now
	return nil
}

func (m *MemoryBackend) PutBundle(ctx context.Context, bundleID string, data []byte) error {
	return m.putIfNotExists(m.keys.BundleKey(bundleID), data, time.Now())
}

func (m *MemoryBackend) GetBundle(ctx context.Context, bundleID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[m.keys.BundleKey(bundleID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryBackend) BundleExists(ctx context.Context, bundleID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[m.keys.BundleKey(bundleID)]
	return ok, nil
}

func (m *MemoryBackend) LinkRunBundle(ctx context.Context, runID, bundleID string) error {
	key := m.keys.RunBundleRefKey(runID, bundleID)
	err := m.putIfNotExists(key, []byte(bundleID), time.Now())
	if err != nil && errors.Is(err, ErrAlreadyExists) {
		return nil // idempotent
	}
	return err
}

func (m *MemoryBackend) ListBundlesForRun(ctx context.Context, runID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for key := range m.objects {
		if id, ok := m.keys.ParseRunRefKey(runID, key); ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBackend) ListBundles(ctx context.Context, prefix string, limit int) ([]Meta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	basePrefix := m.keys.BundlesPrefix()
	var metas []Meta
	for key, data := range m.objects {
		id, ok := m.keys.ParseBundleKey(key)
		if !ok {
			continue
		}
		if prefix != "" && !strings.HasPrefix(key, basePrefix+prefix) {
			continue
		}
		metas = append(metas, Meta{BundleID: id, Size: int64(len(data)), Modified: m.stamps[key]})
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
