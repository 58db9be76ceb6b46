package registry

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/assay-run/assay/internal/canon"
	"github.com/assay-run/assay/internal/dsse"
)

// DefaultCacheTTL is the fallback expiry window when a fetch response
// carries no Cache-Control max-age, mirroring cache.rs's DEFAULT_TTL_SECS.
const DefaultCacheTTL = 24 * time.Hour

// ErrDigestMismatch reports that a cached pack's recomputed content digest
// does not match the digest recorded in its metadata: cache corruption.
var ErrDigestMismatch = errors.New("registry: cached pack digest mismatch")

// CacheMeta is metadata.json's content.
type CacheMeta struct {
	FetchedAt   time.Time `json:"fetched_at"`
	Digest      string    `json:"digest"`
	ETag        string    `json:"etag,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	KeyID       string    `json:"key_id,omitempty"`
	RegistryURL string    `json:"registry_url,omitempty"`
}

// CacheEntry is what Get returns: content plus its metadata and, if
// present, a still-verifiable signature envelope.
type CacheEntry struct {
	Content   string
	Metadata  CacheMeta
	Signature *dsse.SignatureRecord
}

// PackCache is a per-(name,version) directory cache under a root
// directory (default ~/.assay/cache/packs), grounded on cache.rs.
type PackCache struct {
	dir string
}

// NewPackCache opens (and creates, if absent) the default cache root.
func NewPackCache() (*PackCache, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return NewPackCacheWithDir(filepath.Join(os.TempDir(), "assay-cache", "packs"))
	}
	return NewPackCacheWithDir(filepath.Join(home, ".assay", "cache", "packs"))
}

// NewPackCacheWithDir opens a cache rooted at dir.
func NewPackCacheWithDir(dir string) (*PackCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("registry: failed to create cache dir: %w", err)
	}
	return &PackCache{dir: dir}, nil
}

func (c *PackCache) packDir(name, version string) string {
	return filepath.Join(c.dir, name, version)
}

// Get returns the cached entry for name@version, reverifying its content
// digest against the recorded metadata. A digest mismatch returns
// ErrDigestMismatch rather than silently serving corrupt content; callers
// (the resolver) are expected to Evict and re-fetch on that error. A
// missing entry returns (nil, nil).
func (c *PackCache) Get(name, version string) (*CacheEntry, error) {
	dir := c.packDir(name, version)
	contentPath := filepath.Join(dir, "pack.yaml")
	metaPath := filepath.Join(dir, "metadata.json")

	contentBytes, err := os.ReadFile(contentPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: failed to read cached pack: %w", err)
	}

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: corrupt cache metadata for %s@%s: %w", name, version, err)
	}
	var meta CacheMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("registry: corrupt cache metadata for %s@%s: %w", name, version, err)
	}

	content := string(contentBytes)
	computed := canon.DigestBytes(contentBytes)
	if computed != meta.Digest {
		return nil, fmt.Errorf("%w: %s@%s expected %s, got %s", ErrDigestMismatch, name, version, meta.Digest, computed)
	}

	entry := &CacheEntry{Content: content, Metadata: meta}

	// A corrupt signature.json degrades gracefully: the signature is
	// dropped but the (digest-verified) content is still served.
	sigPath := filepath.Join(dir, "signature.json")
	if sigBytes, err := os.ReadFile(sigPath); err == nil {
		var rec dsse.SignatureRecord
		if json.Unmarshal(sigBytes, &rec) == nil {
			entry.Signature = &rec
		}
	}

	if time.Now().After(meta.ExpiresAt) {
		return nil, nil
	}

	return entry, nil
}

// IsCached reports whether a non-expired entry exists for name@version,
// without reverifying its digest.
func (c *PackCache) IsCached(name, version string) bool {
	if _, err := os.Stat(filepath.Join(c.packDir(name, version), "pack.yaml")); err != nil {
		return false
	}
	meta, err := c.GetMetadata(name, version)
	if err != nil || meta == nil {
		return false
	}
	return !time.Now().After(meta.ExpiresAt)
}

// GetMetadata reads metadata.json without loading pack content.
func (c *PackCache) GetMetadata(name, version string) (*CacheMeta, error) {
	data, err := os.ReadFile(filepath.Join(c.packDir(name, version), "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var meta CacheMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("registry: corrupt cache metadata for %s@%s: %w", name, version, err)
	}
	return &meta, nil
}

// GetETag returns the stored ETag for name@version, or "" if none is
// cached, for use as a conditional If-None-Match request header.
func (c *PackCache) GetETag(name, version string) string {
	meta, err := c.GetMetadata(name, version)
	if err != nil || meta == nil {
		return ""
	}
	return meta.ETag
}

// FetchResult is what the registry client hands the cache to persist.
type FetchResult struct {
	Content         string
	ComputedDigest  string
	ETag            string
	CacheControl    string // raw header value, parsed via parseCacheControlExpiry
	Signature       *dsse.SignatureRecord
}

// Put atomically writes content, metadata, and (if present) a signature
// envelope into the cache, using a .tmp-then-rename write for each file so
// a crash mid-write never leaves a partially-written cache entry visible.
func (c *PackCache) Put(name, version string, result *FetchResult, registryURL string) error {
	dir := c.packDir(name, version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: failed to create cache dir: %w", err)
	}

	if err := atomicWrite(filepath.Join(dir, "pack.yaml"), []byte(result.Content)); err != nil {
		return err
	}

	meta := CacheMeta{
		FetchedAt:   time.Now().UTC(),
		Digest:      result.ComputedDigest,
		ETag:        result.ETag,
		ExpiresAt:   time.Now().UTC().Add(parseCacheControlExpiry(result.CacheControl)),
		RegistryURL: registryURL,
	}
	if result.Signature != nil {
		meta.KeyID = result.Signature.KeyID
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: failed to marshal cache metadata: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, "metadata.json"), metaBytes); err != nil {
		return err
	}

	if result.Signature != nil {
		sigBytes, err := json.MarshalIndent(result.Signature, "", "  ")
		if err != nil {
			return fmt.Errorf("registry: failed to marshal cached signature: %w", err)
		}
		if err := atomicWrite(filepath.Join(dir, "signature.json"), sigBytes); err != nil {
			return err
		}
	}

	return nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("registry: failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("registry: failed to finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Evict removes a cache entry entirely (used after a digest-mismatch or
// pinned-digest failure).
func (c *PackCache) Evict(name, version string) error {
	err := os.RemoveAll(c.packDir(name, version))
	if err != nil {
		return fmt.Errorf("registry: failed to evict %s@%s: %w", name, version, err)
	}
	return nil
}

// Clear removes every cached pack.
func (c *PackCache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(c.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// List returns "name@version" for every cached pack.
func (c *PackCache) List() ([]string, error) {
	nameDirs, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, nd := range nameDirs {
		if !nd.IsDir() {
			continue
		}
		versionDirs, err := os.ReadDir(filepath.Join(c.dir, nd.Name()))
		if err != nil {
			continue
		}
		for _, vd := range versionDirs {
			if vd.IsDir() {
				out = append(out, nd.Name()+"@"+vd.Name())
			}
		}
	}
	return out, nil
}

// parseCacheControlExpiry extracts max-age from a raw Cache-Control header
// value, falling back to DefaultCacheTTL when absent or unparsable.
func parseCacheControlExpiry(cacheControl string) time.Duration {
	if cacheControl == "" {
		return DefaultCacheTTL
	}
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		const prefix = "max-age="
		if !strings.HasPrefix(directive, prefix) {
			continue
		}
		seconds, err := strconv.Atoi(strings.TrimPrefix(directive, prefix))
		if err != nil || seconds < 0 {
			return DefaultCacheTTL
		}
		return time.Duration(seconds) * time.Second
	}
	return DefaultCacheTTL
}

// decodeBase64Signature is a small helper used by callers that receive a
// base64-wrapped DSSE envelope over the wire (registry responses embed the
// signature this way rather than as a raw JSON object).
func decodeBase64Signature(b64 string) (*dsse.SignatureRecord, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("registry: invalid base64 signature envelope: %w", err)
	}
	var rec dsse.SignatureRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("registry: invalid signature envelope JSON: %w", err)
	}
	return &rec, nil
}
