package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/assay-run/assay/internal/canon"
	"github.com/assay-run/assay/internal/dsse"
	"github.com/assay-run/assay/internal/trust"
)

// ResolveSource identifies where a ResolvedPack's content came from,
// grounded on resolver.rs's ResolveSource enum.
type ResolveSource struct {
	Kind string // "local", "bundled", "cache", "registry", "byos"
	// Detail carries the path/name/url for Local/Bundled/Registry/Byos;
	// Cache carries no detail.
	Detail string
}

func (s ResolveSource) String() string {
	if s.Detail == "" {
		return s.Kind
	}
	return s.Kind + ":" + s.Detail
}

const (
	sourceKindLocal    = "local"
	sourceKindBundled  = "bundled"
	sourceKindCache    = "cache"
	sourceKindRegistry = "registry"
	sourceKindByos     = "byos"
)

// VerifyOptions controls how ResolvedPack signatures are checked.
type VerifyOptions struct {
	AllowUnsigned bool
}

// VerifyResult records that a pack's signature was checked and by which
// key.
type VerifyResult struct {
	KeyID string
}

// ResolvedPack is the pack content a resolve operation produced.
type ResolvedPack struct {
	Content      string
	Source       ResolveSource
	Digest       string
	Verification *VerifyResult
}

// ResolverConfig configures a Resolver, grounded on resolver.rs's
// ResolverConfig.
type ResolverConfig struct {
	Registry        RegistryConfig
	NoCache         bool
	AllowUnsigned   bool
	BundledPacksDir string
}

// DefaultResolverConfig reads registry settings from the environment, with
// caching and signature verification both enabled.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{Registry: RegistryConfigFromEnv()}
}

// Resolver resolves pack references to verified content, applying
// resolver.rs's five-step priority: local file, bundled pack, cache hit
// (with pinned-digest revalidation), registry fetch (with ETag
// revalidation and signature verification), BYOS.
type Resolver struct {
	client     *Client
	cache      *PackCache
	trustStore *trust.Store
	config     ResolverConfig
	httpClient *http.Client
}

// NewResolver builds a resolver with default configuration: registry
// settings from the environment and the default on-disk cache.
func NewResolver(trustStore *trust.Store) (*Resolver, error) {
	return NewResolverWithConfig(DefaultResolverConfig(), trustStore)
}

// NewResolverWithConfig builds a resolver with explicit configuration.
func NewResolverWithConfig(config ResolverConfig, trustStore *trust.Store) (*Resolver, error) {
	cache, err := NewPackCache()
	if err != nil {
		return nil, err
	}
	return NewResolverWithComponents(NewClient(config.Registry), cache, trustStore, config), nil
}

// NewResolverWithComponents builds a resolver from already-constructed
// collaborators, for tests.
func NewResolverWithComponents(client *Client, cache *PackCache, trustStore *trust.Store, config ResolverConfig) *Resolver {
	return &Resolver{
		client:     client,
		cache:      cache,
		trustStore: trustStore,
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Cache returns the resolver's pack cache.
func (r *Resolver) Cache() *PackCache { return r.cache }

// TrustStore returns the resolver's trust store.
func (r *Resolver) TrustStore() *trust.Store { return r.trustStore }

// Resolve parses reference and resolves it.
func (r *Resolver) Resolve(ctx context.Context, reference string) (*ResolvedPack, error) {
	ref, err := ParseRef(reference)
	if err != nil {
		return nil, err
	}
	return r.ResolveRef(ctx, ref)
}

// ResolveRef resolves an already-parsed reference.
func (r *Resolver) ResolveRef(ctx context.Context, ref Ref) (*ResolvedPack, error) {
	switch ref.Kind {
	case RefLocal:
		return r.resolveLocal(ref.Path)
	case RefBundled:
		return r.resolveBundled(ref.Name)
	case RefRegistry:
		return r.resolveRegistry(ctx, ref.Name, ref.Version, ref.PinnedDigest)
	case RefByos:
		return r.resolveByos(ctx, ref.URL)
	default:
		return nil, fmt.Errorf("registry: unknown reference kind")
	}
}

func (r *Resolver) resolveLocal(path string) (*ResolvedPack, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("registry: local pack %q not found", path)
		}
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to read local file: %w", err)
	}
	digest := canon.DigestBytes(content)
	return &ResolvedPack{
		Content: string(content),
		Source:  ResolveSource{Kind: sourceKindLocal, Detail: path},
		Digest:  digest,
		// Local files are not verified.
	}, nil
}

func (r *Resolver) resolveBundled(name string) (*ResolvedPack, error) {
	candidates := []string{}
	if r.config.BundledPacksDir != "" {
		candidates = append(candidates, filepath.Join(r.config.BundledPacksDir, name+".yaml"))
	}
	candidates = append(candidates, filepath.Join("packs", "open", name+".yaml"), filepath.Join("packs", name+".yaml"))

	for _, path := range candidates {
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		digest := canon.DigestBytes(content)
		return &ResolvedPack{
			Content: string(content),
			Source:  ResolveSource{Kind: sourceKindBundled, Detail: name},
			Digest:  digest,
		}, nil
	}
	return nil, fmt.Errorf("registry: bundled pack %q not found", name)
}

func (r *Resolver) resolveRegistry(ctx context.Context, name, version, pinnedDigest string) (*ResolvedPack, error) {
	if !r.config.NoCache {
		if cached, err := r.tryCache(name, version, pinnedDigest); err != nil {
			return nil, err
		} else if cached != nil {
			return cached, nil
		}
	}

	etag := ""
	if !r.config.NoCache {
		etag = r.cache.GetETag(name, version)
	}

	fetchResult, err := r.client.FetchPack(ctx, name, version, etag)
	if err != nil {
		return nil, err
	}
	if fetchResult == nil {
		// 304 Not Modified: serve the cached entry.
		entry, err := r.cache.Get(name, version)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return nil, fmt.Errorf("registry: 304 response but no cached entry for %s@%s", name, version)
		}
		return &ResolvedPack{
			Content: entry.Content,
			Source:  ResolveSource{Kind: sourceKindCache},
			Digest:  entry.Metadata.Digest,
		}, nil
	}

	if pinnedDigest != "" && fetchResult.ComputedDigest != pinnedDigest {
		return nil, fmt.Errorf("registry: digest mismatch for %s@%s: expected %s, got %s", name, version, pinnedDigest, fetchResult.ComputedDigest)
	}

	verification, err := r.verifyFetched(name, fetchResult)
	if err != nil {
		return nil, err
	}

	if !r.config.NoCache {
		if err := r.cache.Put(name, version, fetchResult, r.client.BaseURL()); err != nil {
			// Cache write failures never fail the resolve itself.
			_ = err
		}
	}

	return &ResolvedPack{
		Content:      fetchResult.Content,
		Source:       ResolveSource{Kind: sourceKindRegistry, Detail: r.client.BaseURL()},
		Digest:       fetchResult.ComputedDigest,
		Verification: verification,
	}, nil
}

// verifyFetched checks a fetched pack's signature. With AllowUnsigned set, a
// missing signature or a failed verification returns a nil result instead
// of an error.
func (r *Resolver) verifyFetched(name string, fetchResult *FetchResult) (*VerifyResult, error) {
	if fetchResult.Signature == nil {
		if r.config.AllowUnsigned {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: pack %q has no signature and unsigned packs are not allowed", name)
	}

	tree, err := canon.DecodeYAMLStrict(fetchResult.Content)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to parse pack content for verification: %w", err)
	}
	obj, ok := tree.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("registry: pack content is not a mapping")
	}

	err = dsse.VerifyContent(obj, dsse.PayloadTypePack, "content_id", fetchResult.Signature, r.trustStore)
	if err != nil {
		if r.config.AllowUnsigned {
			return nil, nil
		}
		return nil, fmt.Errorf("registry: pack %q signature verification failed: %w", name, err)
	}
	return &VerifyResult{KeyID: fetchResult.Signature.KeyID}, nil
}

// tryCache looks for a cached entry, enforcing the pinned digest if the
// caller requested one and evicting on mismatch so the caller re-fetches.
func (r *Resolver) tryCache(name, version, pinnedDigest string) (*ResolvedPack, error) {
	entry, err := r.cache.Get(name, version)
	if err != nil {
		if errors.Is(err, ErrDigestMismatch) {
			_ = r.cache.Evict(name, version)
			return nil, nil
		}
		return nil, nil
	}
	if entry == nil {
		return nil, nil
	}

	if pinnedDigest != "" && entry.Metadata.Digest != pinnedDigest {
		if err := r.cache.Evict(name, version); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &ResolvedPack{
		Content: entry.Content,
		Source:  ResolveSource{Kind: sourceKindCache},
		Digest:  entry.Metadata.Digest,
	}, nil
}

func (r *Resolver) resolveByos(ctx context.Context, url string) (*ResolvedPack, error) {
	if hasHTTPScheme(url) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("registry: failed to build BYOS request: %w", err)
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("registry: failed to fetch BYOS pack: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("registry: BYOS pack %q not found (HTTP %d)", url, resp.StatusCode)
		}

		content, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, fmt.Errorf("registry: failed to read BYOS response: %w", err)
		}

		digest := canon.DigestBytes(content)
		return &ResolvedPack{
			Content: string(content),
			Source:  ResolveSource{Kind: sourceKindByos, Detail: url},
			Digest:  digest,
		}, nil
	}

	// S3/GCS/Azure BYOS would route through internal/bundlestore's cloud
	// backends; until a storage-URL-to-backend adapter exists, those
	// schemes fail closed rather than silently skip verification.
	return nil, fmt.Errorf("registry: BYOS scheme not yet supported: %s", url)
}

func hasHTTPScheme(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}

// Prefetch fetches and caches reference for offline use, without
// returning its content. Local/bundled references have nothing to
// prefetch.
func (r *Resolver) Prefetch(ctx context.Context, reference string) error {
	ref, err := ParseRef(reference)
	if err != nil {
		return err
	}
	if ref.Kind != RefRegistry {
		return nil
	}
	fetchResult, err := r.client.FetchPack(ctx, ref.Name, ref.Version, "")
	if err != nil {
		return err
	}
	if fetchResult == nil {
		return nil
	}
	return r.cache.Put(ref.Name, ref.Version, fetchResult, r.client.BaseURL())
}
