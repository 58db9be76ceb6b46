package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/assay-run/assay/internal/canon"
)

// DefaultBaseURL is the production registry endpoint, matching auth.rs's
// ASSAY_REGISTRY_URL default.
const DefaultBaseURL = "https://registry.getassay.dev/v1"

// RegistryConfig mirrors resolver.rs's RegistryConfig, read from the
// environment by default.
type RegistryConfig struct {
	BaseURL string
	Token   TokenProvider
}

// RegistryConfigFromEnv builds a RegistryConfig the way resolver.rs's
// Default impl does: base URL from ASSAY_REGISTRY_URL (or the production
// default), token provider from TokenProviderFromEnv.
func RegistryConfigFromEnv() RegistryConfig {
	base := os.Getenv("ASSAY_REGISTRY_URL")
	if base == "" {
		base = DefaultBaseURL
	}
	return RegistryConfig{BaseURL: strings.TrimSuffix(base, "/"), Token: TokenProviderFromEnv()}
}

// Client fetches packs from the registry over HTTP, applying the token
// provider's Authorization header and conditional If-None-Match requests.
type Client struct {
	baseURL string
	token   TokenProvider
	http    *http.Client
}

// NewClient constructs a client from cfg. No third-party HTTP client
// wrapper (retryablehttp, resty, etc.) appears anywhere in the retrieval
// pack's combined dependency closure, so net/http is the grounded choice
// here; retry/backoff semantics live one layer up, in OidcProvider's token
// exchange, mirroring auth.rs's own split (reqwest::get direct, backoff
// only around the OIDC exchange).
func NewClient(cfg RegistryConfig) *Client {
	return &Client{baseURL: cfg.BaseURL, token: cfg.Token, http: &http.Client{Timeout: 30 * time.Second}}
}

// BaseURL returns the registry's base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type fetchResponseBody struct {
	Content   string `json:"content"`
	Digest    string `json:"digest"`
	ETag      string `json:"etag,omitempty"`
	Signature string `json:"signature,omitempty"` // base64-encoded DSSE envelope JSON
}

// FetchPack fetches name@version, sending etag (if non-empty) as
// If-None-Match. A 304 response returns (nil, nil) so the caller falls
// back to its cached entry, matching resolver.rs's resolve_registry
// handling of Option<FetchResult>.
func (c *Client) FetchPack(ctx context.Context, name, version, etag string) (*FetchResult, error) {
	url := fmt.Sprintf("%s/packs/%s/%s", c.baseURL, name, version)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: failed to build request: %w", err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if token, err := c.token.GetToken(ctx); err != nil {
		return nil, fmt.Errorf("registry: failed to get auth token: %w", err)
	} else if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("registry: unauthorized fetching %s@%s", name, version)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("registry: %s@%s not found", name, version)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("registry: fetch failed with HTTP %d: %s", resp.StatusCode, string(body))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("registry: failed to read response body: %w", err)
	}
	var body fetchResponseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("registry: invalid response body: %w", err)
	}

	computed := canon.DigestBytes([]byte(body.Content))

	result := &FetchResult{
		Content:        body.Content,
		ComputedDigest: computed,
		ETag:           body.ETag,
		CacheControl:   resp.Header.Get("Cache-Control"),
	}
	if body.Signature != "" {
		sig, err := decodeBase64Signature(body.Signature)
		if err != nil {
			return nil, err
		}
		result.Signature = sig
	}
	return result, nil
}
