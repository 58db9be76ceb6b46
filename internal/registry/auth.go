package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
)

// jwtExpiry extracts the exp claim from token if it parses as a JWT. The
// registry's signing key is not available here (this is a pure expiry
// hint, not an authorization decision), so the token is decoded without
// signature verification; ok is false for anything that is not a
// well-formed three-part JWT, which access tokens are not required to be.
func jwtExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// TokenProvider supplies an (optional) bearer token for registry requests,
// grounded on auth.rs's TokenProvider enum.
type TokenProvider interface {
	// GetToken returns the current token, or "" if unauthenticated.
	GetToken(ctx context.Context) (string, error)
	// IsAuthenticated reports whether this provider carries credentials.
	IsAuthenticated() bool
}

// staticTokenProvider always returns the same token.
type staticTokenProvider struct{ token string }

// StaticToken returns a TokenProvider that always presents token.
func StaticToken(token string) TokenProvider { return staticTokenProvider{token: token} }

func (s staticTokenProvider) GetToken(context.Context) (string, error) { return s.token, nil }
func (s staticTokenProvider) IsAuthenticated() bool                    { return true }

// noToken authenticates nothing.
type noToken struct{}

// NoAuth is the TokenProvider used when no credentials are configured.
var NoAuth TokenProvider = noToken{}

func (noToken) GetToken(context.Context) (string, error) { return "", nil }
func (noToken) IsAuthenticated() bool                     { return false }

// TokenProviderFromEnv follows auth.rs's TokenProvider::from_env priority:
// 1. ASSAY_REGISTRY_TOKEN (static token)
// 2. ASSAY_REGISTRY_OIDC=1/true + GitHub Actions env (OIDC exchange)
// 3. no auth
func TokenProviderFromEnv() TokenProvider {
	if token := os.Getenv("ASSAY_REGISTRY_TOKEN"); token != "" {
		return StaticToken(token)
	}

	oidc := os.Getenv("ASSAY_REGISTRY_OIDC")
	if oidc == "1" || strings.EqualFold(oidc, "true") {
		if provider, err := OidcProviderFromGitHubActions(); err == nil {
			return provider
		}
	}

	return NoAuth
}

// cachedToken is a registry access token plus its expiry.
type cachedToken struct {
	token     string
	expiresAt time.Time
}

// OidcProvider exchanges a GitHub Actions OIDC token for a registry access
// token, caching the result. Grounded on auth.rs's OidcProvider.
type OidcProvider struct {
	tokenRequestURL     string
	requestToken        string
	registryExchangeURL string
	audience            string

	mu    sync.RWMutex
	cache *cachedToken

	http *http.Client
}

// tokenExpiryBuffer is the pre-expiry refresh margin: 60s buffer plus 30s
// clock-skew tolerance, matching auth.rs's 90-second constant.
const tokenExpiryBuffer = 90 * time.Second

// oidcMaxRetries bounds the exchange retry loop; the backoff itself is
// capped at 30s regardless of how many retries remain.
const oidcMaxRetries = 3

// oidcMaxBackoff caps the exponential backoff between retries.
const oidcMaxBackoff = 30 * time.Second

// OidcProviderFromGitHubActions builds a provider from the environment
// GitHub Actions sets when `permissions: id-token: write` is granted.
func OidcProviderFromGitHubActions() (*OidcProvider, error) {
	tokenRequestURL := os.Getenv("ACTIONS_ID_TOKEN_REQUEST_URL")
	if tokenRequestURL == "" {
		return nil, fmt.Errorf("registry: ACTIONS_ID_TOKEN_REQUEST_URL not set - not in GitHub Actions or id-token permission not granted")
	}
	requestToken := os.Getenv("ACTIONS_ID_TOKEN_REQUEST_TOKEN")
	if requestToken == "" {
		return nil, fmt.Errorf("registry: ACTIONS_ID_TOKEN_REQUEST_TOKEN not set")
	}

	registryBase := os.Getenv("ASSAY_REGISTRY_URL")
	if registryBase == "" {
		registryBase = DefaultBaseURL
	}
	registryBase = strings.TrimSuffix(registryBase, "/")

	return NewOidcProvider(tokenRequestURL, requestToken, registryBase+"/auth/oidc/exchange", "https://registry.getassay.dev"), nil
}

// NewOidcProvider builds a provider from explicit URLs (used directly by
// tests and by OidcProviderFromGitHubActions).
func NewOidcProvider(tokenRequestURL, requestToken, registryExchangeURL, audience string) *OidcProvider {
	return &OidcProvider{
		tokenRequestURL:     tokenRequestURL,
		requestToken:        requestToken,
		registryExchangeURL: registryExchangeURL,
		audience:            audience,
		http:                &http.Client{Timeout: 30 * time.Second},
	}
}

var _ TokenProvider = (*OidcProvider)(nil)

func (o *OidcProvider) IsAuthenticated() bool { return true }

// GetToken returns the cached registry token if it has more than
// tokenExpiryBuffer left before expiry, otherwise refreshes it.
func (o *OidcProvider) GetToken(ctx context.Context) (string, error) {
	o.mu.RLock()
	cached := o.cache
	o.mu.RUnlock()
	if cached != nil && cached.expiresAt.After(time.Now().Add(tokenExpiryBuffer)) {
		return cached.token, nil
	}
	return o.exchangeTokenWithRetry(ctx)
}

// ClearCache drops the cached token, forcing the next GetToken to refresh.
func (o *OidcProvider) ClearCache() {
	o.mu.Lock()
	o.cache = nil
	o.mu.Unlock()
}

func (o *OidcProvider) exchangeTokenWithRetry(ctx context.Context) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = oidcMaxBackoff
	bo.Multiplier = 2
	policy := backoff.WithMaxRetries(bo, oidcMaxRetries)

	var token string
	err := backoff.Retry(func() error {
		t, err := o.exchangeToken(ctx)
		if err != nil {
			return err
		}
		token = t
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return "", err
	}
	return token, nil
}

func (o *OidcProvider) exchangeToken(ctx context.Context) (string, error) {
	oidcToken, err := o.githubOIDCToken(ctx)
	if err != nil {
		return "", err
	}
	return o.exchangeForRegistryToken(ctx, oidcToken)
}

type githubOIDCResponse struct {
	Value string `json:"value"`
}

func (o *OidcProvider) githubOIDCToken(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s&audience=%s", o.tokenRequestURL, o.audience)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("registry: failed to build GitHub OIDC request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.requestToken)
	req.Header.Set("Accept", "application/json; api-version=2.0")
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry: failed to request GitHub OIDC token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("registry: GitHub OIDC request failed: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var parsed githubOIDCResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("registry: failed to parse GitHub OIDC response: %w", err)
	}
	return parsed.Value, nil
}

type registryTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (o *OidcProvider) exchangeForRegistryToken(ctx context.Context, oidcToken string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"token":              oidcToken,
		"grant_type":         "urn:ietf:params:oauth:grant-type:token-exchange",
		"subject_token_type": "urn:ietf:params:oauth:token-type:jwt",
	})
	if err != nil {
		return "", fmt.Errorf("registry: failed to marshal token exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.registryExchangeURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("registry: failed to build token exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry: failed to exchange token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return "", fmt.Errorf("registry: OIDC token exchange failed: unauthorized")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("registry: token exchange failed: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var parsed registryTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("registry: failed to parse registry token response: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	if claimedExpiry, ok := jwtExpiry(parsed.AccessToken); ok && claimedExpiry.Before(expiresAt) {
		// Defense in depth: if the access token is itself a JWT whose own
		// exp claim is earlier than the server's expires_in says, honor
		// the earlier of the two so a clock-skewed or misreported
		// expires_in never causes GetToken to hand out a token the
		// registry has already stopped accepting.
		expiresAt = claimedExpiry
	}

	o.mu.Lock()
	o.cache = &cachedToken{
		token:     parsed.AccessToken,
		expiresAt: expiresAt,
	}
	o.mu.Unlock()

	return parsed.AccessToken, nil
}
