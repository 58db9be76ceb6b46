// Package envfilter implements the env filter (C14): a policy over a
// process's environment map that scrubs credentials before they reach a
// sandboxed tool call. Grounded directly on
// original_source/crates/assay-cli/src/env_filter.rs, which this package
// follows pattern-for-pattern (default scrub lists, safe-base fallback,
// sensitive-wins-over-safe-base ordering) rather than on spec.md §4.14 alone.
package envfilter

import (
	"fmt"
	"sort"
)

// Mode selects how a Filter treats variables that are not explicitly allowed.
type Mode int

const (
	// ModeScrub rejects sensitive keys and keeps safe-base and unknown keys.
	// This is the default, secure mode.
	ModeScrub Mode = iota
	// ModePassthrough passes every variable through unfiltered. Dangerous:
	// intended only for trusted, non-sandboxed execution.
	ModePassthrough
)

// defaultScrubPatterns covers cloud providers, AI/ML APIs, dev tools and CI,
// database connection strings, and credential-manager variables.
var defaultScrubPatterns = []string{
	// Cloud providers
	"AWS_*",
	"AZURE_*",
	"GCP_*",
	"GOOGLE_APPLICATION_CREDENTIALS",
	"GOOGLE_CLOUD_*",
	"DIGITALOCEAN_*",
	"LINODE_*",
	"VULTR_*",
	"CLOUDFLARE_*",
	// AI/ML APIs
	"OPENAI_*",
	"ANTHROPIC_*",
	"HF_*",
	"HUGGING*",
	"REPLICATE_*",
	"COHERE_*",
	"MISTRAL_*",
	"GROQ_*",
	"TOGETHER_*",
	"FIREWORKS_*",
	"DEEPSEEK_*",
	"PERPLEXITY_*",
	// Dev tools & CI
	"GITHUB_*",
	"GITLAB_*",
	"BITBUCKET_*",
	"CODECOV_*",
	"CIRCLECI_*",
	"TRAVIS_*",
	"NPM_*",
	"CARGO_REGISTRY_*",
	"PYPI_*",
	"DOCKER_*",
	// Generic secret patterns (suffix)
	"*_TOKEN",
	"*_SECRET",
	"*_KEY",
	"*_PASSWORD",
	"*_CREDENTIAL",
	"*_CREDENTIALS",
	"*_API_KEY",
	"*_AUTH",
	"*_PRIVATE_KEY",
	"*_ACCESS_KEY",
	"*_SECRET_KEY",
	// Database & connection strings
	"*_DATABASE_URL",
	"*_CONNECTION_STRING",
	"*_DSN",
	"DATABASE_URL",
	"REDIS_URL",
	"MONGODB_*",
	"POSTGRES_*",
	"MYSQL_*",
	// Credential managers and remote access
	"SSH_*",
	"GPG_*",
	"SOPS_*",
	"VAULT_*",
	"KUBECONFIG",
	"KUBE_*",
	"1PASSWORD_*",
	"OP_*",
	"PASS_*",
	"*_SESSION",
	"*_COOKIE",
	"*_BEARER",
	"*_JWT",
}

// safeBasePatterns are always passed through even in Scrub mode: essentials
// for basic process operation, locale, and common non-secret build tooling.
var safeBasePatterns = []string{
	"PATH",
	"HOME",
	"USER",
	"LOGNAME",
	"SHELL",
	"LANG",
	"LC_*",
	"TERM",
	"TMPDIR",
	"TMP",
	"TEMP",
	"XDG_*",
	"PWD",
	"OLDPWD",
	"SHLVL",
	"HOSTNAME",
	"DISPLAY",
	"WAYLAND_DISPLAY",
	"COLORTERM",
	"COLUMNS",
	"LINES",
	"CARGO",
	"CARGO_HOME",
	"CARGO_MANIFEST_DIR",
	"CARGO_PKG_*",
	"RUSTUP_HOME",
	"RUST_BACKTRACE",
	"RUST_LOG",
	"EDITOR",
	"VISUAL",
	"PAGER",
	"LESS",
	"CLICOLOR",
	"CLICOLOR_FORCE",
	"NO_COLOR",
	"FORCE_COLOR",
}

// Filter is an environment-scrubbing policy. The zero value is not usable;
// construct one with NewScrub or NewPassthrough.
type Filter struct {
	mode          Mode
	explicitAllow map[string]struct{}
}

// NewScrub returns a filter in the default, secure Scrub mode.
func NewScrub() *Filter {
	return &Filter{mode: ModeScrub, explicitAllow: map[string]struct{}{}}
}

// NewPassthrough returns a filter that passes every variable through.
func NewPassthrough() *Filter {
	return &Filter{mode: ModePassthrough, explicitAllow: map[string]struct{}{}}
}

// WithAllowed adds keys to the explicit allow list, which overrides the
// scrub patterns (but not in Passthrough mode, where everything already
// passes). Returns the receiver for chaining.
func (f *Filter) WithAllowed(keys ...string) *Filter {
	for _, k := range keys {
		f.explicitAllow[k] = struct{}{}
	}
	return f
}

// Result is the outcome of filtering an environment map.
type Result struct {
	// Filtered is the environment to pass to the child process.
	Filtered map[string]string
	// Scrubbed lists keys that were removed, sorted for deterministic
	// output. Values are never included.
	Scrubbed []string
	// PassedCount is len(Filtered).
	PassedCount int
}

// Filter applies the configured mode to env and returns the outcome.
func (f *Filter) Filter(env map[string]string) Result {
	if f.mode == ModePassthrough {
		filtered := make(map[string]string, len(env))
		for k, v := range env {
			filtered[k] = v
		}
		return Result{Filtered: filtered, Scrubbed: nil, PassedCount: len(filtered)}
	}
	return f.filterScrub(env)
}

func (f *Filter) filterScrub(env map[string]string) Result {
	filtered := make(map[string]string, len(env))
	var scrubbed []string

	for key, value := range env {
		if _, ok := f.explicitAllow[key]; ok {
			filtered[key] = value
			continue
		}

		// Sensitive match is checked before safe-base so that a key
		// matching both (e.g. LC_SECRET matches LC_* and *_SECRET) is
		// scrubbed rather than kept.
		if matchesAny(key, defaultScrubPatterns) {
			scrubbed = append(scrubbed, key)
			continue
		}

		if matchesAny(key, safeBasePatterns) {
			filtered[key] = value
			continue
		}

		filtered[key] = value
	}

	sort.Strings(scrubbed)
	return Result{Filtered: filtered, Scrubbed: scrubbed, PassedCount: len(filtered)}
}

func matchesAny(key string, patterns []string) bool {
	for _, p := range patterns {
		if matchesGlob(key, p) {
			return true
		}
	}
	return false
}

// matchesGlob implements the filter's wildcard grammar: exact match with no
// `*`; `PREFIX*`/`*SUFFIX`/`PREFIX*SUFFIX` for a single `*`; and, for
// patterns with more than one `*`, a substring check requiring every
// non-empty part to appear in key, in pattern order and without overlap.
func matchesGlob(key, pattern string) bool {
	if !containsStar(pattern) {
		return key == pattern
	}

	parts := splitStar(pattern)
	switch len(parts) {
	case 2:
		prefix, suffix := parts[0], parts[1]
		switch {
		case prefix == "" && suffix == "":
			return true
		case prefix == "":
			return hasSuffix(key, suffix)
		case suffix == "":
			return hasPrefix(key, prefix)
		default:
			return hasPrefix(key, prefix) && hasSuffix(key, suffix) && len(key) >= len(prefix)+len(suffix)
		}
	default:
		rest := key
		for _, p := range parts {
			if p == "" {
				continue
			}
			i := 0
			for i+len(p) <= len(rest) && rest[i:i+len(p)] != p {
				i++
			}
			if i+len(p) > len(rest) {
				return false
			}
			rest = rest[i+len(p):]
		}
		return true
	}
}

func containsStar(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '*' {
			return true
		}
	}
	return false
}

func splitStar(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '*' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func contains(s, substr string) bool {
	if len(substr) == 0 {
		return true
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Banner formats a one-line human-readable summary of a Result, for
// startup/sandbox-entry log lines.
func Banner(r Result, mode Mode) string {
	if mode == ModePassthrough {
		return fmt.Sprintf("passthrough (%d vars, DANGER)", r.PassedCount)
	}
	if len(r.Scrubbed) == 0 {
		return fmt.Sprintf("clean (%d vars)", r.PassedCount)
	}
	return fmt.Sprintf("scrubbed (%d passed, %d removed)", r.PassedCount, len(r.Scrubbed))
}
