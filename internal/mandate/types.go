// Package mandate implements short-lived, content-addressed, DSSE-signed
// authorization tokens (spec.md §4.10 / E8) that scope what an agent may
// do: tool set, operation class, validity window, and transaction binding.
// Grounded on original_source/crates/assay-evidence/src/mandate/{signing,policy,glob}.rs.
package mandate

import (
	"time"

	"github.com/assay-run/assay/internal/dsse"
)

// PayloadType is the DSSE payload type mandates are signed under.
const PayloadType = dsse.PayloadTypeMandate

// Kind classifies the mandate's operational weight: a transaction-kind
// mandate is required to authorize Commit-class tool calls.
type Kind string

const (
	KindIntent      Kind = "intent"
	KindTransaction Kind = "transaction"
)

// AuthMethod names how the principal authenticated to the issuer.
type AuthMethod string

const (
	AuthMethodOIDC   AuthMethod = "oidc"
	AuthMethodAPIKey AuthMethod = "api_key"
	AuthMethodMTLS   AuthMethod = "mtls"
)

// Principal identifies who the mandate was issued to.
type Principal struct {
	Subject    string     `json:"subject"`
	AuthMethod AuthMethod `json:"auth_method"`
}

// Scope is the list of tool-name glob patterns (internal/mandate/globpat
// grammar) the mandate authorizes.
type Scope struct {
	ToolPatterns []string `json:"tool_patterns"`
}

// Validity is the mandate's usable time window. At least one of
// NotBefore/ExpiresAt SHOULD be set; both nil means "always valid", which
// trust policy may reject via require_signed-adjacent checks upstream.
type Validity struct {
	NotBefore *time.Time `json:"not_before,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Constraints holds opaque structured limits: maximum consumption count,
// per-scope argument bounds, and optional transaction binding.
type Constraints struct {
	MaxUses         *int64                 `json:"max_uses,omitempty"`
	ArgBounds       map[string]interface{} `json:"arg_bounds,omitempty"`
	TransactionRef  string                 `json:"transaction_ref,omitempty"`
}

// Context carries the audience/issuer the mandate was minted for.
type Context struct {
	Audience string `json:"audience"`
	Issuer   string `json:"issuer"`
}

// Content is the mandate payload before mandate_id/signature are computed.
type Content struct {
	MandateKind Kind        `json:"mandate_kind"`
	Principal   Principal   `json:"principal"`
	Scope       Scope       `json:"scope"`
	Validity    Validity    `json:"validity"`
	Constraints Constraints `json:"constraints"`
	Context     Context     `json:"context"`
}

// Mandate is the complete, signed document (E8).
type Mandate struct {
	MandateID   string             `json:"mandate_id"`
	MandateKind Kind               `json:"mandate_kind"`
	Principal   Principal          `json:"principal"`
	Scope       Scope              `json:"scope"`
	Validity    Validity           `json:"validity"`
	Constraints Constraints        `json:"constraints"`
	Context     Context            `json:"context"`
	Signature   *dsse.SignatureRecord `json:"signature,omitempty"`
}

// IsSigned reports whether mandate carries a signature envelope.
func (m *Mandate) IsSigned() bool { return m.Signature != nil }
