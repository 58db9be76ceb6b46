package mandate

import (
	"time"

	"github.com/assay-run/assay/internal/dsse"
	"github.com/assay-run/assay/internal/mandate/globpat"
)

// OperationClass is how a candidate tool call is classified against a
// trust policy's commit_tools/write_tools glob lists.
type OperationClass string

const (
	OpRead    OperationClass = "read"
	OpWrite   OperationClass = "write"
	OpCommit  OperationClass = "commit"
)

// ValidationErrorKind enumerates mandate validation failures (spec.md
// §4.10), mirroring original_source mandate/policy.rs's error set.
type ValidationErrorKind int

const (
	ErrNotSigned ValidationErrorKind = iota
	ErrAudienceMismatch
	ErrIssuerNotTrusted
	ErrKeyNotTrusted
	ErrExpired
	ErrNotYetValid
	ErrOperationClassMismatch
	ErrTransactionRequired
	ErrToolNotInScope
)

func (k ValidationErrorKind) String() string {
	switch k {
	case ErrNotSigned:
		return "NotSigned"
	case ErrAudienceMismatch:
		return "AudienceMismatch"
	case ErrIssuerNotTrusted:
		return "IssuerNotTrusted"
	case ErrKeyNotTrusted:
		return "KeyNotTrusted"
	case ErrExpired:
		return "Expired"
	case ErrNotYetValid:
		return "NotYetValid"
	case ErrOperationClassMismatch:
		return "OperationClassMismatch"
	case ErrTransactionRequired:
		return "TransactionRequired"
	case ErrToolNotInScope:
		return "ToolNotInScope"
	default:
		return "Unknown"
	}
}

// ValidationError reports why a mandate failed validation against a
// candidate tool call.
type ValidationError struct {
	Kind ValidationErrorKind
	Msg  string
}

func (e *ValidationError) Error() string { return e.Msg }

// TrustPolicy is the set of mandate-acceptance rules (spec.md §4.10).
type TrustPolicy struct {
	RequireSigned               bool
	ExpectedAudience            string
	TrustedIssuers              []string
	TrustedKeyIDs               []string
	ClockSkewToleranceSeconds   int64
	CommitTools                 []string
	WriteTools                  []string
	TrustedEventSources         []string
	RequireSignedLifecycleEvents bool
}

// DefaultClockSkewToleranceSeconds is applied when a TrustPolicy leaves
// ClockSkewToleranceSeconds unset (zero value).
const DefaultClockSkewToleranceSeconds = 30

func (p TrustPolicy) skew() time.Duration {
	s := p.ClockSkewToleranceSeconds
	if s == 0 {
		s = DefaultClockSkewToleranceSeconds
	}
	return time.Duration(s) * time.Second
}

// ClassifyTool classifies a tool name against the policy's commit/write
// glob lists. Commit wins over Write; anything unmatched is Read.
func (p TrustPolicy) ClassifyTool(toolName string) (OperationClass, error) {
	if len(p.CommitTools) > 0 {
		match, err := globpat.MatchesAny(toolName, p.CommitTools)
		if err != nil {
			return "", err
		}
		if match {
			return OpCommit, nil
		}
	}
	if len(p.WriteTools) > 0 {
		match, err := globpat.MatchesAny(toolName, p.WriteTools)
		if err != nil {
			return "", err
		}
		if match {
			return OpWrite, nil
		}
	}
	return OpRead, nil
}

// Validate checks mandate against the trust policy for a candidate
// (toolName, now, transactionRef) per spec.md §4.10. resolver is used to
// check KeyNotTrusted and to perform signature verification when the
// mandate is signed.
func Validate(m *Mandate, p TrustPolicy, resolver dsse.KeyResolver, toolName string, now time.Time, transactionRef string) *ValidationError {
	if !m.IsSigned() {
		if p.RequireSigned {
			return &ValidationError{Kind: ErrNotSigned, Msg: "mandate is not signed"}
		}
	} else {
		if len(p.TrustedKeyIDs) > 0 && !stringInList(m.Signature.KeyID, p.TrustedKeyIDs) {
			return &ValidationError{Kind: ErrKeyNotTrusted, Msg: "mandate signing key is not in trusted_key_ids"}
		}
		if err := Verify(m, resolver); err != nil {
			return &ValidationError{Kind: ErrKeyNotTrusted, Msg: err.Error()}
		}
	}

	if p.ExpectedAudience != "" && m.Context.Audience != p.ExpectedAudience {
		return &ValidationError{Kind: ErrAudienceMismatch, Msg: "mandate audience does not match expected audience"}
	}
	if len(p.TrustedIssuers) > 0 && !stringInList(m.Context.Issuer, p.TrustedIssuers) {
		return &ValidationError{Kind: ErrIssuerNotTrusted, Msg: "mandate issuer is not trusted"}
	}

	skew := p.skew()
	if m.Validity.NotBefore != nil && now.Before(m.Validity.NotBefore.Add(-skew)) {
		return &ValidationError{Kind: ErrNotYetValid, Msg: "mandate is not yet valid"}
	}
	if m.Validity.ExpiresAt != nil && now.After(m.Validity.ExpiresAt.Add(skew)) {
		return &ValidationError{Kind: ErrExpired, Msg: "mandate has expired"}
	}

	class, err := p.ClassifyTool(toolName)
	if err != nil {
		return &ValidationError{Kind: ErrOperationClassMismatch, Msg: err.Error()}
	}
	if class == OpCommit && m.MandateKind != KindTransaction {
		return &ValidationError{Kind: ErrTransactionRequired, Msg: "commit-class tool calls require a transaction-kind mandate"}
	}
	if m.MandateKind == KindTransaction && m.Constraints.TransactionRef != "" && transactionRef != m.Constraints.TransactionRef {
		return &ValidationError{Kind: ErrOperationClassMismatch, Msg: "transaction_ref does not match mandate's bound transaction"}
	}

	inScope, err := globpat.MatchesAny(toolName, m.Scope.ToolPatterns)
	if err != nil {
		return &ValidationError{Kind: ErrToolNotInScope, Msg: err.Error()}
	}
	if !inScope {
		return &ValidationError{Kind: ErrToolNotInScope, Msg: "tool is not within mandate scope"}
	}

	return nil
}

func stringInList(s string, list []string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
