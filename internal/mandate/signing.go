package mandate

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/assay-run/assay/internal/dsse"
)

// Sign computes mandate_id from content and produces a fully signed
// Mandate, per spec.md §4.3/§4.10's general signing algorithm specialized
// to idField="mandate_id" (original_source mandate/signing.rs's
// sign_mandate, generalized onto internal/dsse.SignContent).
func Sign(content Content, key ed25519.PrivateKey, embedPublicKey bool) (*Mandate, error) {
	tree := contentToMap(content)
	rec, signedTree, err := dsse.SignContent(tree, PayloadType, "mandate_id", key, embedPublicKey)
	if err != nil {
		return nil, fmt.Errorf("mandate: sign failed: %w", err)
	}
	mandateID, _ := signedTree["mandate_id"].(string)

	return &Mandate{
		MandateID:   mandateID,
		MandateKind: content.MandateKind,
		Principal:   content.Principal,
		Scope:       content.Scope,
		Validity:    content.Validity,
		Constraints: content.Constraints,
		Context:     content.Context,
		Signature:   rec,
	}, nil
}

// Verify checks a signed mandate's mandate_id/content_id binding, its
// signed_payload_digest, and its Ed25519 signature against resolver, per
// original_source mandate/signing.rs's verify_mandate.
func Verify(m *Mandate, resolver dsse.KeyResolver) error {
	if m.Signature == nil {
		return &dsse.VerifyError{Kind: dsse.ErrNoSignature, Msg: "mandate is not signed"}
	}
	tree := mandateToMap(m)
	return dsse.VerifyContent(tree, PayloadType, "mandate_id", m.Signature, resolver)
}

func contentToMap(c Content) map[string]interface{} {
	return map[string]interface{}{
		"mandate_kind": string(c.MandateKind),
		"principal":    principalToMap(c.Principal),
		"scope":        scopeToMap(c.Scope),
		"validity":     validityToMap(c.Validity),
		"constraints":  constraintsToMap(c.Constraints),
		"context":      contextToMap(c.Context),
	}
}

func mandateToMap(m *Mandate) map[string]interface{} {
	return map[string]interface{}{
		"mandate_id":   m.MandateID,
		"mandate_kind": string(m.MandateKind),
		"principal":    principalToMap(m.Principal),
		"scope":        scopeToMap(m.Scope),
		"validity":     validityToMap(m.Validity),
		"constraints":  constraintsToMap(m.Constraints),
		"context":      contextToMap(m.Context),
	}
}

func principalToMap(p Principal) map[string]interface{} {
	return map[string]interface{}{
		"subject":     p.Subject,
		"auth_method": string(p.AuthMethod),
	}
}

func scopeToMap(s Scope) map[string]interface{} {
	patterns := make([]interface{}, len(s.ToolPatterns))
	for i, p := range s.ToolPatterns {
		patterns[i] = p
	}
	return map[string]interface{}{"tool_patterns": patterns}
}

func validityToMap(v Validity) map[string]interface{} {
	out := map[string]interface{}{}
	if v.NotBefore != nil {
		out["not_before"] = v.NotBefore.UTC().Format(time.RFC3339)
	}
	if v.ExpiresAt != nil {
		out["expires_at"] = v.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return out
}

func constraintsToMap(c Constraints) map[string]interface{} {
	out := map[string]interface{}{}
	if c.MaxUses != nil {
		out["max_uses"] = *c.MaxUses
	}
	if c.ArgBounds != nil {
		out["arg_bounds"] = c.ArgBounds
	}
	if c.TransactionRef != "" {
		out["transaction_ref"] = c.TransactionRef
	}
	return out
}

func contextToMap(c Context) map[string]interface{} {
	return map[string]interface{}{
		"audience": c.Audience,
		"issuer":   c.Issuer,
	}
}
