package dsse

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/assay-run/assay/internal/canon"
)

// SignContent implements the general signing algorithm of spec.md §4.3,
// steps 1-9, for any payload type whose content is a canonicalizable JSON
// tree (tool defs, packs once YAML-decoded, mandates):
//
//  1. the caller passes content with any prior signature/id field removed
//  2. canonicalize content -> content digest
//  3. embed the digest under idField ("content_id" for tool/pack, "mandate_id" for mandates)
//  4. re-canonicalize the content+id -> signed_payload_digest
//  5. PAE(payloadType, re-canonicalized bytes), Ed25519-signed
//
// It returns the signature record and the content tree with idField set,
// which the caller serializes as the signed document.
func SignContent(content map[string]interface{}, payloadType, idField string, key ed25519.PrivateKey, embedPublicKey bool) (*SignatureRecord, map[string]interface{}, error) {
	base := withoutField(content, idField)
	contentDigest, err := canon.Digest(base)
	if err != nil {
		return nil, nil, fmt.Errorf("dsse: failed to canonicalize content: %w", err)
	}

	withID := withoutField(content, idField)
	withID[idField] = contentDigest

	signedBytes, err := canon.Encode(withID)
	if err != nil {
		return nil, nil, fmt.Errorf("dsse: failed to canonicalize signable content: %w", err)
	}
	signedPayloadDigest := canon.DigestBytes(signedBytes)

	pae := BuildPAE(payloadType, signedBytes)
	rec, err := Sign(key, payloadType, contentDigest, signedPayloadDigest, pae, embedPublicKey)
	if err != nil {
		return nil, nil, err
	}
	return rec, withID, nil
}

// VerifyContent reverses SignContent: it recomputes the content digest
// from content (with idField stripped), checks it against both the
// signature record's claimed content_id and against content's own idField
// value (if present), rebuilds the signed bytes, checks
// signed_payload_digest, rebuilds the PAE, and finally verifies the
// Ed25519 signature through resolver.
func VerifyContent(content map[string]interface{}, payloadType, idField string, rec *SignatureRecord, resolver KeyResolver) error {
	if rec == nil {
		return &VerifyError{Kind: ErrNoSignature, Msg: "no signature present"}
	}
	if rec.Version != 1 {
		return &VerifyError{Kind: ErrVersionMismatch, Msg: "unsupported signature version"}
	}
	if rec.Algorithm != Algorithm {
		return &VerifyError{Kind: ErrAlgorithmMismatch, Msg: "unsupported algorithm"}
	}
	if rec.PayloadType != payloadType {
		return &VerifyError{Kind: ErrPayloadTypeMismatch, Msg: "payload type mismatch"}
	}

	base := withoutField(content, idField)
	recomputedDigest, err := canon.Digest(base)
	if err != nil {
		return &VerifyError{Kind: ErrMalformed, Msg: err.Error()}
	}
	if recomputedDigest != rec.ContentID {
		return &VerifyError{Kind: ErrDigestMismatch, Msg: fmt.Sprintf("content digest mismatch: signature claims %s, content hashes to %s", rec.ContentID, recomputedDigest)}
	}
	if claimed, ok := content[idField].(string); ok && claimed != recomputedDigest {
		return &VerifyError{Kind: ErrIDContentMismatch, Msg: fmt.Sprintf("%s field %s does not match content digest %s", idField, claimed, recomputedDigest)}
	}

	withID := withoutField(content, idField)
	withID[idField] = recomputedDigest
	signedBytes, err := canon.Encode(withID)
	if err != nil {
		return &VerifyError{Kind: ErrMalformed, Msg: err.Error()}
	}
	signedPayloadDigest := canon.DigestBytes(signedBytes)
	if signedPayloadDigest != rec.SignedPayloadDigest {
		return &VerifyError{Kind: ErrSignedPayloadDigestMismatch, Msg: "signed payload digest mismatch"}
	}

	pub, ok := resolver.GetKey(rec.KeyID)
	if !ok {
		return &VerifyError{Kind: ErrKeyNotTrusted, Msg: fmt.Sprintf("key %q is not trusted", rec.KeyID)}
	}
	computedKeyID, err := KeyID(pub)
	if err != nil {
		return &VerifyError{Kind: ErrMalformed, Msg: err.Error()}
	}
	if computedKeyID != rec.KeyID {
		return &VerifyError{Kind: ErrKeyIDMismatch, Msg: "resolved key's computed id does not match signature's claimed key id"}
	}

	sigBytes, err := base64.StdEncoding.DecodeString(rec.Signature)
	if err != nil {
		return &VerifyError{Kind: ErrMalformed, Msg: "signature is not valid base64"}
	}
	pae := BuildPAE(payloadType, signedBytes)
	if !ed25519.Verify(pub, pae, sigBytes) {
		return &VerifyError{Kind: ErrSignatureInvalid, Msg: "ed25519 signature verification failed"}
	}
	return nil
}

func withoutField(content map[string]interface{}, field string) map[string]interface{} {
	out := make(map[string]interface{}, len(content))
	for k, v := range content {
		if k == field || k == "signature" {
			continue
		}
		out[k] = v
	}
	return out
}
