// Package dsse implements Ed25519 signing and verification under a Dead
// Simple Signing Envelope (DSSE) Pre-Authentication Encoding, generalized
// from original_source/crates/assay-core/src/mcp/signing.rs (which covered
// tool-definition payloads only) to every payload type spec.md §4.3 lists.
package dsse

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Payload types carried over a DSSE envelope (spec.md §4.3 / §6).
const (
	PayloadTypeTool    = "application/vnd.assay.tool+json;v=1"
	PayloadTypeMandate = "application/vnd.assay.mandate+json;v=1"
	PayloadTypePack    = "application/vnd.assay.pack+yaml;v=1"
)

// Algorithm is the only signature algorithm this implementation speaks.
const Algorithm = "ed25519"

// BuildPAE encodes payload_type and payload per DSSEv1:
// "DSSEv1" SP LEN(type) SP type SP LEN(payload) SP payload, with lengths
// as decimal ASCII and no zero padding.
func BuildPAE(payloadType string, payload []byte) []byte {
	var sb strings.Builder
	sb.WriteString("DSSEv1 ")
	sb.WriteString(strconv.Itoa(len(payloadType)))
	sb.WriteByte(' ')
	sb.WriteString(payloadType)
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(len(payload)))
	sb.WriteByte(' ')
	sb.Write(payload)
	return []byte(sb.String())
}

// KeyID computes "sha256:<hex>" over the SPKI DER encoding of pub, the
// same identity scheme the original uses for Ed25519 keys.
func KeyID(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("dsse: failed to marshal SPKI DER: %w", err)
	}
	sum := sha256.Sum256(der)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// SignatureRecord is the signature envelope emitted alongside a signed
// payload (spec.md §4.3/§6).
type SignatureRecord struct {
	Version            int    `json:"version"`
	Algorithm          string `json:"algorithm"`
	PayloadType        string `json:"payload_type"`
	ContentID          string `json:"content_id"`
	SignedPayloadDigest string `json:"signed_payload_digest"`
	KeyID              string `json:"key_id"`
	Signature          string `json:"signature"` // standard base64 of raw signature bytes
	SignedAt           string `json:"signed_at"` // RFC3339
	PublicKey          string `json:"public_key,omitempty"` // optional embedded base64 SPKI DER
}

// Sign signs paeBytes with key and returns a fully populated
// SignatureRecord (minus fields the caller must still fill in: ContentID
// and SignedPayloadDigest are supplied by the caller, since their exact
// derivation differs per payload type — see internal/mandate for the
// mandate-specific twist of re-embedding the computed id).
func Sign(key ed25519.PrivateKey, payloadType, contentID, signedPayloadDigest string, paeBytes []byte, embedPublicKey bool) (*SignatureRecord, error) {
	pub, ok := key.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("dsse: not an ed25519 private key")
	}
	keyID, err := KeyID(pub)
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(key, paeBytes)

	rec := &SignatureRecord{
		Version:             1,
		Algorithm:           Algorithm,
		PayloadType:         payloadType,
		ContentID:           contentID,
		SignedPayloadDigest: signedPayloadDigest,
		KeyID:               keyID,
		Signature:           base64.StdEncoding.EncodeToString(sig),
		SignedAt:            time.Now().UTC().Format(time.RFC3339),
	}
	if embedPublicKey {
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("dsse: failed to marshal SPKI DER: %w", err)
		}
		rec.PublicKey = base64.StdEncoding.EncodeToString(der)
	}
	return rec, nil
}

// VerifyErrorKind is the closed set of verification failures, carried over
// from signing.rs's VerifyError enum, with the same exit-code mapping.
type VerifyErrorKind int

const (
	ErrMalformed VerifyErrorKind = iota
	ErrVersionMismatch
	ErrAlgorithmMismatch
	ErrNoSignature
	ErrKeyNotTrusted
	ErrPayloadTypeMismatch
	ErrSignatureInvalid
	ErrDigestMismatch
	ErrKeyIDMismatch
	ErrIDContentMismatch
	ErrSignedPayloadDigestMismatch
)

// VerifyError reports why envelope verification failed.
type VerifyError struct {
	Kind VerifyErrorKind
	Msg  string
}

func (e *VerifyError) Error() string { return e.Msg }

// ExitCode maps a VerifyErrorKind to the canonical process exit code from
// spec.md §4.3.
func (k VerifyErrorKind) ExitCode() int {
	switch k {
	case ErrNoSignature:
		return 2
	case ErrKeyNotTrusted:
		return 3
	case ErrSignatureInvalid, ErrPayloadTypeMismatch, ErrDigestMismatch, ErrKeyIDMismatch,
		ErrIDContentMismatch, ErrSignedPayloadDigestMismatch:
		return 4
	default: // Malformed, VersionMismatch, AlgorithmMismatch
		return 1
	}
}

// KeyResolver looks up a trusted verifying key by id. internal/trust
// implements this.
type KeyResolver interface {
	GetKey(keyID string) (ed25519.PublicKey, bool)
}

// Verify checks rec against paeBytes (the PAE the caller reconstructed
// from the candidate content) and a trust resolver, enforcing version,
// algorithm, payload type, key trust, key-id match, and the Ed25519
// signature itself. It does NOT check content-digest/id equality — that
// is payload-type specific and is the caller's responsibility (see
// VerifyContent in internal/dsse/content.go and internal/mandate/signing.go).
func Verify(rec *SignatureRecord, expectedPayloadType string, paeBytes []byte, resolver KeyResolver) error {
	if rec == nil {
		return &VerifyError{Kind: ErrNoSignature, Msg: "no signature present"}
	}
	if rec.Version != 1 {
		return &VerifyError{Kind: ErrVersionMismatch, Msg: fmt.Sprintf("unsupported signature version %d", rec.Version)}
	}
	if rec.Algorithm != Algorithm {
		return &VerifyError{Kind: ErrAlgorithmMismatch, Msg: fmt.Sprintf("unsupported algorithm %q", rec.Algorithm)}
	}
	if rec.PayloadType != expectedPayloadType {
		return &VerifyError{Kind: ErrPayloadTypeMismatch, Msg: fmt.Sprintf("payload type %q does not match expected %q", rec.PayloadType, expectedPayloadType)}
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
	sig, err := base64.StdEncoding.DecodeString(rec.Signature)
	if err != nil {
		return &VerifyError{Kind: ErrMalformed, Msg: "signature is not valid base64"}
	}
	if !ed25519.Verify(pub, paeBytes, sig) {
		return &VerifyError{Kind: ErrSignatureInvalid, Msg: "ed25519 signature verification failed"}
	}
	return nil
}
