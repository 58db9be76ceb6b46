package mandate

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/assay-run/assay/internal/dsse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapResolver map[string]ed25519.PublicKey

func (m mapResolver) GetKey(keyID string) (ed25519.PublicKey, bool) {
	k, ok := m[keyID]
	return k, ok
}

func testContent() Content {
	return Content{
		MandateKind: KindIntent,
		Principal:   Principal{Subject: "user-123", AuthMethod: AuthMethodOIDC},
		Scope:       Scope{ToolPatterns: []string{"search_*"}},
		Validity:    Validity{ExpiresAt: timePtr(time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC))},
		Context:     Context{Audience: "myorg/app", Issuer: "auth.myorg.com"},
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestSignAndVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	content := testContent()
	m, err := Sign(content, priv, false)
	require.NoError(t, err)

	assert.True(t, m.IsSigned())
	assert.Contains(t, m.MandateID, "sha256:")

	keyID, err := dsse.KeyID(pub)
	require.NoError(t, err)
	resolver := mapResolver{keyID: pub}

	err = Verify(m, resolver)
	assert.NoError(t, err)
}

func TestMandateIDIsContentAddressed(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	content := testContent()

	m1, err := Sign(content, priv, false)
	require.NoError(t, err)
	m2, err := Sign(content, priv, false)
	require.NoError(t, err)

	assert.Equal(t, m1.MandateID, m2.MandateID)
}

func TestTamperDetection(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	content := testContent()
	m, err := Sign(content, priv, false)
	require.NoError(t, err)

	m.Principal.Subject = "attacker"

	keyID, _ := dsse.KeyID(pub)
	resolver := mapResolver{keyID: pub}
	err = Verify(m, resolver)
	require.Error(t, err)
}

func TestWrongKeyFails(t *testing.T) {
	_, priv1, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub2, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	m, err := Sign(testContent(), priv1, false)
	require.NoError(t, err)

	keyID2, _ := dsse.KeyID(pub2)
	resolver := mapResolver{keyID2: pub2}
	err = Verify(m, resolver)
	require.Error(t, err)
}

func TestUnsignedMandateFailsVerify(t *testing.T) {
	content := testContent()
	m := &Mandate{
		MandateKind: content.MandateKind,
		Principal:   content.Principal,
		Scope:       content.Scope,
		Validity:    content.Validity,
		Constraints: content.Constraints,
		Context:     content.Context,
	}
	err := Verify(m, mapResolver{})
	require.Error(t, err)
	var verr *dsse.VerifyError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, dsse.ErrNoSignature, verr.Kind)
}

func TestValidateRejectsUnsignedUnderStrictPolicy(t *testing.T) {
	content := testContent()
	m := &Mandate{
		MandateKind: content.MandateKind,
		Principal:   content.Principal,
		Scope:       content.Scope,
		Validity:    content.Validity,
		Constraints: content.Constraints,
		Context:     content.Context,
	}
	policy := TrustPolicy{RequireSigned: true, ExpectedAudience: "myorg/app"}
	verr := Validate(m, policy, mapResolver{}, "search_products", time.Now(), "")
	require.NotNil(t, verr)
	assert.Equal(t, ErrNotSigned, verr.Kind)
}

func TestValidateAcceptsInScopeToolWithinValidity(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	content := testContent()
	content.Validity = Validity{ExpiresAt: timePtr(time.Now().Add(time.Hour))}
	m, err := Sign(content, priv, false)
	require.NoError(t, err)

	keyID, _ := dsse.KeyID(pub)
	resolver := mapResolver{keyID: pub}
	policy := TrustPolicy{ExpectedAudience: "myorg/app"}
	verr := Validate(m, policy, resolver, "search_products", time.Now(), "")
	assert.Nil(t, verr)
}

func TestValidateRejectsToolOutOfScope(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	content := testContent()
	content.Validity = Validity{ExpiresAt: timePtr(time.Now().Add(time.Hour))}
	m, err := Sign(content, priv, false)
	require.NoError(t, err)

	keyID, _ := dsse.KeyID(pub)
	resolver := mapResolver{keyID: pub}
	policy := TrustPolicy{ExpectedAudience: "myorg/app"}
	verr := Validate(m, policy, resolver, "delete_everything", time.Now(), "")
	require.NotNil(t, verr)
	assert.Equal(t, ErrToolNotInScope, verr.Kind)
}

func TestValidateRequiresTransactionMandateForCommitTool(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	content := testContent()
	content.Scope = Scope{ToolPatterns: []string{"**"}}
	content.Validity = Validity{ExpiresAt: timePtr(time.Now().Add(time.Hour))}
	m, err := Sign(content, priv, false)
	require.NoError(t, err)

	keyID, _ := dsse.KeyID(pub)
	resolver := mapResolver{keyID: pub}
	policy := TrustPolicy{ExpectedAudience: "myorg/app", CommitTools: []string{"delete_*"}}
	verr := Validate(m, policy, resolver, "delete_everything", time.Now(), "")
	require.NotNil(t, verr)
	assert.Equal(t, ErrTransactionRequired, verr.Kind)
}

func TestValidateRejectsExpiredBeyondSkew(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	content := testContent()
	content.Validity = Validity{ExpiresAt: timePtr(time.Now().Add(-time.Hour))}
	m, err := Sign(content, priv, false)
	require.NoError(t, err)

	keyID, _ := dsse.KeyID(pub)
	resolver := mapResolver{keyID: pub}
	policy := TrustPolicy{ExpectedAudience: "myorg/app", ClockSkewToleranceSeconds: 30}
	verr := Validate(m, policy, resolver, "search_products", time.Now(), "")
	require.NotNil(t, verr)
	assert.Equal(t, ErrExpired, verr.Kind)
}
