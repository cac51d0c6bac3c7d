package mcpauth

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	mcperrors "github.com/connectkit/mcpauth/errors"
)

func TestNewIntegrityService_RequiresSecret(t *testing.T) {
	_, err := NewIntegrityService("")
	assert.Error(t, err)
	assert.True(t, mcperrors.IsKind(err, mcperrors.KindConfiguration))

	svc, err := NewIntegrityService("secret")
	assert.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestIntegrityService_RoundTrip(t *testing.T) {
	svc, err := NewIntegrityService("test-integrity-secret")
	assert.NoError(t, err)

	p := PKCEState{
		State:        "state-abc",
		ServerID:     "srv-1",
		UserID:       "user-1",
		CodeVerifier: "verifier-xyz",
	}
	hash, err := svc.GenerateIntegrityHash(p)
	assert.NoError(t, err)
	assert.NotEmpty(t, hash)

	p.IntegrityHash = hash
	assert.True(t, svc.VerifyIntegrityHash(p))
}

func TestIntegrityService_AnyFieldChangeBreaksTheHash(t *testing.T) {
	svc, err := NewIntegrityService("test-integrity-secret")
	assert.NoError(t, err)

	base := PKCEState{
		State:        "state-abc",
		ServerID:     "srv-1",
		UserID:       "user-1",
		CodeVerifier: "verifier-xyz",
	}
	hash, err := svc.GenerateIntegrityHash(base)
	assert.NoError(t, err)

	cases := []struct {
		name  string
		tweak func(*PKCEState)
	}{
		{"state", func(p *PKCEState) { p.State = "state-tampered" }},
		{"server", func(p *PKCEState) { p.ServerID = "srv-2" }},
		{"user", func(p *PKCEState) { p.UserID = "user-2" }},
		{"verifier", func(p *PKCEState) { p.CodeVerifier = "verifier-tampered" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := base
			p.IntegrityHash = hash
			tc.tweak(&p)
			assert.False(t, svc.VerifyIntegrityHash(p))
		})
	}
}

func TestIntegrityService_RejectsMalformedHash(t *testing.T) {
	svc, err := NewIntegrityService("test-integrity-secret")
	assert.NoError(t, err)

	p := PKCEState{
		State:        "state-abc",
		ServerID:     "srv-1",
		UserID:       "user-1",
		CodeVerifier: "verifier-xyz",
	}

	p.IntegrityHash = ""
	assert.False(t, svc.VerifyIntegrityHash(p))

	p.IntegrityHash = "not-hex!"
	assert.False(t, svc.VerifyIntegrityHash(p))
}

func TestIntegrityService_DifferentSecretsDisagree(t *testing.T) {
	a, err := NewIntegrityService("secret-a")
	assert.NoError(t, err)
	b, err := NewIntegrityService("secret-b")
	assert.NoError(t, err)

	p := PKCEState{
		State:        "state-abc",
		ServerID:     "srv-1",
		UserID:       "user-1",
		CodeVerifier: "verifier-xyz",
	}
	hash, err := a.GenerateIntegrityHash(p)
	assert.NoError(t, err)

	p.IntegrityHash = hash
	assert.False(t, b.VerifyIntegrityHash(p))
}

func TestGenerateIntegrityHash_RequiresAllFields(t *testing.T) {
	svc, err := NewIntegrityService("secret")
	assert.NoError(t, err)

	_, err = svc.GenerateIntegrityHash(PKCEState{
		State: "s", ServerID: "srv", UserID: "u",
	})
	assert.Error(t, err)
	assert.True(t, mcperrors.IsKind(err, mcperrors.KindConfiguration))
}

func TestGenerateSecureState_UniqueAndURLSafe(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		state, err := GenerateSecureState()
		assert.NoError(t, err)
		assert.False(t, seen[state], "states must not repeat")
		seen[state] = true

		_, err = base64.RawURLEncoding.DecodeString(state)
		assert.NoError(t, err, "state must be base64url without padding")
	}
}

func TestGenerateCodeVerifier_MeetsPKCELength(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	assert.NoError(t, err)
	// RFC 7636 requires 43..128 characters.
	assert.GreaterOrEqual(t, len(verifier), 43)
	assert.LessOrEqual(t, len(verifier), 128)
}

func TestGenerateCodeChallenge_IsS256(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	sum := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(sum[:])

	assert.Equal(t, expected, GenerateCodeChallenge(verifier))
}
