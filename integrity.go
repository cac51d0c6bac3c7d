package mcpauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	mcperrors "github.com/connectkit/mcpauth/errors"
)

// secureTokenBytes is the entropy of generated states and verifiers.
// 32 bytes (256 bits) exceeds the OAuth 2.1 minimum of 128 bits.
const secureTokenBytes = 32

// PKCEState bundles the four fields an authorization flow binds together.
// The integrity hash proves they were created as one unit; a flow whose
// hash does not verify must be treated as nonexistent.
type PKCEState struct {
	State         string
	ServerID      string
	UserID        string
	CodeVerifier  string
	CodeChallenge string
	IntegrityHash string
}

// IntegrityService computes and verifies the HMAC binding PKCE state to
// the server and user that started the flow.
type IntegrityService struct {
	secret []byte
}

// NewIntegrityService creates the service. A missing secret is a
// configuration error and must be fatal at process start.
func NewIntegrityService(secret string) (*IntegrityService, error) {
	if secret == "" {
		return nil, mcperrors.NewConfigurationError("integrity secret is not configured")
	}
	return &IntegrityService{secret: []byte(secret)}, nil
}

// GenerateIntegrityHash returns the HMAC-SHA256 over the canonical
// pipe-joined concatenation of state, server, user, and code verifier.
// The field order is fixed to prevent parameter-reordering attacks.
func (s *IntegrityService) GenerateIntegrityHash(p PKCEState) (string, error) {
	if p.State == "" || p.ServerID == "" || p.UserID == "" || p.CodeVerifier == "" {
		return "", mcperrors.NewConfigurationError("all four bound fields are required for the integrity hash")
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonicalBinding(p)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifyIntegrityHash recomputes the hash and compares in constant time.
// Callers must treat a false result as "no session", never repair it.
func (s *IntegrityService) VerifyIntegrityHash(p PKCEState) bool {
	if p.IntegrityHash == "" {
		return false
	}
	provided, err := hex.DecodeString(p.IntegrityHash)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonicalBinding(p)))
	return hmac.Equal(provided, mac.Sum(nil))
}

func canonicalBinding(p PKCEState) string {
	return strings.Join([]string{p.State, p.ServerID, p.UserID, p.CodeVerifier}, "|")
}

// GenerateSecureState returns a cryptographically random, base64url-encoded
// state parameter.
func GenerateSecureState() (string, error) {
	return randomToken()
}

// GenerateCodeVerifier returns a PKCE code verifier. 32 random bytes
// base64url-encode to 43 characters, the RFC 7636 minimum length.
func GenerateCodeVerifier() (string, error) {
	return randomToken()
}

// GenerateCodeChallenge derives the S256 code challenge from a verifier.
// OAuth 2.1 mandates S256; the plain method is never supported.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	buf := make([]byte, secureTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
