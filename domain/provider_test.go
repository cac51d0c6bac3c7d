package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseProvider(t *testing.T) {
	for _, name := range []string{"notion", "github", "google", "slack", "linear", "generic"} {
		p, err := ParseProvider(name)
		assert.NoError(t, err)
		assert.Equal(t, name, p.String())
		assert.True(t, p.Valid())
	}

	for _, name := range []string{"", "dropbox", "NOTION", "git-hub"} {
		_, err := ParseProvider(name)
		assert.Error(t, err, name)
	}
}

func TestAuthorizationSession_IsExpired(t *testing.T) {
	session := AuthorizationSession{ExpiresAt: time.Now().Add(time.Minute)}
	assert.False(t, session.IsExpired())

	session.ExpiresAt = time.Now().Add(-time.Second)
	assert.True(t, session.IsExpired())
}

func TestOAuthTokenRecord_HasRefreshToken(t *testing.T) {
	record := OAuthTokenRecord{}
	assert.False(t, record.HasRefreshToken())

	empty := ""
	record.RefreshTokenEncrypted = &empty
	assert.False(t, record.HasRefreshToken())

	enc := "ciphertext"
	record.RefreshTokenEncrypted = &enc
	assert.True(t, record.HasRefreshToken())
}
