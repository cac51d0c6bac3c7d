package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	assert.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL())
	assert.Equal(t, 5*time.Minute, cfg.TokenExpiryBuffer())
	assert.Equal(t, 60*time.Second, cfg.RefreshLockTTL())
	assert.Equal(t, 60*time.Second, cfg.CleanupInterval())
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout())
	assert.False(t, cfg.AllowPrivateEndpoints)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("SESSION_TTL_MIN", "30")
	t.Setenv("ALLOW_PRIVATE_ENDPOINTS", "true")

	cfg, err := LoadConfig()
	assert.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
	assert.True(t, cfg.AllowPrivateEndpoints)
}

func TestServerConfig_Validate(t *testing.T) {
	cfg := &ServerConfig{}
	assert.Error(t, cfg.Validate())

	cfg.IntegritySecret = "a"
	assert.Error(t, cfg.Validate())

	cfg.EncryptionSecret = "b"
	assert.NoError(t, cfg.Validate())
}
