package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	mcperrors "github.com/connectkit/mcpauth/errors"
)

// ServerConfig holds all configuration for the authorization core.
// Tags use mapstructure for Viper unmarshalling and environment binding.
type ServerConfig struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	RedisDB     int    `mapstructure:"REDIS_DB"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	// IntegritySecret keys the HMAC binding PKCE state to the (server,
	// user) pair. EncryptionSecret protects token material at rest.
	// Both are required; startup fails without them.
	IntegritySecret  string `mapstructure:"INTEGRITY_SECRET"`
	EncryptionSecret string `mapstructure:"ENCRYPTION_SECRET"`

	SessionTTLMin        int `mapstructure:"SESSION_TTL_MIN"`
	TokenExpiryBufferMin int `mapstructure:"TOKEN_EXPIRY_BUFFER_MIN"`
	RefreshLockTTLSec    int `mapstructure:"REFRESH_LOCK_TTL_SEC"`
	CleanupIntervalSec   int `mapstructure:"CLEANUP_INTERVAL_SEC"`
	HTTPTimeoutSec       int `mapstructure:"HTTP_TIMEOUT_SEC"`

	// AllowPrivateEndpoints disables the private-address part of the
	// SSRF guard. Test-only; never set in production.
	AllowPrivateEndpoints bool `mapstructure:"ALLOW_PRIVATE_ENDPOINTS"`
}

// LoadConfig reads configuration from file, environment variables, and defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mcpauth/")
	v.AddConfigPath("$HOME/.mcpauth")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/mcpauth_dev")
	v.SetDefault("MONGO_DB_NAME", "mcpauth_dev")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("SESSION_TTL_MIN", 15)
	v.SetDefault("TOKEN_EXPIRY_BUFFER_MIN", 5)
	v.SetDefault("REFRESH_LOCK_TTL_SEC", 60)
	v.SetDefault("CLEANUP_INTERVAL_SEC", 60)
	v.SetDefault("HTTP_TIMEOUT_SEC", 10)
	v.SetDefault("ALLOW_PRIVATE_ENDPOINTS", false)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars and defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}

// Validate fails fast on configuration the core cannot run without.
func (c *ServerConfig) Validate() error {
	if c.IntegritySecret == "" {
		return mcperrors.NewConfigurationError("INTEGRITY_SECRET is not set")
	}
	if c.EncryptionSecret == "" {
		return mcperrors.NewConfigurationError("ENCRYPTION_SECRET is not set")
	}
	return nil
}

func (c *ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

func (c *ServerConfig) TokenExpiryBuffer() time.Duration {
	return time.Duration(c.TokenExpiryBufferMin) * time.Minute
}

func (c *ServerConfig) RefreshLockTTL() time.Duration {
	return time.Duration(c.RefreshLockTTLSec) * time.Second
}

func (c *ServerConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSec) * time.Second
}

func (c *ServerConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}
