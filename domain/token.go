package domain

import "time"

// OAuthTokenRecord holds the encrypted credential material for one
// (server, user) pairing. Token values are never stored in plaintext.
type OAuthTokenRecord struct {
	ServerID              string     `bson:"_id"                           json:"server_id"`
	AccessTokenEncrypted  string     `bson:"access_token_encrypted"        json:"-"`
	RefreshTokenEncrypted *string    `bson:"refresh_token_encrypted"       json:"-"`
	// ExpiresAt is nil for tokens the provider issued without an expiry.
	// Absence of an expiry is not an error; such tokens never expire.
	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	// RefreshTokenUsedAt marks the stored refresh token as consumed.
	// A non-nil value seen by a later refresh attempt is proof of token
	// replay and triggers full revocation for the server.
	RefreshTokenUsedAt *time.Time `bson:"refresh_token_used_at,omitempty" json:"refresh_token_used_at,omitempty"`
	UpdatedAt          time.Time  `bson:"updated_at"                      json:"updated_at"`
}

// HasRefreshToken reports whether the record carries a refresh token.
func (r *OAuthTokenRecord) HasRefreshToken() bool {
	return r.RefreshTokenEncrypted != nil && *r.RefreshTokenEncrypted != ""
}

// OAuthProviderConfig is the per-server static OAuth metadata. It is
// immutable for the lifetime of a connection except through an explicit
// reconfiguration action.
type OAuthProviderConfig struct {
	ServerID              string   `bson:"_id"                     json:"server_id"`
	Provider              Provider `bson:"provider"                json:"provider"`
	AuthorizationEndpoint string   `bson:"authorization_endpoint"  json:"authorization_endpoint"`
	TokenEndpoint         string   `bson:"token_endpoint"          json:"token_endpoint"`
	ClientID              string   `bson:"client_id"               json:"client_id"`
	ClientSecretEncrypted string   `bson:"client_secret_encrypted" json:"-"`
	Scopes                string   `bson:"scopes,omitempty"        json:"scopes,omitempty"`
}

// RefreshLock is an advisory marker preventing two concurrent refresh
// attempts for the same server from racing. It is not authoritative data
// and is safe to lose on crash; the cleanup sweep reclaims stale locks.
type RefreshLock struct {
	ServerID   string    `bson:"_id"         json:"server_id"`
	Owner      string    `bson:"owner"       json:"owner"`
	AcquiredAt time.Time `bson:"acquired_at" json:"acquired_at"`
}
