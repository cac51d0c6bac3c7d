package domain

import "time"

// SessionTTL is the fixed lifetime of an authorization session. A session
// that is not resolved within this window can never be resolved.
const SessionTTL = 15 * time.Minute

// AuthorizationSession is the ephemeral record correlating an OAuth
// callback with the connect flow that started it. The state parameter is
// the primary key. The PKCE material and the integrity hash binding it to
// the (server, user) pair are stored server-side only.
type AuthorizationSession struct {
	State         string    `bson:"_id"            json:"state"`
	ServerID      string    `bson:"server_id"      json:"server_id"`
	UserID        string    `bson:"user_id"        json:"user_id"`
	CallbackURL   string    `bson:"callback_url"   json:"callback_url"`
	Provider      Provider  `bson:"provider"       json:"provider"`
	CodeVerifier  string    `bson:"code_verifier"  json:"-"`
	CodeChallenge string    `bson:"code_challenge" json:"code_challenge"`
	IntegrityHash string    `bson:"integrity_hash" json:"-"`
	CreatedAt     time.Time `bson:"created_at"     json:"created_at"`
	ExpiresAt     time.Time `bson:"expires_at"     json:"expires_at"`
}

// IsExpired reports whether the session TTL has elapsed.
func (s *AuthorizationSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
