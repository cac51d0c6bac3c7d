package domain

import (
	"context"
	"time"
)

// SessionRepository persists short-lived authorization sessions keyed by
// the OAuth state parameter.
type SessionRepository interface {
	// StoreSession persists a new session. Storing a session whose state
	// already exists is an error.
	StoreSession(ctx context.Context, session *AuthorizationSession) error

	// GetSession returns the session for the given state, expired or not.
	// Returns a session-not-found error when no such record exists.
	GetSession(ctx context.Context, state string) (*AuthorizationSession, error)

	// DeleteSession removes the session. Returns a session-not-found
	// error when no such record exists; callers wanting idempotent
	// deletion handle that case themselves.
	DeleteSession(ctx context.Context, state string) error

	// DeleteExpiredSessions removes every session whose expiry precedes
	// now and returns the reclaimed records so callers can emit
	// per-provider metrics.
	DeleteExpiredSessions(ctx context.Context, now time.Time) ([]*AuthorizationSession, error)

	// ListActiveSessionsForServer returns the non-expired sessions for a
	// server, used to show or cancel in-flight flows.
	ListActiveSessionsForServer(ctx context.Context, serverID string, now time.Time) ([]*AuthorizationSession, error)
}

// TokenRepository is the single source of truth for stored token records.
// It must support the conditional mark-before-send update the refresh
// engine depends on.
type TokenRepository interface {
	// GetToken returns the token record for a server, or a not-found
	// error when none exists.
	GetToken(ctx context.Context, serverID string) (*OAuthTokenRecord, error)

	// UpsertToken stores or replaces the token record for a server.
	UpsertToken(ctx context.Context, record *OAuthTokenRecord) error

	// MarkRefreshTokenUsed atomically sets RefreshTokenUsedAt on the
	// record, but only when it is currently unset. Returns false when
	// the record was already marked (or does not exist), which a caller
	// must treat as a concurrent consumption of the refresh token.
	MarkRefreshTokenUsed(ctx context.Context, serverID string, usedAt time.Time) (bool, error)

	// DeleteTokensForServer removes every token record for the server
	// and returns the number of records removed.
	DeleteTokensForServer(ctx context.Context, serverID string) (int64, error)
}

// ProviderConfigRepository provides the static OAuth metadata for a server.
type ProviderConfigRepository interface {
	// GetProviderConfig returns the config, or a not-found error. An
	// absent config is a configuration error for the refresh engine,
	// not a transient failure.
	GetProviderConfig(ctx context.Context, serverID string) (*OAuthProviderConfig, error)

	// StoreProviderConfig persists the config for a server.
	StoreProviderConfig(ctx context.Context, config *OAuthProviderConfig) error
}

// LockRepository backs the advisory refresh lock.
type LockRepository interface {
	// AcquireLock attempts to take the lock for a server. Returns false
	// without error when the lock is already held.
	AcquireLock(ctx context.Context, serverID, owner string, ttl time.Duration) (bool, error)

	// ReleaseLock releases the lock if it is still held by owner.
	ReleaseLock(ctx context.Context, serverID, owner string) error

	// ReclaimStaleLocks force-clears locks older than maxAge and returns
	// how many were removed.
	ReclaimStaleLocks(ctx context.Context, maxAge time.Duration) (int, error)
}

// OwnershipResolver walks server -> profile -> project -> user and returns
// the user that owns the server connection. The traversal storage belongs
// to an external collaborator; this core only consumes the result.
type OwnershipResolver interface {
	ResolveOwner(ctx context.Context, serverID string) (string, error)
}

// HeaderCache holds the live outbound Authorization header per server so
// in-flight connections pick up rotated tokens without a separate round
// trip.
type HeaderCache interface {
	SetAuthorization(serverID, header string)
	GetAuthorization(serverID string) (string, bool)
	DeleteAuthorization(serverID string)
}
