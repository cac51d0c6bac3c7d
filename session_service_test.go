package mcpauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/connectkit/mcpauth/cache"
	"github.com/connectkit/mcpauth/domain"
	mcperrors "github.com/connectkit/mcpauth/errors"
)

func newSessionServiceFixture(t *testing.T) (*SessionService, *cache.MemorySessionStore) {
	t.Helper()
	store := cache.NewMemorySessionStore()
	integrity, err := NewIntegrityService("test-integrity-secret")
	assert.NoError(t, err)
	service, err := NewSessionService(store, integrity)
	assert.NoError(t, err)
	t.Cleanup(func() { service.Close() })
	return service, store
}

func TestNewSessionService_RequiresCollaborators(t *testing.T) {
	integrity, err := NewIntegrityService("secret")
	assert.NoError(t, err)

	_, err = NewSessionService(nil, integrity)
	assert.True(t, mcperrors.IsKind(err, mcperrors.KindConfiguration))

	_, err = NewSessionService(cache.NewMemorySessionStore(), nil)
	assert.True(t, mcperrors.IsKind(err, mcperrors.KindConfiguration))
}

func TestSessionService_CreateAndGet(t *testing.T) {
	service, _ := newSessionServiceFixture(t)
	ctx := context.Background()

	state, err := service.CreateSession(ctx, "srv-1", "user-1", "https://app.example.com/callback", domain.ProviderNotion)
	assert.NoError(t, err)
	assert.NotEmpty(t, state)

	session, err := service.GetSession(ctx, state)
	assert.NoError(t, err)
	assert.NotNil(t, session)
	assert.Equal(t, "srv-1", session.ServerID)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, domain.ProviderNotion, session.Provider)
	assert.NotEmpty(t, session.CodeVerifier)
	assert.Equal(t, GenerateCodeChallenge(session.CodeVerifier), session.CodeChallenge)
	assert.WithinDuration(t, session.CreatedAt.Add(domain.SessionTTL), session.ExpiresAt, time.Second)
}

func TestSessionService_CreateRejectsUnknownProvider(t *testing.T) {
	service, store := newSessionServiceFixture(t)

	_, err := service.CreateSession(context.Background(), "srv-1", "user-1", "https://cb", domain.Provider("dropbox"))
	assert.True(t, mcperrors.IsKind(err, mcperrors.KindConfiguration))
	assert.Equal(t, 0, store.Count())
}

func TestSessionService_StatesAreSingleUse(t *testing.T) {
	service, _ := newSessionServiceFixture(t)
	ctx := context.Background()

	state, err := service.CreateSession(ctx, "srv-1", "user-1", "https://cb", domain.ProviderGitHub)
	assert.NoError(t, err)

	assert.NoError(t, service.DeleteSession(ctx, state))

	// A consumed state looks exactly like one that never existed.
	session, err := service.GetSession(ctx, state)
	assert.NoError(t, err)
	assert.Nil(t, session)

	// Deleting again is not an error.
	assert.NoError(t, service.DeleteSession(ctx, state))
}

func TestSessionService_UnknownStateIsAbsentNotError(t *testing.T) {
	service, _ := newSessionServiceFixture(t)

	session, err := service.GetSession(context.Background(), "never-issued")
	assert.NoError(t, err)
	assert.Nil(t, session)
}

func TestSessionService_ExpiredSessionIsReclaimedOnLookup(t *testing.T) {
	service, store := newSessionServiceFixture(t)
	ctx := context.Background()

	state, err := service.CreateSession(ctx, "srv-1", "user-1", "https://cb", domain.ProviderSlack)
	assert.NoError(t, err)

	// Rewind the stored expiry instead of sleeping.
	stored, err := store.GetSession(ctx, state)
	assert.NoError(t, err)
	assert.NoError(t, store.DeleteSession(ctx, state))
	stored.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	assert.NoError(t, store.StoreSession(ctx, stored))

	session, err := service.GetSession(ctx, state)
	assert.NoError(t, err)
	assert.Nil(t, session)
	assert.Equal(t, 0, store.Count(), "expired session must be deleted lazily")
}

func TestSessionService_TamperedSessionIsRejected(t *testing.T) {
	service, store := newSessionServiceFixture(t)
	ctx := context.Background()

	state, err := service.CreateSession(ctx, "srv-1", "user-1", "https://cb", domain.ProviderGoogle)
	assert.NoError(t, err)

	// Rebind the session to another user, as a compromised store would.
	stored, err := store.GetSession(ctx, state)
	assert.NoError(t, err)
	assert.NoError(t, store.DeleteSession(ctx, state))
	stored.UserID = "attacker"
	assert.NoError(t, store.StoreSession(ctx, stored))

	session, err := service.GetSession(ctx, state)
	assert.NoError(t, err)
	assert.Nil(t, session, "a session failing integrity verification must be treated as nonexistent")
	assert.Equal(t, 0, store.Count(), "tampered session must be discarded")
}

func TestSessionService_CleanupExpiredSessions(t *testing.T) {
	service, store := newSessionServiceFixture(t)
	ctx := context.Background()

	fresh, err := service.CreateSession(ctx, "srv-1", "user-1", "https://cb", domain.ProviderNotion)
	assert.NoError(t, err)

	for i := 0; i < 3; i++ {
		state, err := service.CreateSession(ctx, "srv-2", "user-2", "https://cb", domain.ProviderLinear)
		assert.NoError(t, err)
		stored, err := store.GetSession(ctx, state)
		assert.NoError(t, err)
		assert.NoError(t, store.DeleteSession(ctx, state))
		stored.ExpiresAt = time.Now().UTC().Add(-time.Minute)
		assert.NoError(t, store.StoreSession(ctx, stored))
	}

	reclaimed, err := service.CleanupExpiredSessions(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, reclaimed)
	assert.Equal(t, 1, store.Count())

	session, err := service.GetSession(ctx, fresh)
	assert.NoError(t, err)
	assert.NotNil(t, session, "unexpired sessions survive the sweep")
}

func TestSessionService_CompleteFlow(t *testing.T) {
	service, store := newSessionServiceFixture(t)
	ctx := context.Background()

	state, err := service.CreateSession(ctx, "srv-1", "user-1", "https://cb", domain.ProviderNotion)
	assert.NoError(t, err)

	assert.NoError(t, service.CompleteFlow(ctx, state, true))
	assert.Equal(t, 0, store.Count())

	// Completing an already-consumed flow is idempotent.
	assert.NoError(t, service.CompleteFlow(ctx, state, false))
}

func TestSessionService_GetActiveSessionsForServer(t *testing.T) {
	service, _ := newSessionServiceFixture(t)
	ctx := context.Background()

	_, err := service.CreateSession(ctx, "srv-1", "user-1", "https://cb", domain.ProviderNotion)
	assert.NoError(t, err)
	_, err = service.CreateSession(ctx, "srv-1", "user-1", "https://cb", domain.ProviderNotion)
	assert.NoError(t, err)
	_, err = service.CreateSession(ctx, "srv-2", "user-2", "https://cb", domain.ProviderGitHub)
	assert.NoError(t, err)

	active, err := service.GetActiveSessionsForServer(ctx, "srv-1")
	assert.NoError(t, err)
	assert.Len(t, active, 2)
	for _, s := range active {
		assert.Equal(t, "srv-1", s.ServerID)
	}
}
