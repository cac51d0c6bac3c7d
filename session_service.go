package mcpauth

import (
	"context"
	goerrors "errors"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"github.com/connectkit/mcpauth/domain"
	mcperrors "github.com/connectkit/mcpauth/errors"
	"github.com/connectkit/mcpauth/internal/metrics"
)

// SessionService manages the short-lived authorization sessions that
// correlate OAuth callbacks with the connect flows that started them.
// Sessions carry the PKCE material and the integrity hash binding it to
// the initiating (server, user) pair.
type SessionService struct {
	sessions  domain.SessionRepository
	integrity *IntegrityService
	ttl       time.Duration

	// consumed remembers recently resolved states for one TTL window so a
	// replayed callback is distinguishable from a state that never existed.
	consumed *ttlcache.Cache[string, domain.Provider]
}

// NewSessionService creates a session service with the fixed 15-minute TTL.
func NewSessionService(sessions domain.SessionRepository, integrity *IntegrityService) (*SessionService, error) {
	if sessions == nil {
		return nil, mcperrors.NewConfigurationError("session repository is required")
	}
	if integrity == nil {
		return nil, mcperrors.NewConfigurationError("integrity service is required")
	}

	consumed := ttlcache.New(
		ttlcache.WithTTL[string, domain.Provider](domain.SessionTTL),
		ttlcache.WithDisableTouchOnHit[string, domain.Provider](),
	)
	go consumed.Start()

	return &SessionService{
		sessions:  sessions,
		integrity: integrity,
		ttl:       domain.SessionTTL,
		consumed:  consumed,
	}, nil
}

// Close stops the consumed-state expiry goroutine.
func (s *SessionService) Close() error {
	s.consumed.Stop()
	return nil
}

// CreateSession mints a state + PKCE pair, binds it to the (server, user)
// pair via the integrity hash, and persists the session. Returns the state
// to include in the authorization redirect.
func (s *SessionService) CreateSession(ctx context.Context, serverID, userID, callbackURL string, provider domain.Provider) (string, error) {
	if !provider.Valid() {
		return "", mcperrors.NewConfigurationError("unknown oauth provider " + provider.String())
	}

	state, err := GenerateSecureState()
	if err != nil {
		return "", err
	}
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return "", err
	}
	challenge := GenerateCodeChallenge(verifier)

	hash, err := s.integrity.GenerateIntegrityHash(PKCEState{
		State:        state,
		ServerID:     serverID,
		UserID:       userID,
		CodeVerifier: verifier,
	})
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	session := &domain.AuthorizationSession{
		State:         state,
		ServerID:      serverID,
		UserID:        userID,
		CallbackURL:   callbackURL,
		Provider:      provider,
		CodeVerifier:  verifier,
		CodeChallenge: challenge,
		IntegrityHash: hash,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.sessions.StoreSession(ctx, session); err != nil {
		log.Error().Err(err).Str("server_id", serverID).Msg("Failed to store authorization session")
		return "", err
	}

	metrics.FlowStartedTotal.WithLabelValues(provider.String()).Inc()
	metrics.ActiveSessionsGauge.Inc()
	log.Debug().Str("server_id", serverID).Str("provider", provider.String()).Msg("Authorization session created")

	return state, nil
}

// GetSession looks up a session by state. An expired session is deleted,
// counted as an expiry event, and reported as absent (lazy expiry). A
// session whose integrity hash does not verify is deleted and reported as
// absent; that is a security event, never a validation warning.
func (s *SessionService) GetSession(ctx context.Context, state string) (*domain.AuthorizationSession, error) {
	session, err := s.sessions.GetSession(ctx, state)
	if err != nil {
		if mcperrors.IsKind(err, mcperrors.KindSessionNotFound) {
			if item := s.consumed.Get(state); item != nil {
				metrics.SecurityEvent(metrics.ViolationStateReuse, metrics.SeverityWarning)
				log.Warn().
					Str("provider", item.Value().String()).
					Msg("Lookup of an already-consumed oauth state, possible callback replay")
			}
			return nil, nil
		}
		return nil, err
	}

	if session.IsExpired() {
		s.discard(ctx, session)
		metrics.SessionsExpiredTotal.WithLabelValues(session.Provider.String()).Inc()
		log.Debug().Str("provider", session.Provider.String()).Msg("Authorization session expired on lookup")
		return nil, nil
	}

	ok := s.integrity.VerifyIntegrityHash(PKCEState{
		State:         session.State,
		ServerID:      session.ServerID,
		UserID:        session.UserID,
		CodeVerifier:  session.CodeVerifier,
		IntegrityHash: session.IntegrityHash,
	})
	if !ok {
		s.discard(ctx, session)
		metrics.SecurityEvent(metrics.ViolationHashMismatch, metrics.SeverityWarning)
		log.Warn().
			Str("server_id", session.ServerID).
			Str("provider", session.Provider.String()).
			Msg("Authorization session failed integrity verification, rejecting")
		return nil, nil
	}

	return session, nil
}

// DeleteSession consumes a session once its callback has been resolved so
// the state cannot be replayed. Deleting a session twice is not an error.
func (s *SessionService) DeleteSession(ctx context.Context, state string) error {
	provider := domain.ProviderGeneric
	if session, err := s.sessions.GetSession(ctx, state); err == nil {
		provider = session.Provider
	}

	err := s.sessions.DeleteSession(ctx, state)
	if err != nil {
		if mcperrors.IsKind(err, mcperrors.KindSessionNotFound) {
			return nil
		}
		return err
	}
	s.consumed.Set(state, provider, ttlcache.DefaultTTL)
	metrics.ActiveSessionsGauge.Dec()
	return nil
}

// CompleteFlow consumes the session for state and records the flow outcome
// so dashboards can track completion rates per provider. The callback
// resolver calls this exactly once per callback, successful or not.
func (s *SessionService) CompleteFlow(ctx context.Context, state string, succeeded bool) error {
	provider := domain.ProviderGeneric
	if session, err := s.sessions.GetSession(ctx, state); err == nil {
		provider = session.Provider
	}

	if err := s.DeleteSession(ctx, state); err != nil {
		return err
	}

	status := metrics.StatusSuccess
	if !succeeded {
		status = metrics.StatusFailure
	}
	metrics.FlowCompletedTotal.WithLabelValues(provider.String(), status).Inc()
	log.Debug().
		Str("provider", provider.String()).
		Str("status", status).
		Msg("OAuth connect flow completed")
	return nil
}

// CleanupExpiredSessions bulk-reclaims expired sessions. One expiry metric
// event is emitted per reclaimed session, tagged by provider, so dashboards
// can tell organic expiry apart from abuse patterns.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context) (int, error) {
	reclaimed, err := s.sessions.DeleteExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	for _, session := range reclaimed {
		metrics.SessionsExpiredTotal.WithLabelValues(session.Provider.String()).Inc()
		metrics.ActiveSessionsGauge.Dec()
	}
	if len(reclaimed) > 0 {
		log.Debug().Int("count", len(reclaimed)).Msg("Cleaned up expired authorization sessions")
	}
	return len(reclaimed), nil
}

// GetActiveSessionsForServer returns the non-expired in-flight sessions
// for a server, used to show or cancel pending connect flows.
func (s *SessionService) GetActiveSessionsForServer(ctx context.Context, serverID string) ([]*domain.AuthorizationSession, error) {
	return s.sessions.ListActiveSessionsForServer(ctx, serverID, time.Now().UTC())
}

// StartCleanup runs CleanupExpiredSessions on a fixed interval until the
// context is cancelled.
func (s *SessionService) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupExpiredSessions(ctx); err != nil && !goerrors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Session cleanup sweep failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *SessionService) discard(ctx context.Context, session *domain.AuthorizationSession) {
	if err := s.sessions.DeleteSession(ctx, session.State); err != nil &&
		!mcperrors.IsKind(err, mcperrors.KindSessionNotFound) {
		log.Error().Err(err).Msg("Failed to delete authorization session")
		return
	}
	metrics.ActiveSessionsGauge.Dec()
}
