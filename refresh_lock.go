package mcpauth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/connectkit/mcpauth/domain"
	mcperrors "github.com/connectkit/mcpauth/errors"
	"github.com/connectkit/mcpauth/internal/metrics"
)

// DefaultRefreshLockTTL bounds how long a refresh lock may be held. It
// matches the worst-case expected refresh latency; a holder that has not
// released within this window is assumed crashed or hung.
const DefaultRefreshLockTTL = 60 * time.Second

// RefreshLockService hands out advisory per-server locks so two concurrent
// refresh attempts for the same connection do not race. Correctness does
// not depend on the lock; the mark-before-send step in the refresh engine
// is the real race guard. The lock only avoids burning rotation windows.
type RefreshLockService struct {
	locks domain.LockRepository
	ttl   time.Duration
}

// NewRefreshLockService creates the lock service. A zero ttl selects the
// 60-second default.
func NewRefreshLockService(locks domain.LockRepository, ttl time.Duration) (*RefreshLockService, error) {
	if locks == nil {
		return nil, mcperrors.NewConfigurationError("lock repository is required")
	}
	if ttl <= 0 {
		ttl = DefaultRefreshLockTTL
	}
	return &RefreshLockService{locks: locks, ttl: ttl}, nil
}

// Acquire attempts to take the refresh lock for a server. On success it
// returns an owner token that must be passed to Release. acquired=false
// without error means another refresh is in flight; try again shortly.
func (s *RefreshLockService) Acquire(ctx context.Context, serverID string) (owner string, acquired bool, err error) {
	owner = uuid.NewString()
	acquired, err = s.locks.AcquireLock(ctx, serverID, owner, s.ttl)
	if err != nil {
		return "", false, err
	}
	if !acquired {
		return "", false, nil
	}
	return owner, true, nil
}

// Release releases the lock if still held by owner. Releasing a lock that
// has already expired or been reclaimed is not an error.
func (s *RefreshLockService) Release(ctx context.Context, serverID, owner string) {
	if err := s.locks.ReleaseLock(ctx, serverID, owner); err != nil {
		log.Error().Err(err).Str("server_id", serverID).Msg("Failed to release refresh lock")
	}
}

// StartCleanup force-clears locks older than the TTL on a fixed interval
// until the context is cancelled. This keeps a wedged lock from
// permanently blocking future refreshes.
func (s *RefreshLockService) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			reclaimed, err := s.locks.ReclaimStaleLocks(ctx, s.ttl)
			if err != nil {
				log.Error().Err(err).Msg("Refresh lock cleanup sweep failed")
				continue
			}
			if reclaimed > 0 {
				metrics.LocksReclaimedTotal.Add(float64(reclaimed))
				log.Warn().Int("count", reclaimed).Msg("Force-cleared stale refresh locks")
			}
		case <-ctx.Done():
			return
		}
	}
}
