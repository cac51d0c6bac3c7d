package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/connectkit/mcpauth/domain"
)

// LockStore implements the LockRepository interface using Redis. The lock
// key carries a TTL, so Redis reclaims stale locks by itself; the owner
// value guards against releasing a lock another refresh re-acquired.
type LockStore struct {
	client *redis.Client
	prefix string
}

var _ domain.LockRepository = (*LockStore)(nil)

// NewLockStore creates a new [LockStore] instance.
func NewLockStore(client *redis.Client, prefix string) *LockStore {
	return &LockStore{
		client: client,
		prefix: prefix,
	}
}

func (s *LockStore) redisKey(serverID string) string {
	return fmt.Sprintf("%s:refresh_lock:%s", s.prefix, serverID)
}

// AcquireLock takes the lock with SET NX and the given TTL.
func (s *LockStore) AcquireLock(ctx context.Context, serverID, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.redisKey(serverID), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire refresh lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock deletes the lock key only when still held by owner.
func (s *LockStore) ReleaseLock(ctx context.Context, serverID, owner string) error {
	key := s.redisKey(serverID)
	current, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read refresh lock: %w", err)
	}
	if current != owner {
		return nil
	}
	if err := s.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release refresh lock: %w", err)
	}
	return nil
}

// ReclaimStaleLocks is a no-op for Redis: the TTL set at acquisition
// already bounds every lock's lifetime.
func (s *LockStore) ReclaimStaleLocks(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}
