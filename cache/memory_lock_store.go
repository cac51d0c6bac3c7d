package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/connectkit/mcpauth/domain"
)

// MemoryLockStore implements LockRepository using ttlcache. Lock entries
// age out on their own, so a crashed holder never wedges the lock for
// longer than the TTL even without the cleanup sweep.
type MemoryLockStore struct {
	cache *ttlcache.Cache[string, string]
}

var _ domain.LockRepository = (*MemoryLockStore)(nil)

// NewMemoryLockStore creates an in-memory lock store with automatic expiry.
func NewMemoryLockStore() *MemoryLockStore {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, string](),
	)

	go cache.Start()

	return &MemoryLockStore{cache: cache}
}

// AcquireLock implements domain.LockRepository.
func (s *MemoryLockStore) AcquireLock(_ context.Context, serverID, owner string, ttl time.Duration) (bool, error) {
	if item := s.cache.Get(serverID); item != nil {
		return false, nil
	}
	s.cache.Set(serverID, owner, ttl)
	return true, nil
}

// ReleaseLock implements domain.LockRepository.
func (s *MemoryLockStore) ReleaseLock(_ context.Context, serverID, owner string) error {
	item := s.cache.Get(serverID)
	if item == nil || item.Value() != owner {
		return nil
	}
	s.cache.Delete(serverID)
	return nil
}

// ReclaimStaleLocks implements domain.LockRepository. ttlcache expires
// entries on its own; the sweep only reports how many it pruned eagerly.
func (s *MemoryLockStore) ReclaimStaleLocks(_ context.Context, _ time.Duration) (int, error) {
	before := s.cache.Len()
	s.cache.DeleteExpired()
	after := s.cache.Len()
	if before > after {
		return before - after, nil
	}
	return 0, nil
}

// Close stops the background expiry goroutine.
func (s *MemoryLockStore) Close() error {
	s.cache.Stop()
	return nil
}
