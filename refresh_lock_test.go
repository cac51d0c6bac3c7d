package mcpauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/connectkit/mcpauth/cache"
	mcperrors "github.com/connectkit/mcpauth/errors"
)

func TestNewRefreshLockService(t *testing.T) {
	_, err := NewRefreshLockService(nil, time.Minute)
	assert.True(t, mcperrors.IsKind(err, mcperrors.KindConfiguration))

	store := cache.NewMemoryLockStore()
	defer store.Close()

	svc, err := NewRefreshLockService(store, 0)
	assert.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestRefreshLockService_AcquireIsExclusivePerServer(t *testing.T) {
	store := cache.NewMemoryLockStore()
	defer store.Close()
	svc, err := NewRefreshLockService(store, time.Minute)
	assert.NoError(t, err)
	ctx := context.Background()

	owner, acquired, err := svc.Acquire(ctx, "srv-1")
	assert.NoError(t, err)
	assert.True(t, acquired)
	assert.NotEmpty(t, owner)

	_, acquired, err = svc.Acquire(ctx, "srv-1")
	assert.NoError(t, err)
	assert.False(t, acquired, "second acquire for the same server must fail")

	// Locks are per server, not global.
	_, acquired, err = svc.Acquire(ctx, "srv-2")
	assert.NoError(t, err)
	assert.True(t, acquired)

	svc.Release(ctx, "srv-1", owner)
	_, acquired, err = svc.Acquire(ctx, "srv-1")
	assert.NoError(t, err)
	assert.True(t, acquired, "released lock must be acquirable again")
}

func TestRefreshLockService_ReleaseIsOwnerChecked(t *testing.T) {
	store := cache.NewMemoryLockStore()
	defer store.Close()
	svc, err := NewRefreshLockService(store, time.Minute)
	assert.NoError(t, err)
	ctx := context.Background()

	owner, acquired, err := svc.Acquire(ctx, "srv-1")
	assert.NoError(t, err)
	assert.True(t, acquired)

	// A stranger's release must not free the holder's lock.
	svc.Release(ctx, "srv-1", "not-the-owner")
	_, acquired, err = svc.Acquire(ctx, "srv-1")
	assert.NoError(t, err)
	assert.False(t, acquired)

	svc.Release(ctx, "srv-1", owner)
	_, acquired, err = svc.Acquire(ctx, "srv-1")
	assert.NoError(t, err)
	assert.True(t, acquired)
}

func TestRefreshLockService_StartCleanupReclaimsStaleLocks(t *testing.T) {
	locks := new(MockLockRepository)
	reclaimed := make(chan struct{})
	locks.On("ReclaimStaleLocks", mock.Anything, time.Minute).
		Run(func(mock.Arguments) {
			select {
			case reclaimed <- struct{}{}:
			default:
			}
		}).
		Return(2, nil)

	svc, err := NewRefreshLockService(locks, time.Minute)
	assert.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.StartCleanup(ctx, 10*time.Millisecond)

	select {
	case <-reclaimed:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup sweep never ran")
	}
}
