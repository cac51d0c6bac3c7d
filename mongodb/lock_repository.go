package mongodb

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/connectkit/mcpauth/domain"
)

// LockRepositoryMongo implements domain.LockRepository using MongoDB. The
// lock document's _id is the server ID, so the unique index makes
// acquisition a single atomic insert.
type LockRepositoryMongo struct {
	collection *mongo.Collection
}

var _ domain.LockRepository = (*LockRepositoryMongo)(nil)

// NewLockRepositoryMongo creates a new LockRepositoryMongo.
func NewLockRepositoryMongo(db *mongo.Database) *LockRepositoryMongo {
	return &LockRepositoryMongo{
		collection: db.Collection(LocksCollection),
	}
}

// AcquireLock implements domain.LockRepository. The conflicting insert of
// a concurrent holder surfaces as a duplicate-key error, reported as
// "already locked" rather than a failure.
func (r *LockRepositoryMongo) AcquireLock(ctx context.Context, serverID, owner string, _ time.Duration) (bool, error) {
	lock := &domain.RefreshLock{
		ServerID:   serverID,
		Owner:      owner,
		AcquiredAt: time.Now().UTC(),
	}
	_, err := r.collection.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		log.Error().Err(err).Str("serverID", serverID).Msg("Error acquiring refresh lock in MongoDB")
		return false, err
	}
	return true, nil
}

// ReleaseLock implements domain.LockRepository.
func (r *LockRepositoryMongo) ReleaseLock(ctx context.Context, serverID, owner string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": serverID, "owner": owner})
	if err != nil {
		log.Error().Err(err).Str("serverID", serverID).Msg("Error releasing refresh lock in MongoDB")
		return err
	}
	return nil
}

// ReclaimStaleLocks implements domain.LockRepository.
func (r *LockRepositoryMongo) ReclaimStaleLocks(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := r.collection.DeleteMany(ctx, bson.M{"acquired_at": bson.M{"$lt": cutoff}})
	if err != nil {
		log.Error().Err(err).Msg("Error reclaiming stale refresh locks in MongoDB")
		return 0, err
	}
	return int(result.DeletedCount), nil
}
