package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/connectkit/mcpauth/domain"
	mcperrors "github.com/connectkit/mcpauth/errors"
)

// SessionRepositoryMongo implements domain.SessionRepository using MongoDB.
type SessionRepositoryMongo struct {
	collection *mongo.Collection
}

var _ domain.SessionRepository = (*SessionRepositoryMongo)(nil)

// NewSessionRepositoryMongo creates a new SessionRepositoryMongo and
// ensures the indexes the store depends on. The TTL index is a backstop:
// lazy expiry and the cleanup sweep remain the authoritative reapers so
// expiry metrics are not lost to Mongo's background deletion.
func NewSessionRepositoryMongo(ctx context.Context, db *mongo.Database) (*SessionRepositoryMongo, error) {
	repo := &SessionRepositoryMongo{
		collection: db.Collection(SessionsCollection),
	}

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "server_id", Value: 1}},
			Options: options.Index(),
		},
		{
			// Backstop reaper one hour behind the logical TTL.
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(3600),
		},
	}

	if _, err := repo.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		log.Warn().Err(err).Msg("Issue creating indexes for authorization sessions collection")
	}

	return repo, nil
}

// StoreSession implements domain.SessionRepository.
func (r *SessionRepositoryMongo) StoreSession(ctx context.Context, session *domain.AuthorizationSession) error {
	_, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.New("session with this state already exists")
		}
		log.Error().Err(err).Msg("Error storing authorization session in MongoDB")
		return err
	}
	return nil
}

// GetSession implements domain.SessionRepository.
func (r *SessionRepositoryMongo) GetSession(ctx context.Context, state string) (*domain.AuthorizationSession, error) {
	var session domain.AuthorizationSession
	err := r.collection.FindOne(ctx, bson.M{"_id": state}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mcperrors.NewSessionNotFound(state)
		}
		log.Error().Err(err).Msg("Error getting authorization session from MongoDB")
		return nil, err
	}
	return &session, nil
}

// DeleteSession implements domain.SessionRepository.
func (r *SessionRepositoryMongo) DeleteSession(ctx context.Context, state string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": state})
	if err != nil {
		log.Error().Err(err).Msg("Error deleting authorization session from MongoDB")
		return err
	}
	if result.DeletedCount == 0 {
		return mcperrors.NewSessionNotFound(state)
	}
	return nil
}

// DeleteExpiredSessions implements domain.SessionRepository. The expired
// rows are fetched first so the caller can emit per-provider metrics, then
// removed by state.
func (r *SessionRepositoryMongo) DeleteExpiredSessions(ctx context.Context, now time.Time) ([]*domain.AuthorizationSession, error) {
	filter := bson.M{"expires_at": bson.M{"$lte": now}}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("Error listing expired authorization sessions")
		return nil, err
	}
	defer cursor.Close(ctx)

	var expired []*domain.AuthorizationSession
	if err = cursor.All(ctx, &expired); err != nil {
		log.Error().Err(err).Msg("Error decoding expired authorization sessions")
		return nil, err
	}
	if len(expired) == 0 {
		return nil, nil
	}

	states := make([]string, 0, len(expired))
	for _, session := range expired {
		states = append(states, session.State)
	}
	if _, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": states}}); err != nil {
		log.Error().Err(err).Msg("Error deleting expired authorization sessions")
		return nil, err
	}

	return expired, nil
}

// ListActiveSessionsForServer implements domain.SessionRepository.
func (r *SessionRepositoryMongo) ListActiveSessionsForServer(ctx context.Context, serverID string, now time.Time) ([]*domain.AuthorizationSession, error) {
	filter := bson.M{
		"server_id":  serverID,
		"expires_at": bson.M{"$gt": now},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		log.Error().Err(err).Str("serverID", serverID).Msg("Error listing active sessions by server")
		return nil, err
	}
	defer cursor.Close(ctx)

	var sessions []*domain.AuthorizationSession
	if err = cursor.All(ctx, &sessions); err != nil {
		log.Error().Err(err).Msg("Error decoding active sessions")
		return nil, err
	}
	return sessions, nil
}
