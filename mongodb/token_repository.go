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

// TokenRepositoryMongo implements domain.TokenRepository using MongoDB.
// The server ID is the document _id, so there is at most one token record
// per server connection.
type TokenRepositoryMongo struct {
	collection *mongo.Collection
}

var _ domain.TokenRepository = (*TokenRepositoryMongo)(nil)

// NewTokenRepositoryMongo creates a new TokenRepositoryMongo.
func NewTokenRepositoryMongo(db *mongo.Database) *TokenRepositoryMongo {
	return &TokenRepositoryMongo{
		collection: db.Collection(TokensCollection),
	}
}

// GetToken implements domain.TokenRepository.
func (r *TokenRepositoryMongo) GetToken(ctx context.Context, serverID string) (*domain.OAuthTokenRecord, error) {
	var record domain.OAuthTokenRecord
	err := r.collection.FindOne(ctx, bson.M{"_id": serverID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mcperrors.NewNotFound("token record", serverID)
		}
		log.Error().Err(err).Str("serverID", serverID).Msg("Error getting token record from MongoDB")
		return nil, err
	}
	return &record, nil
}

// UpsertToken implements domain.TokenRepository.
func (r *TokenRepositoryMongo) UpsertToken(ctx context.Context, record *domain.OAuthTokenRecord) error {
	filter := bson.M{"_id": record.ServerID}
	_, err := r.collection.ReplaceOne(ctx, filter, record, options.Replace().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Str("serverID", record.ServerID).Msg("Error upserting token record in MongoDB")
		return err
	}
	return nil
}

// MarkRefreshTokenUsed implements domain.TokenRepository. The filter only
// matches a record whose used-marker is unset, which makes the mark an
// atomic update-with-condition: of two racing refreshes, exactly one sees
// MatchedCount == 1.
func (r *TokenRepositoryMongo) MarkRefreshTokenUsed(ctx context.Context, serverID string, usedAt time.Time) (bool, error) {
	filter := bson.M{
		"_id":                   serverID,
		"refresh_token_used_at": bson.M{"$exists": false},
	}
	update := bson.M{"$set": bson.M{
		"refresh_token_used_at": usedAt,
		"updated_at":            usedAt,
	}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		log.Error().Err(err).Str("serverID", serverID).Msg("Error marking refresh token used in MongoDB")
		return false, err
	}
	return result.MatchedCount == 1, nil
}

// DeleteTokensForServer implements domain.TokenRepository.
func (r *TokenRepositoryMongo) DeleteTokensForServer(ctx context.Context, serverID string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"_id": serverID})
	if err != nil {
		log.Error().Err(err).Str("serverID", serverID).Msg("Error deleting token records from MongoDB")
		return 0, err
	}
	return result.DeletedCount, nil
}
