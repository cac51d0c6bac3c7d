package mongodb

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/connectkit/mcpauth/domain"
	mcperrors "github.com/connectkit/mcpauth/errors"
)

// ProviderConfigRepositoryMongo implements domain.ProviderConfigRepository
// using MongoDB.
type ProviderConfigRepositoryMongo struct {
	collection *mongo.Collection
}

var _ domain.ProviderConfigRepository = (*ProviderConfigRepositoryMongo)(nil)

// NewProviderConfigRepositoryMongo creates a new ProviderConfigRepositoryMongo.
func NewProviderConfigRepositoryMongo(db *mongo.Database) *ProviderConfigRepositoryMongo {
	return &ProviderConfigRepositoryMongo{
		collection: db.Collection(ProviderConfigsCollection),
	}
}

// GetProviderConfig implements domain.ProviderConfigRepository.
func (r *ProviderConfigRepositoryMongo) GetProviderConfig(ctx context.Context, serverID string) (*domain.OAuthProviderConfig, error) {
	var config domain.OAuthProviderConfig
	err := r.collection.FindOne(ctx, bson.M{"_id": serverID}).Decode(&config)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, mcperrors.NewNotFound("provider config", serverID)
		}
		log.Error().Err(err).Str("serverID", serverID).Msg("Error getting provider config from MongoDB")
		return nil, err
	}
	return &config, nil
}

// StoreProviderConfig implements domain.ProviderConfigRepository.
func (r *ProviderConfigRepositoryMongo) StoreProviderConfig(ctx context.Context, config *domain.OAuthProviderConfig) error {
	filter := bson.M{"_id": config.ServerID}
	_, err := r.collection.ReplaceOne(ctx, filter, config, options.Replace().SetUpsert(true))
	if err != nil {
		log.Error().Err(err).Str("serverID", config.ServerID).Msg("Error storing provider config in MongoDB")
		return err
	}
	return nil
}
