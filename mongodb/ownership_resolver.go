package mongodb

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/connectkit/mcpauth/domain"
	mcperrors "github.com/connectkit/mcpauth/errors"
)

// Collections owned by the surrounding platform. The authorization core
// only reads them to resolve ownership; it never writes them.
const (
	ServersCollection  = "mcp_servers"
	ProfilesCollection = "profiles"
	ProjectsCollection = "projects"
)

// OwnershipResolverMongo implements domain.OwnershipResolver by walking
// server -> profile -> project -> user. A broken link anywhere in the
// chain resolves to "no owner", which callers reject.
type OwnershipResolverMongo struct {
	servers  *mongo.Collection
	profiles *mongo.Collection
	projects *mongo.Collection
}

var _ domain.OwnershipResolver = (*OwnershipResolverMongo)(nil)

// NewOwnershipResolverMongo creates a new OwnershipResolverMongo.
func NewOwnershipResolverMongo(db *mongo.Database) *OwnershipResolverMongo {
	return &OwnershipResolverMongo{
		servers:  db.Collection(ServersCollection),
		profiles: db.Collection(ProfilesCollection),
		projects: db.Collection(ProjectsCollection),
	}
}

// ResolveOwner implements domain.OwnershipResolver.
func (r *OwnershipResolverMongo) ResolveOwner(ctx context.Context, serverID string) (string, error) {
	var server struct {
		ProfileID string `bson:"profile_id"`
	}
	if err := r.servers.FindOne(ctx, bson.M{"_id": serverID}).Decode(&server); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", mcperrors.NewNotFound("server", serverID)
		}
		return "", err
	}

	var profile struct {
		ProjectID string `bson:"project_id"`
	}
	if err := r.profiles.FindOne(ctx, bson.M{"_id": server.ProfileID}).Decode(&profile); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", mcperrors.NewNotFound("profile", server.ProfileID)
		}
		return "", err
	}

	var project struct {
		UserID string `bson:"user_id"`
	}
	if err := r.projects.FindOne(ctx, bson.M{"_id": profile.ProjectID}).Decode(&project); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", mcperrors.NewNotFound("project", profile.ProjectID)
		}
		return "", err
	}

	return project.UserID, nil
}
