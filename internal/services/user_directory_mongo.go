package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/roadwatch/roadwatch/internal/models"
)

// UsersCollection is the document store collection holding platform users.
const UsersCollection = "users"

// MongoUserDirectory reads users from MongoDB.
type MongoUserDirectory struct {
	coll *mongo.Collection
}

// NewMongoUserDirectory constructs a directory over the users collection of db.
func NewMongoUserDirectory(db *mongo.Database) (*MongoUserDirectory, error) {
	if db == nil {
		return nil, errors.New("user directory: mongo database is required")
	}
	return &MongoUserDirectory{coll: db.Collection(UsersCollection)}, nil
}

// activeRoleFilter matches active users holding role; RoleAll matches every active user.
func activeRoleFilter(role string) bson.M {
	filter := bson.M{"is_active": true}
	if role != models.RoleAll {
		filter["role"] = role
	}
	return filter
}

func userIDsFilter(ids []string) bson.M {
	return bson.M{"_id": bson.M{"$in": ids}}
}

// ActiveUserIDsByRole implements UserDirectory.
func (d *MongoUserDirectory) ActiveUserIDsByRole(ctx context.Context, role string) ([]string, error) {
	ctx = ensureContext(ctx)
	role = strings.ToLower(strings.TrimSpace(role))

	cursor, err := d.coll.Find(ctx, activeRoleFilter(role), options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("user directory: list role %s: %w", role, err)
	}

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("user directory: decode role %s: %w", role, err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

// Lookup implements UserDirectory.
func (d *MongoUserDirectory) Lookup(ctx context.Context, ids []string) (map[string]models.User, error) {
	ctx = ensureContext(ctx)
	ids = normaliseIDs(ids)
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cursor, err := d.coll.Find(ctx, userIDsFilter(ids))
	if err != nil {
		return nil, fmt.Errorf("user directory: lookup: %w", err)
	}

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("user directory: decode lookup: %w", err)
	}
	for _, user := range users {
		out[user.ID] = user
	}
	return out, nil
}
