package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
	"github.com/dinhduclinh/sever-retrotrade/internal/models"
)

type mongoUserStore struct {
	coll *mongo.Collection
}

// NewUserStore wraps the user collection owned by the account service.
// The realtime core only reads from it.
func NewUserStore(db *mongo.Database) UserStore {
	return &mongoUserStore{coll: db.Collection(collUsers)}
}

func (s *mongoUserStore) ListActiveIdentities(ctx context.Context) ([]string, error) {
	cur, err := s.coll.Find(ctx,
		bson.M{"is_active": true, "is_deleted": bson.M{"$ne": true}},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer cur.Close(ctx)

	var out []string
	for cur.Next(ctx) {
		var doc struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user id: %w", err)
		}
		out = append(out, doc.ID.Hex())
	}
	return out, cur.Err()
}

func (s *mongoUserStore) FindProfile(ctx context.Context, identity string) (*models.UserProfile, error) {
	filter := bson.M{"user_guid": identity}
	if oid, err := primitive.ObjectIDFromHex(identity); err == nil {
		filter = bson.M{"_id": oid}
	}
	var p models.UserProfile
	err := s.coll.FindOne(ctx, filter,
		options.FindOne().SetProjection(bson.M{"full_name": 1, "email": 1, "avatar_url": 1, "role": 1})).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &p, nil
}
