package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
	"github.com/dinhduclinh/sever-retrotrade/internal/models"
)

type mongoConversationStore struct {
	coll *mongo.Collection
}

func NewConversationStore(db *mongo.Database) ConversationStore {
	return &mongoConversationStore{coll: db.Collection(collConversations)}
}

func (s *mongoConversationStore) FindByID(ctx context.Context, id string) (*models.Conversation, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	var conv models.Conversation
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return &conv, nil
}

func (s *mongoConversationStore) FindByParticipants(ctx context.Context, a, b string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.coll.FindOne(ctx, bson.M{"$or": bson.A{
		bson.M{"participant_a": a, "participant_b": b},
		bson.M{"participant_a": b, "participant_b": a},
	}}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation by participants: %w", err)
	}
	return &conv, nil
}

func (s *mongoConversationStore) ListByParticipant(ctx context.Context, identity string) ([]*models.Conversation, error) {
	cur, err := s.coll.Find(ctx, bson.M{"$or": bson.A{
		bson.M{"participant_a": identity},
		bson.M{"participant_b": identity},
	}})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer cur.Close(ctx)

	var out []*models.Conversation
	for cur.Next(ctx) {
		var conv models.Conversation
		if err := cur.Decode(&conv); err != nil {
			return nil, fmt.Errorf("decode conversation: %w", err)
		}
		out = append(out, &conv)
	}
	return out, cur.Err()
}

func (s *mongoConversationStore) Create(ctx context.Context, a, b string) (*models.Conversation, error) {
	// canonical slot order keeps the unique pair index effective
	if b < a {
		a, b = b, a
	}
	now := time.Now().UTC()
	conv := &models.Conversation{
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	res, err := s.coll.InsertOne(ctx, conv)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return s.FindByParticipants(ctx, a, b)
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	conv.ID = res.InsertedID.(primitive.ObjectID)
	return conv, nil
}

func (s *mongoConversationStore) SetLastRead(ctx context.Context, id, participant string, at time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperr.ErrNotFound
	}
	var conv models.Conversation
	if err := s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&conv); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("load conversation: %w", err)
	}
	field := "last_read.participant_a"
	if conv.ParticipantB == participant {
		field = "last_read.participant_b"
	} else if conv.ParticipantA != participant {
		return apperr.ErrForbidden
	}
	_, err = s.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{field: at}})
	if err != nil {
		return fmt.Errorf("set last read: %w", err)
	}
	return nil
}
