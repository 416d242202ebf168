package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dinhduclinh/sever-retrotrade/internal/apperr"
	"github.com/dinhduclinh/sever-retrotrade/internal/models"
)

type mongoMessageStore struct {
	coll  *mongo.Collection
	users UserStore
}

// NewMessageStore builds the message collaborator. The user store supplies
// the sender profile projections attached to returned messages.
func NewMessageStore(db *mongo.Database, users UserStore) MessageStore {
	return &mongoMessageStore{coll: db.Collection(collMessages), users: users}
}

func (s *mongoMessageStore) Create(ctx context.Context, conversationID, sender, content, mediaType, mediaURL string) (*models.Message, error) {
	convOID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	m := &models.Message{
		ConversationID: convOID,
		SenderID:       sender,
		Content:        content,
		MediaType:      mediaType,
		MediaURL:       mediaURL,
		ReadBy:         []string{},
		CreatedAt:      time.Now().UTC(),
	}
	res, err := s.coll.InsertOne(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	m.ID = res.InsertedID.(primitive.ObjectID)
	return m, nil
}

func (s *mongoMessageStore) FindByID(ctx context.Context, id string) (*models.Message, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	var m models.Message
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	s.attachSender(ctx, &m)
	return &m, nil
}

func (s *mongoMessageStore) FindByConversation(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error) {
	convOID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	cur, err := s.coll.Find(ctx, bson.M{"conversation_id": convOID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	var out []*models.Message
	for cur.Next(ctx) {
		var m models.Message
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, &m)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	// newest-first query, chronological response
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	for _, m := range out {
		s.attachSender(ctx, m)
	}
	return out, nil
}

func (s *mongoMessageStore) LastMessage(ctx context.Context, conversationID string) (*models.Message, error) {
	convOID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	var m models.Message
	err = s.coll.FindOne(ctx, bson.M{"conversation_id": convOID},
		options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last message: %w", err)
	}
	s.attachSender(ctx, &m)
	return &m, nil
}

func (s *mongoMessageStore) CountUnread(ctx context.Context, conversationID, reader string, since time.Time) (int64, error) {
	convOID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return 0, apperr.ErrNotFound
	}
	filter := bson.M{
		"conversation_id": convOID,
		"sender_id":       bson.M{"$ne": reader},
		"is_deleted":      bson.M{"$ne": true},
	}
	if !since.IsZero() {
		filter["created_at"] = bson.M{"$gt": since}
	}
	n, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (s *mongoMessageStore) MarkRead(ctx context.Context, conversationID, reader string) error {
	convOID, err := primitive.ObjectIDFromHex(conversationID)
	if err != nil {
		return apperr.ErrNotFound
	}
	_, err = s.coll.UpdateMany(ctx,
		bson.M{"conversation_id": convOID, "sender_id": bson.M{"$ne": reader}},
		bson.M{"$addToSet": bson.M{"read_by": reader}})
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

func (s *mongoMessageStore) Save(ctx context.Context, m *models.Message) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"_id": m.ID}, bson.M{"$set": bson.M{
		"content":    m.Content,
		"is_deleted": m.IsDeleted,
		"deleted_at": m.DeletedAt,
		"edited_at":  m.EditedAt,
	}})
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// attachSender is best-effort: a missing profile never fails the message load.
func (s *mongoMessageStore) attachSender(ctx context.Context, m *models.Message) {
	if s.users == nil {
		return
	}
	if p, err := s.users.FindProfile(ctx, m.SenderID); err == nil {
		m.Sender = p
	}
}
