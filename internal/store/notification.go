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

type mongoNotificationStore struct {
	coll *mongo.Collection
}

func NewNotificationStore(db *mongo.Database) NotificationStore {
	return &mongoNotificationStore{coll: db.Collection(collNotifications)}
}

func (s *mongoNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	res, err := s.coll.InsertOne(ctx, n)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *mongoNotificationStore) InsertMany(ctx context.Context, ns []*models.Notification) (int, error) {
	if len(ns) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, 0, len(ns))
	now := time.Now().UTC()
	for _, n := range ns {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		docs = append(docs, n)
	}
	res, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if res != nil && len(res.InsertedIDs) > 0 {
		return len(res.InsertedIDs), err
	}
	if err != nil {
		return 0, fmt.Errorf("insert notifications: %w", err)
	}
	return 0, nil
}

func (s *mongoNotificationStore) FindByRecipient(ctx context.Context, identity string, isRead *bool, skip, limit int64) ([]*models.Notification, int64, error) {
	filter := bson.M{"user_id": identity}
	if isRead != nil {
		filter["is_read"] = *isRead
	}
	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	cur, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetSkip(skip).SetLimit(limit))
	if err != nil {
		return nil, 0, fmt.Errorf("find notifications: %w", err)
	}
	defer cur.Close(ctx)

	var out []*models.Notification
	for cur.Next(ctx) {
		var n models.Notification
		if err := cur.Decode(&n); err != nil {
			return nil, 0, fmt.Errorf("decode notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, total, cur.Err()
}

func (s *mongoNotificationStore) FindByID(ctx context.Context, id, identity string) (*models.Notification, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	var n models.Notification
	err = s.coll.FindOne(ctx, bson.M{"_id": oid, "user_id": identity}).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find notification: %w", err)
	}
	return &n, nil
}

func (s *mongoNotificationStore) MarkRead(ctx context.Context, id, identity string) (*models.Notification, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.ErrNotFound
	}
	var n models.Notification
	err = s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "user_id": identity},
		bson.M{"$set": bson.M{"is_read": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return &n, nil
}

func (s *mongoNotificationStore) MarkAllRead(ctx context.Context, identity string) (int64, error) {
	res, err := s.coll.UpdateMany(ctx,
		bson.M{"user_id": identity, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *mongoNotificationStore) Delete(ctx context.Context, id, identity string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperr.ErrNotFound
	}
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": oid, "user_id": identity})
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if res.DeletedCount == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *mongoNotificationStore) DeleteRead(ctx context.Context, identity string) (int64, error) {
	res, err := s.coll.DeleteMany(ctx, bson.M{"user_id": identity, "is_read": true})
	if err != nil {
		return 0, fmt.Errorf("delete read notifications: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *mongoNotificationStore) CountUnread(ctx context.Context, identity string) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"user_id": identity, "is_read": false})
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}
