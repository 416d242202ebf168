package store

import (
	"context"
	"time"

	"github.com/dinhduclinh/sever-retrotrade/internal/models"
)

// ConversationStore is the conversation collaborator. NotFound is reported
// as apperr.ErrNotFound, distinct from other failures.
type ConversationStore interface {
	FindByID(ctx context.Context, id string) (*models.Conversation, error)
	FindByParticipants(ctx context.Context, a, b string) (*models.Conversation, error)
	ListByParticipant(ctx context.Context, identity string) ([]*models.Conversation, error)
	Create(ctx context.Context, a, b string) (*models.Conversation, error)
	// SetLastRead writes participant's own last-read slot. Each participant
	// only ever writes its own slot, so there is no cross-participant write
	// conflict to guard against.
	SetLastRead(ctx context.Context, id, participant string, at time.Time) error
}

// MessageStore is the message collaborator.
type MessageStore interface {
	Create(ctx context.Context, conversationID, sender, content, mediaType, mediaURL string) (*models.Message, error)
	// FindByID returns the message with its sender profile projection.
	FindByID(ctx context.Context, id string) (*models.Message, error)
	// FindByConversation returns up to limit newest messages in
	// chronological order, with sender projections.
	FindByConversation(ctx context.Context, conversationID string, limit int64) ([]*models.Message, error)
	LastMessage(ctx context.Context, conversationID string) (*models.Message, error)
	// CountUnread counts non-deleted messages addressed to reader (sent by
	// the other participant) created after since. A zero since counts all.
	CountUnread(ctx context.Context, conversationID, reader string, since time.Time) (int64, error)
	// MarkRead adds reader to readBy on every message in the conversation
	// sent by anyone else. Set-union semantics, safe to repeat.
	MarkRead(ctx context.Context, conversationID, reader string) error
	// Save persists edit and soft-delete mutations.
	Save(ctx context.Context, m *models.Message) error
}

// NotificationStore is the notification collaborator.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	InsertMany(ctx context.Context, ns []*models.Notification) (int, error)
	FindByRecipient(ctx context.Context, identity string, isRead *bool, skip, limit int64) ([]*models.Notification, int64, error)
	FindByID(ctx context.Context, id, identity string) (*models.Notification, error)
	MarkRead(ctx context.Context, id, identity string) (*models.Notification, error)
	MarkAllRead(ctx context.Context, identity string) (int64, error)
	Delete(ctx context.Context, id, identity string) error
	DeleteRead(ctx context.Context, identity string) (int64, error)
	CountUnread(ctx context.Context, identity string) (int64, error)
}

// UserStore is read-only from the realtime core.
type UserStore interface {
	ListActiveIdentities(ctx context.Context) ([]string, error)
	FindProfile(ctx context.Context, identity string) (*models.UserProfile, error)
}
