package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeletedContent replaces message content on soft delete.
const DeletedContent = "[message deleted]"

const (
	MediaImage = "image"
	MediaVideo = "video"
)

// Message belongs to exactly one conversation. Content may be empty for
// media-only messages. Soft delete keeps the document and replaces content.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID primitive.ObjectID `bson:"conversation_id" json:"conversation_id"`
	SenderID       string             `bson:"sender_id" json:"sender_id"`
	Content        string             `bson:"content" json:"content"`
	MediaType      string             `bson:"media_type,omitempty" json:"media_type,omitempty"`
	MediaURL       string             `bson:"media_url,omitempty" json:"media_url,omitempty"`
	IsDeleted      bool               `bson:"is_deleted" json:"is_deleted"`
	DeletedAt      *time.Time         `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
	EditedAt       *time.Time         `bson:"edited_at,omitempty" json:"edited_at,omitempty"`
	ReadBy         []string           `bson:"read_by" json:"read_by"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`

	// sender projection, not persisted on the message document
	Sender *UserProfile `bson:"-" json:"sender,omitempty"`
}
