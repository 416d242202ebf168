package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LastRead carries the last-read timestamp per participant slot.
type LastRead struct {
	ParticipantA *time.Time `bson:"participant_a,omitempty" json:"participant_a,omitempty"`
	ParticipantB *time.Time `bson:"participant_b,omitempty" json:"participant_b,omitempty"`
}

// Conversation is a two-party chat scope, unique per unordered participant
// pair. Created lazily on first exchange, never deleted.
type Conversation struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ParticipantA string             `bson:"participant_a" json:"participant_a"`
	ParticipantB string             `bson:"participant_b" json:"participant_b"`
	LastRead     LastRead           `bson:"last_read" json:"last_read"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`

	// projections for list responses, not persisted
	ProfileA *UserProfile `bson:"-" json:"participant_a_profile,omitempty"`
	ProfileB *UserProfile `bson:"-" json:"participant_b_profile,omitempty"`
}

// HasParticipant reports whether identity is one of the two participants.
func (c *Conversation) HasParticipant(identity string) bool {
	return c.ParticipantA == identity || c.ParticipantB == identity
}

// OtherParticipant returns the counterpart of identity, or "" when identity
// is not a participant.
func (c *Conversation) OtherParticipant(identity string) string {
	switch identity {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

// LastReadFor returns identity's own last-read timestamp.
func (c *Conversation) LastReadFor(identity string) *time.Time {
	switch identity {
	case c.ParticipantA:
		return c.LastRead.ParticipantA
	case c.ParticipantB:
		return c.LastRead.ParticipantB
	}
	return nil
}
