package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// UserProfile is the projection attached to messages and conversation lists.
// The user collection itself is owned by the account service.
type UserProfile struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	FullName  string             `bson:"full_name" json:"full_name"`
	Email     string             `bson:"email" json:"email"`
	AvatarURL string             `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`
	Role      string             `bson:"role,omitempty" json:"role,omitempty"`
}
