package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatMessage is a room message stored in MongoDB
type ChatMessage struct {
	ID        primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	RoomID    string             `json:"room_id" bson:"room_id"`
	SenderID  uint               `json:"user_id" bson:"sender_id"`
	Username  string             `json:"username" bson:"username"`
	Message   string             `json:"message" bson:"message"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// InboundChatMessage is the frame a client sends on a chat room channel.
type InboundChatMessage struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// ChatEvent is the frame fanned out to every member of a room.
type ChatEvent struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Username string `json:"username"`
	UserID   uint   `json:"user_id"`
}

// DirectMessageRequest is the REST body for a one-to-one message.
type DirectMessageRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}
