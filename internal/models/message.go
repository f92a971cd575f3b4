package models

import (
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// Message is one post in a conversation.
type Message struct {
	Base           `bson:",inline"`
	ConversationID utils.SixID `bson:"conversation_id" json:"conversation_id"`
	SenderID       utils.SixID `bson:"sender_id" json:"sender_id"`
	Body           string      `bson:"body" json:"body"`
	CreatedAt      time.Time   `bson:"created_at" json:"created_at"`
}
