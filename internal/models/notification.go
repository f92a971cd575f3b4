package models

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

const (
	NotificationKindNewMessage = "message.new"

	// notificationBodyRunes caps the preview of a message body.
	notificationBodyRunes = 140
)

// MessageNotificationData is the payload of a message.new notification.
type MessageNotificationData struct {
	Title          string      `bson:"title" json:"title"`
	Body           string      `bson:"body" json:"body"`
	ConversationID utils.SixID `bson:"conversation_id" json:"conversation_id"`
	MessageID      utils.SixID `bson:"message_id" json:"message_id"`
	FromUserID     utils.SixID `bson:"from_user_id" json:"from_user_id"`
	FromName       string      `bson:"from_name" json:"from_name"`
	AdID           utils.SixID `bson:"ad_id" json:"ad_id"`
	AdTitle        string      `bson:"ad_title,omitempty" json:"ad_title,omitempty"`
	URL            string      `bson:"url" json:"url"`
}

// Notification is an in-app inbox entry. Only ReadAt ever changes after creation.
type Notification struct {
	Base      `bson:",inline"`
	UserID    utils.SixID              `bson:"user_id" json:"user_id"`
	Kind      string                   `bson:"kind" json:"kind"`
	Data      *MessageNotificationData `bson:"data" json:"data"`
	ReadAt    *time.Time               `bson:"read_at" json:"read_at"`
	CreatedAt time.Time                `bson:"created_at" json:"created_at"`
}

// NewMessageNotification builds the inbox entry telling recipient about msg.
// ad may be nil when the ad is gone.
func NewMessageNotification(recipient utils.SixID, conv *Conversation, msg *Message, sender *User, ad *Ad, now time.Time) *Notification {
	title := "New message"
	data := &MessageNotificationData{
		Body:           TruncateBody(msg.Body, notificationBodyRunes),
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		FromUserID:     sender.ID,
		FromName:       sender.Name,
		AdID:           conv.AdID,
		URL:            fmt.Sprintf("/conversations/%s#message-%s", conv.ID, msg.ID),
	}
	if ad != nil && ad.Title != "" {
		title = `New message about "` + ad.Title + `"`
		data.AdTitle = ad.Title
	}
	data.Title = title
	return &Notification{
		Base:      NewBase(),
		UserID:    recipient,
		Kind:      NotificationKindNewMessage,
		Data:      data,
		CreatedAt: now,
	}
}

// TruncateBody shortens s to at most max runes, ending in an ellipsis when cut.
func TruncateBody(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
