package models

import (
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

type ConversationStatus string

const (
	ConversationOpen    ConversationStatus = "open"
	ConversationClosed  ConversationStatus = "closed"
	ConversationBlocked ConversationStatus = "blocked"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationOpen, ConversationClosed, ConversationBlocked:
		return true
	}
	return false
}

// Conversation is a thread between an ad's owner and one enquirer.
type Conversation struct {
	Base             `bson:",inline"`
	AdID             utils.SixID        `bson:"ad_id" json:"ad_id"`
	OwnerID          utils.SixID        `bson:"owner_id" json:"owner_id"`
	MemberID         utils.SixID        `bson:"member_id" json:"member_id"`
	Status           ConversationStatus `bson:"status" json:"status"`
	ArchivedByOwner  bool               `bson:"archived_by_owner" json:"archived_by_owner"`
	ArchivedByMember bool               `bson:"archived_by_member" json:"archived_by_member"`
	LastMessageAt    *time.Time         `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
}

// NewConversation opens a thread about ad between its owner and member.
func NewConversation(ad *Ad, member utils.SixID, now time.Time) *Conversation {
	return &Conversation{
		Base:      NewBase(),
		AdID:      ad.ID,
		OwnerID:   ad.UserID,
		MemberID:  member,
		Status:    ConversationOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (c *Conversation) IsParticipant(userID utils.SixID) bool {
	return c.OwnerID == userID || c.MemberID == userID
}

// OtherParty returns the participant who is not userID.
func (c *Conversation) OtherParty(userID utils.SixID) utils.SixID {
	if c.OwnerID == userID {
		return c.MemberID
	}
	return c.OwnerID
}

// ArchiveField names the per-participant archive flag for userID.
func (c *Conversation) ArchiveField(userID utils.SixID) string {
	if c.OwnerID == userID {
		return "archived_by_owner"
	}
	return "archived_by_member"
}
