package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/db"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/policy"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// IConversationService handles messaging between ad owners and enquirers.
type IConversationService interface {
	Start(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.MessageInput) (*models.Conversation, *models.Message, error)
	Find(ctx context.Context, actor *models.User, conversationID utils.SixID) (*models.Conversation, error)
	List(ctx context.Context, actor *models.User, archived bool, limit int, cursor string) ([]models.Conversation, string, error)
	Messages(ctx context.Context, actor *models.User, conversationID utils.SixID, limit int, after string) ([]models.Message, string, error)
	SendMessage(ctx context.Context, actor *models.User, conversationID utils.SixID, in *validation.MessageInput) (*models.Message, error)
	UpdateStatus(ctx context.Context, actor *models.User, conversationID utils.SixID, in *validation.ConversationStatusInput) (*models.Conversation, error)
	Archive(ctx context.Context, actor *models.User, conversationID utils.SixID, archived bool) (*models.Conversation, error)
}

type conversationService struct {
	db            *mongo.Database
	validator     *validation.Validator
	ads           IAdService
	notifications INotificationService
}

func NewConversationService(db *mongo.Database, v *validation.Validator, ads IAdService, notifications INotificationService) IConversationService {
	return &conversationService{db: db, validator: v, ads: ads, notifications: notifications}
}

func (s *conversationService) load(ctx context.Context, id utils.SixID) (*models.Conversation, error) {
	var c models.Conversation
	if err := findOne(ctx, s.db.Collection(conversationsCollection), "conversation", bson.M{"_id": id}, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Start opens, or reuses, the actor's conversation about an ad and posts the first message.
func (s *conversationService) Start(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.MessageInput) (*models.Conversation, *models.Message, error) {
	if err := s.validator.SendMessage(in); err != nil {
		return nil, nil, err
	}
	ad, err := s.ads.Find(ctx, adID)
	if err != nil {
		return nil, nil, err
	}
	if err := policy.Check("ad.contact", policy.Ads.Contact(actor, ad)); err != nil {
		return nil, nil, err
	}

	coll := s.db.Collection(conversationsCollection)
	var conv models.Conversation
	err = coll.FindOne(ctx, bson.M{"ad_id": ad.ID, "member_id": actor.ID}).Decode(&conv)
	switch {
	case err == nil:
	case errors.Is(err, mongo.ErrNoDocuments):
		conv = *models.NewConversation(ad, actor.ID, time.Now().UTC())
		if err := db.InsertOne(ctx, coll, &conv); err != nil {
			return nil, nil, fmt.Errorf("failed to create conversation about ad %s: %w", ad.ID.String(), err)
		}
		zap.L().Info("conversation started", zap.String("conversation_id", conv.ID.String()), zap.String("ad_id", ad.ID.String()))
	default:
		return nil, nil, fmt.Errorf("error finding conversation about ad %s: %w", ad.ID.String(), err)
	}

	msg, err := s.send(ctx, actor, &conv, in.Body, ad)
	if err != nil {
		return nil, nil, err
	}
	return &conv, msg, nil
}

func (s *conversationService) Find(ctx context.Context, actor *models.User, conversationID utils.SixID) (*models.Conversation, error) {
	c, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("conversation.view", policy.Conversations.View(actor, c)); err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the actor's conversations, most recently active first.
func (s *conversationService) List(ctx context.Context, actor *models.User, archived bool, limit int, cursor string) ([]models.Conversation, string, error) {
	if actor == nil {
		return nil, "", ErrForbidden
	}
	limit = PageSize(limit)
	filter := bson.M{"$or": bson.A{
		bson.M{"owner_id": actor.ID, "archived_by_owner": archived},
		bson.M{"member_id": actor.ID, "archived_by_member": archived},
	}}
	applyCursor(filter, "updated_at", cursor)
	opts := options.Find().SetSort(descending("updated_at")).SetLimit(int64(limit + 1))

	cur, err := s.db.Collection(conversationsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list conversations: %w", err)
	}
	items := []models.Conversation{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, "", fmt.Errorf("failed to decode conversations: %w", err)
	}
	next := ""
	if len(items) > limit {
		last := items[limit-1]
		next = EncodeCursor(last.UpdatedAt, last.ID)
		items = items[:limit]
	}
	return items, next, nil
}

// Messages returns messages oldest first. after is the cursor of the last message seen.
func (s *conversationService) Messages(ctx context.Context, actor *models.User, conversationID utils.SixID, limit int, after string) ([]models.Message, string, error) {
	if _, err := s.Find(ctx, actor, conversationID); err != nil {
		return nil, "", err
	}
	limit = PageSize(limit)
	filter := bson.M{"conversation_id": conversationID}
	if after != "" {
		t, id, err := DecodeCursor(after)
		if err != nil {
			return nil, "", validation.Single("after", "The after cursor is invalid.")
		}
		filter["$or"] = bson.A{
			bson.M{"created_at": t, "_id": bson.M{"$gt": id}},
			bson.M{"created_at": bson.M{"$gt": t}},
		}
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit + 1))
	cur, err := s.db.Collection(messagesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list messages: %w", err)
	}
	items := []models.Message{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, "", fmt.Errorf("failed to decode messages: %w", err)
	}
	next := ""
	if len(items) > limit {
		last := items[limit-1]
		next = EncodeCursor(last.CreatedAt, last.ID)
		items = items[:limit]
	}
	return items, next, nil
}

func (s *conversationService) SendMessage(ctx context.Context, actor *models.User, conversationID utils.SixID, in *validation.MessageInput) (*models.Message, error) {
	if err := s.validator.SendMessage(in); err != nil {
		return nil, err
	}
	conv, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, actor, conv, in.Body, nil)
}

// send authorizes and stores one message, then notifies the other party.
// ad is loaded for the notification when not supplied.
func (s *conversationService) send(ctx context.Context, actor *models.User, conv *models.Conversation, body string, ad *models.Ad) (*models.Message, error) {
	if err := policy.Check("conversation.send", policy.Conversations.Send(actor, conv)); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &models.Message{ConversationID: conv.ID, SenderID: actor.ID, Body: body, CreatedAt: now}
	if err := db.InsertOne(ctx, s.db.Collection(messagesCollection), msg); err != nil {
		return nil, fmt.Errorf("failed to insert message in conversation %s: %w", conv.ID.String(), err)
	}

	recipientArchive := conv.ArchiveField(conv.OtherParty(actor.ID))
	_, err := s.db.Collection(conversationsCollection).UpdateOne(ctx, bson.M{"_id": conv.ID},
		bson.M{"$set": bson.M{"last_message_at": now, "updated_at": now, recipientArchive: false}})
	if err != nil {
		zap.L().Error("failed to touch conversation", zap.String("conversation_id", conv.ID.String()), zap.Error(err))
	} else {
		conv.LastMessageAt = &now
		conv.UpdatedAt = now
		if recipientArchive == "archived_by_owner" {
			conv.ArchivedByOwner = false
		} else {
			conv.ArchivedByMember = false
		}
	}

	if ad == nil {
		if found, err := s.ads.Find(ctx, conv.AdID); err == nil {
			ad = found
		}
	}
	if _, err := s.notifications.NotifyNewMessage(ctx, conv, msg, actor, ad); err != nil {
		zap.L().Error("failed to record message notification", zap.String("message_id", msg.ID.String()), zap.Error(err))
	}
	return msg, nil
}

func (s *conversationService) UpdateStatus(ctx context.Context, actor *models.User, conversationID utils.SixID, in *validation.ConversationStatusInput) (*models.Conversation, error) {
	if err := s.validator.ConversationStatus(in); err != nil {
		return nil, err
	}
	conv, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("conversation.update", policy.Conversations.Update(actor, conv)); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	conv.Status = models.ConversationStatus(in.Status)
	conv.UpdatedAt = now
	_, err = s.db.Collection(conversationsCollection).UpdateOne(ctx, bson.M{"_id": conv.ID},
		bson.M{"$set": bson.M{"status": conv.Status, "updated_at": now}})
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation %s: %w", conv.ID.String(), err)
	}
	return conv, nil
}

// Archive sets the actor's own archive flag. An admin outside the
// conversation has no flag to set and is denied.
func (s *conversationService) Archive(ctx context.Context, actor *models.User, conversationID utils.SixID, archived bool) (*models.Conversation, error) {
	conv, err := s.load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	allowed := policy.Conversations.Archive(actor, conv) && conv.IsParticipant(actor.ID)
	if err := policy.Check("conversation.archive", allowed); err != nil {
		return nil, err
	}
	field := conv.ArchiveField(actor.ID)
	_, err = s.db.Collection(conversationsCollection).UpdateOne(ctx, bson.M{"_id": conv.ID}, bson.M{"$set": bson.M{field: archived}})
	if err != nil {
		return nil, fmt.Errorf("failed to archive conversation %s: %w", conv.ID.String(), err)
	}
	if field == "archived_by_owner" {
		conv.ArchivedByOwner = archived
	} else {
		conv.ArchivedByMember = archived
	}
	return conv, nil
}
