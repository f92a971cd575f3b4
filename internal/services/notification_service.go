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
	"github.com/returnordie/til-i-allt-sub001/internal/metrics"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// INotificationService records and serves in-app notifications.
type INotificationService interface {
	NotifyNewMessage(ctx context.Context, conv *models.Conversation, msg *models.Message, sender *models.User, ad *models.Ad) (*models.Notification, error)
	List(ctx context.Context, actor *models.User, unreadOnly bool, limit int, cursor string) ([]models.Notification, string, error)
	UnreadCount(ctx context.Context, actor *models.User) (int64, error)
	MarkRead(ctx context.Context, actor *models.User, notificationID utils.SixID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, actor *models.User) (int64, error)
}

type notificationService struct {
	db *mongo.Database
}

func NewNotificationService(db *mongo.Database) INotificationService {
	return &notificationService{db: db}
}

// NotifyNewMessage stores a message.new entry for the other participant when
// their messages preference is on. A nil notification with nil error means
// the recipient opted out.
func (s *notificationService) NotifyNewMessage(ctx context.Context, conv *models.Conversation, msg *models.Message, sender *models.User, ad *models.Ad) (*models.Notification, error) {
	recipientID := conv.OtherParty(msg.SenderID)
	var recipient models.User
	if err := findOne(ctx, s.db.Collection(usersCollection), "user", bson.M{"_id": recipientID, "deleted": false}, &recipient); err != nil {
		metrics.Notifications.WithLabelValues(models.NotificationKindNewMessage, "failed").Inc()
		return nil, err
	}
	if !recipient.NotificationPreferences.Messages {
		metrics.Notifications.WithLabelValues(models.NotificationKindNewMessage, "skipped").Inc()
		return nil, nil
	}

	n := models.NewMessageNotification(recipientID, conv, msg, sender, ad, time.Now().UTC())
	if err := db.InsertOne(ctx, s.db.Collection(notificationsCollection), n); err != nil {
		metrics.Notifications.WithLabelValues(models.NotificationKindNewMessage, "failed").Inc()
		return nil, fmt.Errorf("failed to store notification for user %s: %w", recipientID.String(), err)
	}
	metrics.Notifications.WithLabelValues(models.NotificationKindNewMessage, "stored").Inc()
	zap.L().Debug("notification stored", zap.String("user_id", recipientID.String()), zap.String("kind", n.Kind))
	return n, nil
}

func (s *notificationService) List(ctx context.Context, actor *models.User, unreadOnly bool, limit int, cursor string) ([]models.Notification, string, error) {
	if actor == nil {
		return nil, "", ErrForbidden
	}
	limit = PageSize(limit)
	filter := bson.M{"user_id": actor.ID}
	if unreadOnly {
		filter["read_at"] = nil
	}
	applyCursor(filter, "created_at", cursor)
	opts := options.Find().SetSort(descending("created_at")).SetLimit(int64(limit + 1))

	cur, err := s.db.Collection(notificationsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list notifications: %w", err)
	}
	items := []models.Notification{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, "", fmt.Errorf("failed to decode notifications: %w", err)
	}
	next := ""
	if len(items) > limit {
		last := items[limit-1]
		next = EncodeCursor(last.CreatedAt, last.ID)
		items = items[:limit]
	}
	return items, next, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, actor *models.User) (int64, error) {
	if actor == nil {
		return 0, ErrForbidden
	}
	n, err := s.db.Collection(notificationsCollection).CountDocuments(ctx, bson.M{"user_id": actor.ID, "read_at": nil})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return n, nil
}

// MarkRead sets read_at once. Other users' notifications are reported as missing.
func (s *notificationService) MarkRead(ctx context.Context, actor *models.User, notificationID utils.SixID) (*models.Notification, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	coll := s.db.Collection(notificationsCollection)
	filter := bson.M{"_id": notificationID, "user_id": actor.ID}
	var n models.Notification
	if err := findOne(ctx, coll, "notification", filter, &n); err != nil {
		return nil, err
	}
	if n.ReadAt != nil {
		return &n, nil
	}

	now := time.Now().UTC()
	unread := bson.M{"_id": notificationID, "user_id": actor.ID, "read_at": nil}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := coll.FindOneAndUpdate(ctx, unread, bson.M{"$set": bson.M{"read_at": now}}, opts).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// read concurrently; return the stored state
		if err := findOne(ctx, coll, "notification", filter, &n); err != nil {
			return nil, err
		}
		return &n, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark notification %s read: %w", notificationID.String(), err)
	}
	return &n, nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, actor *models.User) (int64, error) {
	if actor == nil {
		return 0, ErrForbidden
	}
	res, err := s.db.Collection(notificationsCollection).UpdateMany(ctx,
		bson.M{"user_id": actor.ID, "read_at": nil},
		bson.M{"$set": bson.M{"read_at": time.Now().UTC()}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.ModifiedCount, nil
}
