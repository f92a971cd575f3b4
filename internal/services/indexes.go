package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func keys(fields ...string) bson.D {
	d := bson.D{}
	for _, f := range fields {
		d = append(d, bson.E{Key: f, Value: 1})
	}
	return d
}

// indexModels lists every index the services rely on, per collection.
// Unique indexes are the final arbiter for the uniqueness rules.
func indexModels() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: keys("username"), Options: options.Index().SetUnique(true).SetName(usernameIndex)},
			{Keys: keys("email"), Options: options.Index().SetUnique(true).SetName(emailIndex)},
			{Keys: keys("phone"), Options: options.Index().SetUnique(true).SetName(phoneIndex).
				SetPartialFilterExpression(bson.M{"phone": bson.M{"$type": "string"}})},
		},
		adsCollection: {
			{Keys: bson.D{{Key: "title", Value: "text"}, {Key: "description", Value: "text"}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "published_at", Value: -1}, {Key: "_id", Value: -1}}},
			{Keys: keys("user_id")},
			{Keys: keys("status", "expires_at")},
		},
		categoriesCollection: {
			{Keys: keys("section", "slug"), Options: options.Index().SetUnique(true).SetName(categorySlugIdx)},
			{Keys: keys("parent_id")},
		},
		conversationsCollection: {
			{Keys: keys("ad_id", "member_id")},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}}},
			{Keys: bson.D{{Key: "member_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		},
		messagesCollection: {
			{Keys: keys("conversation_id", "created_at")},
		},
		dealsCollection: {
			{Keys: keys("seller_id")},
			{Keys: keys("buyer_id")},
		},
		dealReviewsCollection: {
			{Keys: keys("deal_id", "rater_id"), Options: options.Index().SetUnique(true).SetName(dealReviewIndex)},
			{Keys: bson.D{{Key: "ratee_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		adReportsCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		notificationsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		emailTemplatesCollection: {
			{Keys: keys("template_id", "locale"), Options: options.Index().SetUnique(true)},
		},
		configCollection: {
			{Keys: keys("key"), Options: options.Index().SetUnique(true)},
		},
	}
}

// EnsureIndexes creates missing indexes. Existing ones are left alone.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	for collection, models := range indexModels() {
		names, err := db.Collection(collection).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", collection, err)
		}
		zap.L().Debug("indexes ensured", zap.String("collection", collection), zap.Strings("names", names))
	}
	return nil
}
