package services

import (
	"context"
	"fmt"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// lookup answers the uniqueness and existence questions of the validation layer.
type lookup struct {
	db *mongo.Database
}

func NewLookup(db *mongo.Database) validation.Lookup {
	return &lookup{db: db}
}

func (l *lookup) exists(ctx context.Context, collection string, filter bson.M) (bool, error) {
	n, err := l.db.Collection(collection).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n > 0, nil
}

func userFilter(field, value string, exceptID utils.SixID) bson.M {
	f := bson.M{field: value}
	if !exceptID.IsZero() {
		f["_id"] = bson.M{"$ne": exceptID}
	}
	return f
}

// Soft-deleted users still hold their username, email and phone.
func (l *lookup) UsernameTaken(ctx context.Context, username string, exceptID utils.SixID) (bool, error) {
	return l.exists(ctx, usersCollection, userFilter("username", username, exceptID))
}

func (l *lookup) EmailTaken(ctx context.Context, email string, exceptID utils.SixID) (bool, error) {
	return l.exists(ctx, usersCollection, userFilter("email", email, exceptID))
}

func (l *lookup) PhoneTaken(ctx context.Context, phone string, exceptID utils.SixID) (bool, error) {
	return l.exists(ctx, usersCollection, userFilter("phone", phone, exceptID))
}

func (l *lookup) PostcodeExists(ctx context.Context, code string) (bool, error) {
	return l.exists(ctx, postcodesCollection, bson.M{"_id": code})
}

func (l *lookup) UserExists(ctx context.Context, id utils.SixID) (bool, error) {
	return l.exists(ctx, usersCollection, bson.M{"_id": id, "deleted": false})
}
