package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/returnordie/til-i-allt-sub001/internal/models"
)

// IPostcodeService looks up postal codes for the settings form.
type IPostcodeService interface {
	Search(ctx context.Context, query string, limit int) ([]models.Postcode, error)
	Upsert(ctx context.Context, p models.Postcode) error
}

type postcodeService struct {
	db *mongo.Database
}

func NewPostcodeService(db *mongo.Database) IPostcodeService {
	return &postcodeService{db: db}
}

// Search matches codes by prefix and places by case-insensitive prefix, ordered by code.
func (s *postcodeService) Search(ctx context.Context, query string, limit int) ([]models.Postcode, error) {
	query = strings.TrimSpace(query)
	filter := bson.M{}
	if query != "" {
		prefix := "^" + regexp.QuoteMeta(query)
		filter["$or"] = bson.A{
			bson.M{"_id": primitive.Regex{Pattern: prefix}},
			bson.M{"place": primitive.Regex{Pattern: prefix, Options: "i"}},
		}
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetLimit(int64(PageSize(limit)))
	cur, err := s.db.Collection(postcodesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to search postcodes: %w", err)
	}
	results := []models.Postcode{}
	if err := cur.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("failed to decode postcodes: %w", err)
	}
	return results, nil
}

func (s *postcodeService) Upsert(ctx context.Context, p models.Postcode) error {
	_, err := s.db.Collection(postcodesCollection).UpdateOne(ctx,
		bson.M{"_id": p.Code},
		bson.M{"$set": bson.M{"place": p.Place}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert postcode %s: %w", p.Code, err)
	}
	return nil
}
