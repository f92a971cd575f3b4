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

// RatingSummary aggregates the reviews a user received.
type RatingSummary struct {
	Average float64 `bson:"average" json:"average"`
	Count   int     `bson:"count" json:"count"`
}

// IDealService covers deals and the reviews that follow them.
type IDealService interface {
	Create(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.DealInput) (*models.Deal, error)
	Find(ctx context.Context, actor *models.User, dealID utils.SixID) (*models.Deal, error)
	List(ctx context.Context, actor *models.User, limit int, cursor string) ([]models.Deal, string, error)
	Update(ctx context.Context, actor *models.User, dealID utils.SixID, in *validation.DealUpdateInput) (*models.Deal, error)
	CreateReview(ctx context.Context, actor *models.User, dealID utils.SixID, in *validation.ReviewInput) (*models.DealReview, error)
	DeleteReview(ctx context.Context, actor *models.User, reviewID utils.SixID) error
	ReviewsFor(ctx context.Context, userID utils.SixID, limit int, cursor string) ([]models.DealReview, string, error)
	RatingSummary(ctx context.Context, userID utils.SixID) (RatingSummary, error)
}

type dealService struct {
	db        *mongo.Database
	validator *validation.Validator
	ads       IAdService
	configSvc IConfigService
	now       func() time.Time
}

func NewDealService(db *mongo.Database, v *validation.Validator, ads IAdService, configSvc IConfigService) IDealService {
	return &dealService{db: db, validator: v, ads: ads, configSvc: configSvc, now: func() time.Time { return time.Now().UTC() }}
}

func (s *dealService) load(ctx context.Context, id utils.SixID) (*models.Deal, error) {
	var d models.Deal
	if err := findOne(ctx, s.db.Collection(dealsCollection), "deal", bson.M{"_id": id}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *dealService) Create(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.DealInput) (*models.Deal, error) {
	if err := s.validator.CreateDeal(ctx, in); err != nil {
		return nil, err
	}
	ad, err := s.ads.Find(ctx, adID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("ad.create_deal", policy.Ads.CreateDeal(actor, ad)); err != nil {
		return nil, err
	}
	buyer := in.Buyer()
	if buyer != nil && *buyer == ad.UserID {
		return nil, validation.Single("buyer_id", "The buyer cannot be the seller.")
	}

	now := s.now()
	deal := &models.Deal{
		AdID:       ad.ID,
		SellerID:   ad.UserID,
		BuyerID:    buyer,
		Status:     models.DealPending,
		PriceFinal: in.Price(),
		Currency:   in.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := db.InsertOne(ctx, s.db.Collection(dealsCollection), deal); err != nil {
		return nil, fmt.Errorf("failed to insert deal for ad %s: %w", ad.ID.String(), err)
	}
	zap.L().Info("deal created", zap.String("deal_id", deal.ID.String()), zap.String("ad_id", ad.ID.String()))
	return deal, nil
}

func (s *dealService) Find(ctx context.Context, actor *models.User, dealID utils.SixID) (*models.Deal, error) {
	d, err := s.load(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("deal.view", policy.Deals.View(actor, d)); err != nil {
		return nil, err
	}
	return d, nil
}

// List returns deals where the actor is seller or buyer, newest first.
func (s *dealService) List(ctx context.Context, actor *models.User, limit int, cursor string) ([]models.Deal, string, error) {
	if actor == nil {
		return nil, "", ErrForbidden
	}
	limit = PageSize(limit)
	filter := bson.M{"$or": bson.A{bson.M{"seller_id": actor.ID}, bson.M{"buyer_id": actor.ID}}}
	applyCursor(filter, "created_at", cursor)
	opts := options.Find().SetSort(descending("created_at")).SetLimit(int64(limit + 1))

	cur, err := s.db.Collection(dealsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list deals: %w", err)
	}
	items := []models.Deal{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, "", fmt.Errorf("failed to decode deals: %w", err)
	}
	next := ""
	if len(items) > limit {
		last := items[limit-1]
		next = EncodeCursor(last.CreatedAt, last.ID)
		items = items[:limit]
	}
	return items, next, nil
}

// Update edits a pending deal. Completing it stamps completed_at, which opens
// the review window, and marks the ad sold.
func (s *dealService) Update(ctx context.Context, actor *models.User, dealID utils.SixID, in *validation.DealUpdateInput) (*models.Deal, error) {
	if err := s.validator.UpdateDeal(in); err != nil {
		return nil, err
	}
	d, err := s.load(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if err := policy.Check("deal.update", policy.Deals.Update(actor, d) && d.Status == models.DealPending); err != nil {
		return nil, err
	}

	now := s.now()
	set := bson.M{"updated_at": now}
	if p := in.Price(); p != nil {
		d.PriceFinal = p
		set["price_final"] = *p
	}
	if in.Currency != "" {
		d.Currency = in.Currency
		set["currency"] = in.Currency
	}
	if in.Status != "" {
		d.Status = models.DealStatus(in.Status)
		set["status"] = d.Status
		if d.Status == models.DealCompleted {
			d.CompletedAt = &now
			set["completed_at"] = now
		}
	}
	d.UpdatedAt = now

	// the status guard makes concurrent completions race-free
	res, err := s.db.Collection(dealsCollection).UpdateOne(ctx,
		bson.M{"_id": d.ID, "status": models.DealPending},
		bson.M{"$set": set})
	if err != nil {
		return nil, fmt.Errorf("failed to update deal %s: %w", d.ID.String(), err)
	}
	if res.MatchedCount == 0 {
		return nil, ErrForbidden
	}
	if d.Status == models.DealCompleted {
		if _, err := markAdSold(ctx, s.db, d.AdID, now); err != nil {
			zap.L().Error("failed to mark ad sold after deal completion", zap.String("deal_id", d.ID.String()), zap.Error(err))
		}
	}
	return d, nil
}

// CreateReview stores the actor's review of the counterparty. A second review
// of the same deal by the same rater is rejected by the unique index.
func (s *dealService) CreateReview(ctx context.Context, actor *models.User, dealID utils.SixID, in *validation.ReviewInput) (*models.DealReview, error) {
	if err := s.validator.CreateReview(in); err != nil {
		return nil, err
	}
	d, err := s.load(ctx, dealID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	open := d.ReviewsOpen(now, s.configSvc.ReviewWindow(ctx))
	if err := policy.Check("deal.create_review", policy.Deals.CreateReview(actor, d, open) && policy.DealReviews.Create(actor)); err != nil {
		return nil, err
	}
	ratee, ok := d.Counterparty(actor.ID)
	if err := policy.Check("deal.create_review", ok); err != nil {
		return nil, err
	}

	review := &models.DealReview{
		DealID:    d.ID,
		RaterID:   actor.ID,
		RateeID:   ratee,
		Rating:    in.Rating,
		Comment:   in.Comment,
		CreatedAt: now,
	}
	if err := db.InsertOne(ctx, s.db.Collection(dealReviewsCollection), review); err != nil {
		if db.DuplicateKeyIndex(err) == dealReviewIndex {
			return nil, validation.Single("deal", "You have already reviewed this deal.")
		}
		return nil, fmt.Errorf("failed to insert review for deal %s: %w", d.ID.String(), err)
	}
	return review, nil
}

func (s *dealService) DeleteReview(ctx context.Context, actor *models.User, reviewID utils.SixID) error {
	coll := s.db.Collection(dealReviewsCollection)
	var review models.DealReview
	if err := findOne(ctx, coll, "review", bson.M{"_id": reviewID}, &review); err != nil {
		return err
	}
	if err := policy.Check("review.delete", policy.DealReviews.Delete(actor, &review)); err != nil {
		return err
	}
	if _, err := coll.DeleteOne(ctx, bson.M{"_id": reviewID}); err != nil {
		return fmt.Errorf("failed to delete review %s: %w", reviewID.String(), err)
	}
	zap.L().Info("review deleted", zap.String("review_id", reviewID.String()), zap.String("admin_id", actor.ID.String()))
	return nil
}

// ReviewsFor lists reviews received by userID, newest first.
func (s *dealService) ReviewsFor(ctx context.Context, userID utils.SixID, limit int, cursor string) ([]models.DealReview, string, error) {
	limit = PageSize(limit)
	filter := bson.M{"ratee_id": userID}
	applyCursor(filter, "created_at", cursor)
	opts := options.Find().SetSort(descending("created_at")).SetLimit(int64(limit + 1))

	cur, err := s.db.Collection(dealReviewsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list reviews: %w", err)
	}
	items := []models.DealReview{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, "", fmt.Errorf("failed to decode reviews: %w", err)
	}
	next := ""
	if len(items) > limit {
		last := items[limit-1]
		next = EncodeCursor(last.CreatedAt, last.ID)
		items = items[:limit]
	}
	return items, next, nil
}

func (s *dealService) RatingSummary(ctx context.Context, userID utils.SixID) (RatingSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"ratee_id": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"average": bson.M{"$avg": "$rating"},
			"count":   bson.M{"$sum": 1},
		}}},
	}
	cur, err := s.db.Collection(dealReviewsCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return RatingSummary{}, fmt.Errorf("failed to aggregate ratings: %w", err)
	}
	defer cur.Close(ctx)
	var summary RatingSummary
	if cur.Next(ctx) {
		if err := cur.Decode(&summary); err != nil {
			return RatingSummary{}, fmt.Errorf("failed to decode rating summary: %w", err)
		}
	}
	if err := cur.Err(); err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return RatingSummary{}, fmt.Errorf("failed to read rating summary: %w", err)
	}
	return summary, nil
}
