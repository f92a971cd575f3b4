package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

func TestDealService_LifecycleAndReviews(t *testing.T) {
	env := newTestEnv(t, "testdb_deals")
	ctx := context.Background()
	seller := env.register(t, "seljandi")
	buyer := env.register(t, "kaupandi")
	stranger := env.register(t, "okunnugur")
	admin := env.admin(t, "admin")
	ad := env.ad(t, seller, "Hjól")

	_, err := env.deals.Create(ctx, buyer, ad.ID, &validation.DealInput{})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.deals.Create(ctx, seller, ad.ID, &validation.DealInput{BuyerID: seller.ID.String()})
	errs, ok := validation.AsErrors(err)
	require.True(t, ok)
	assert.Contains(t, errs, "buyer_id")

	price := 15000.0
	deal, err := env.deals.Create(ctx, seller, ad.ID, &validation.DealInput{BuyerID: buyer.ID.String(), PriceFinal: &price, Currency: "isk"})
	require.NoError(t, err)
	assert.Equal(t, models.DealPending, deal.Status)
	assert.Equal(t, "ISK", deal.Currency)
	assert.Equal(t, int64(15000), *deal.PriceFinal)

	_, err = env.deals.CreateReview(ctx, buyer, deal.ID, &validation.ReviewInput{Rating: 5})
	assert.ErrorIs(t, err, ErrForbidden, "pending deals cannot be reviewed")

	_, err = env.deals.Find(ctx, stranger, deal.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	done, err := env.deals.Update(ctx, buyer, deal.ID, &validation.DealUpdateInput{Status: "completed"})
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	soldAd, err := env.ads.Find(ctx, ad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AdStatusSold, soldAd.Status)

	_, err = env.deals.Update(ctx, seller, deal.ID, &validation.DealUpdateInput{Status: "cancelled"})
	assert.ErrorIs(t, err, ErrForbidden, "only pending deals change")

	review, err := env.deals.CreateReview(ctx, buyer, deal.ID, &validation.ReviewInput{Rating: 4, Comment: " Fínt "})
	require.NoError(t, err)
	assert.Equal(t, seller.ID, review.RateeID)
	assert.Equal(t, "Fínt", review.Comment)

	_, err = env.deals.CreateReview(ctx, buyer, deal.ID, &validation.ReviewInput{Rating: 1})
	errs, ok = validation.AsErrors(err)
	require.True(t, ok)
	assert.Contains(t, errs, "deal")

	_, err = env.deals.CreateReview(ctx, admin, deal.ID, &validation.ReviewInput{Rating: 1})
	assert.ErrorIs(t, err, ErrForbidden, "admins outside the deal have no counterparty")

	_, err = env.deals.CreateReview(ctx, seller, deal.ID, &validation.ReviewInput{Rating: 2})
	require.NoError(t, err)

	summary, err := env.deals.RatingSummary(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.InDelta(t, 4.0, summary.Average, 0.001)

	reviews, _, err := env.deals.ReviewsFor(ctx, buyer.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.ErrorIs(t, env.deals.DeleteReview(ctx, seller, reviews[0].ID), ErrForbidden)
	require.NoError(t, env.deals.DeleteReview(ctx, admin, reviews[0].ID))

	deals, _, err := env.deals.List(ctx, buyer, 10, "")
	require.NoError(t, err)
	assert.Len(t, deals, 1)
}

func TestDealService_ReviewWindowCloses(t *testing.T) {
	env := newTestEnv(t, "testdb_deal_window")
	ctx := context.Background()
	seller := env.register(t, "seljandi")
	buyer := env.register(t, "kaupandi")
	ad := env.ad(t, seller, "Hjól")

	deal, err := env.deals.Create(ctx, seller, ad.ID, &validation.DealInput{BuyerID: buyer.ID.String()})
	require.NoError(t, err)
	_, err = env.deals.Update(ctx, seller, deal.ID, &validation.DealUpdateInput{Status: "completed"})
	require.NoError(t, err)

	long := time.Now().Add(-31 * 24 * time.Hour)
	_, err = env.db.Collection(dealsCollection).UpdateOne(ctx, bson.M{"_id": deal.ID}, bson.M{"$set": bson.M{"completed_at": long}})
	require.NoError(t, err)

	_, err = env.deals.CreateReview(ctx, buyer, deal.ID, &validation.ReviewInput{Rating: 5})
	assert.ErrorIs(t, err, ErrForbidden)
}
