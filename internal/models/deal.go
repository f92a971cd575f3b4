package models

import (
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

type DealStatus string

const (
	DealPending   DealStatus = "pending"
	DealCompleted DealStatus = "completed"
	DealCancelled DealStatus = "cancelled"
)

// Deal records an agreed sale between the ad owner and an optional buyer.
type Deal struct {
	Base        `bson:",inline"`
	AdID        utils.SixID  `bson:"ad_id" json:"ad_id"`
	SellerID    utils.SixID  `bson:"seller_id" json:"seller_id"`
	BuyerID     *utils.SixID `bson:"buyer_id,omitempty" json:"buyer_id,omitempty"`
	Status      DealStatus   `bson:"status" json:"status"`
	PriceFinal  *int64       `bson:"price_final,omitempty" json:"price_final,omitempty"`
	Currency    string       `bson:"currency,omitempty" json:"currency,omitempty"`
	CompletedAt *time.Time   `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
}

func (d *Deal) HasBuyer() bool {
	return d.BuyerID != nil && !d.BuyerID.IsZero()
}

func (d *Deal) IsParty(userID utils.SixID) bool {
	return d.SellerID == userID || (d.HasBuyer() && *d.BuyerID == userID)
}

// Counterparty returns the other side of the deal from userID.
func (d *Deal) Counterparty(userID utils.SixID) (utils.SixID, bool) {
	switch {
	case d.SellerID == userID && d.HasBuyer():
		return *d.BuyerID, true
	case d.HasBuyer() && *d.BuyerID == userID:
		return d.SellerID, true
	}
	return utils.SixID{}, false
}

// ReviewsOpen reports whether now falls in [completed_at, completed_at+window).
func (d *Deal) ReviewsOpen(now time.Time, window time.Duration) bool {
	if d.CompletedAt == nil {
		return false
	}
	return !now.Before(*d.CompletedAt) && now.Before(d.CompletedAt.Add(window))
}
