package models

import (
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// DealReview is one party's rating of the other after a completed deal.
type DealReview struct {
	Base      `bson:",inline"`
	DealID    utils.SixID `bson:"deal_id" json:"deal_id"`
	RaterID   utils.SixID `bson:"rater_id" json:"rater_id"`
	RateeID   utils.SixID `bson:"ratee_id" json:"ratee_id"`
	Rating    int         `bson:"rating" json:"rating"`
	Comment   string      `bson:"comment,omitempty" json:"comment,omitempty"`
	CreatedAt time.Time   `bson:"created_at" json:"created_at"`
}
