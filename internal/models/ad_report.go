package models

import (
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

type ReportReason string

const (
	ReasonScam          ReportReason = "scam"
	ReasonSpam          ReportReason = "spam"
	ReasonIllegal       ReportReason = "illegal"
	ReasonWrongCategory ReportReason = "wrong_category"
	ReasonDuplicate     ReportReason = "duplicate"
	ReasonOffensive     ReportReason = "offensive"
	ReasonOther         ReportReason = "other"
)

type ReportStatus string

const (
	ReportOpen    ReportStatus = "open"
	ReportHandled ReportStatus = "handled"
)

// AdReport is a user complaint about an ad, queued for moderation.
type AdReport struct {
	Base       `bson:",inline"`
	AdID       utils.SixID  `bson:"ad_id" json:"ad_id"`
	ReporterID utils.SixID  `bson:"reporter_id" json:"reporter_id"`
	Reason     ReportReason `bson:"reason" json:"reason"`
	Notes      string       `bson:"notes,omitempty" json:"notes,omitempty"`
	Status     ReportStatus `bson:"status" json:"status"`
	HandledBy  *utils.SixID `bson:"handled_by,omitempty" json:"handled_by,omitempty"`
	HandledAt  *time.Time   `bson:"handled_at,omitempty" json:"handled_at,omitempty"`
	Resolution string       `bson:"resolution,omitempty" json:"resolution,omitempty"`
	CreatedAt  time.Time    `bson:"created_at" json:"created_at"`
}
