package models

import (
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// AdStatus is the lifecycle state of an ad.
type AdStatus string

const (
	AdStatusDraft    AdStatus = "draft"
	AdStatusActive   AdStatus = "active"
	AdStatusPaused   AdStatus = "paused"
	AdStatusSold     AdStatus = "sold"
	AdStatusArchived AdStatus = "archived"
)

// Section is one of the three marketplace verticals.
type Section string

const (
	SectionGoods      Section = "solutorg"
	SectionVehicles   Section = "bilatorg"
	SectionRealEstate Section = "fasteignir"
)

// Sections lists the verticals in navigation order.
var Sections = []Section{SectionGoods, SectionVehicles, SectionRealEstate}

func (s Section) Valid() bool {
	for _, v := range Sections {
		if v == s {
			return true
		}
	}
	return false
}

// ListingType says whether the poster is offering or seeking.
type ListingType string

const (
	ListingSell ListingType = "sell"
	ListingWant ListingType = "want"
)

// NormalizeListingType maps accepted synonyms onto the stored values.
func NormalizeListingType(s string) (ListingType, bool) {
	switch s {
	case "sell", "for_sale":
		return ListingSell, true
	case "want", "wanted":
		return ListingWant, true
	}
	return "", false
}

// AdImage is an uploaded photo stored in S3.
type AdImage struct {
	ID          utils.SixID `bson:"id" json:"id"`
	Key         string      `bson:"key" json:"key"`
	ThumbKey    string      `bson:"thumb_key,omitempty" json:"thumb_key,omitempty"`
	ContentType string      `bson:"content_type" json:"content_type"`
	Size        int64       `bson:"size" json:"size"`
	IsMain      bool        `bson:"is_main" json:"is_main"`
	Position    int         `bson:"position" json:"position"`
	Processed   bool        `bson:"processed" json:"processed"`
}

// Ad represents a classified ad.
type Ad struct {
	Base         `bson:",inline"`
	UserID       utils.SixID    `bson:"user_id" json:"user_id"`
	Status       AdStatus       `bson:"status" json:"status"`
	Section      Section        `bson:"section" json:"section"`
	CategoryID   utils.SixID    `bson:"category_id" json:"category_id"`
	CategorySlug string         `bson:"category_slug" json:"category_slug"`
	ListingType  ListingType    `bson:"listing_type" json:"listing_type"`
	Title        string         `bson:"title" json:"title"`
	Price        *float64       `bson:"price,omitempty" json:"price,omitempty"`
	Description  string         `bson:"description" json:"description"`
	Attributes   map[string]any `bson:"attributes,omitempty" json:"attributes,omitempty"`
	Images       []AdImage      `bson:"images" json:"images"`
	ExpiresAt    *time.Time     `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	PublishedAt  *time.Time     `bson:"published_at,omitempty" json:"published_at,omitempty"`
	SoldAt       *time.Time     `bson:"sold_at,omitempty" json:"sold_at,omitempty"`
	UpdatedAt    time.Time      `bson:"updated_at" json:"updated_at"`
	CreatedAt    time.Time      `bson:"created_at" json:"created_at"`
	Deleted      bool           `bson:"deleted" json:"-"`
}

// NewAd returns an active ad published at now that expires after lifetime.
func NewAd(owner utils.SixID, now time.Time, lifetime time.Duration) *Ad {
	expires := now.Add(lifetime)
	published := now
	return &Ad{
		Base:        NewBase(),
		UserID:      owner,
		Status:      AdStatusActive,
		Images:      []AdImage{},
		PublishedAt: &published,
		ExpiresAt:   &expires,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsOwnedBy reports whether userID posted the ad.
func (a *Ad) IsOwnedBy(userID utils.SixID) bool {
	return a.UserID == userID
}

// Image finds an image by id.
func (a *Ad) Image(id utils.SixID) (*AdImage, bool) {
	for i := range a.Images {
		if a.Images[i].ID == id {
			return &a.Images[i], true
		}
	}
	return nil, false
}

// MainImage returns the main image, if any.
func (a *Ad) MainImage() *AdImage {
	for i := range a.Images {
		if a.Images[i].IsMain {
			return &a.Images[i]
		}
	}
	return nil
}

// RemoveImages drops the given images and returns the removed ones.
func (a *Ad) RemoveImages(ids []utils.SixID) []AdImage {
	drop := make(map[utils.SixID]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := a.Images[:0]
	var removed []AdImage
	for _, img := range a.Images {
		if drop[img.ID] {
			removed = append(removed, img)
			continue
		}
		kept = append(kept, img)
	}
	a.Images = kept
	return removed
}

// SetMainImage marks id as main, or the first image when id is zero or unknown.
// Positions are renumbered so they stay contiguous.
func (a *Ad) SetMainImage(id utils.SixID) {
	found := false
	for i := range a.Images {
		a.Images[i].Position = i
		a.Images[i].IsMain = !id.IsZero() && a.Images[i].ID == id
		found = found || a.Images[i].IsMain
	}
	if !found && len(a.Images) > 0 {
		a.Images[0].IsMain = true
	}
}

// Extend moves the expiry forward by d from whichever is later of now and the current expiry.
func (a *Ad) Extend(now time.Time, d time.Duration) time.Time {
	from := now
	if a.ExpiresAt != nil && a.ExpiresAt.After(now) {
		from = *a.ExpiresAt
	}
	next := from.Add(d)
	a.ExpiresAt = &next
	return next
}
