package validation

import (
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

const dateLayout = "2006-01-02"

type RegisterInput struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Username             string `json:"username" validate:"required,min=3,max=32,username"`
	Email                string `json:"email" validate:"required,max=255,email"`
	Password             string `json:"password" validate:"required,max=72,eqfield=PasswordConfirmation"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SettingsInput replaces the editable profile fields. Empty optional fields clear them.
type SettingsInput struct {
	Name             string `json:"name" validate:"required,min=2,max=120"`
	Username         string `json:"username" validate:"omitempty,min=3,max=32,username"`
	DateOfBirth      string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	Phone            string `json:"phone" validate:"omitempty,e164"`
	Postcode         string `json:"postcode" validate:"omitempty,max=10"`
	ShowPhone        bool   `json:"show_phone"`
	ShowEmail        bool   `json:"show_email"`
	PreferredContact string `json:"preferred_contact" validate:"omitempty,oneof=message call any"`
}

// BirthDate parses DateOfBirth; call only after validation passed.
func (in *SettingsInput) BirthDate() *time.Time {
	if in.DateOfBirth == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, in.DateOfBirth)
	if err != nil {
		return nil
	}
	return &t
}

type PasswordInput struct {
	CurrentPassword      string `json:"current_password" validate:"required"`
	Password             string `json:"password" validate:"required,max=72,eqfield=PasswordConfirmation"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// NotificationPreferencesInput requires every preference to be sent explicitly.
type NotificationPreferencesInput struct {
	Messages   *bool `json:"messages" validate:"required"`
	Deals      *bool `json:"deals" validate:"required"`
	Reviews    *bool `json:"reviews" validate:"required"`
	AdExpiry   *bool `json:"ad_expiry" validate:"required"`
	Newsletter *bool `json:"newsletter" validate:"required"`
}

func (in *NotificationPreferencesInput) Preferences() models.NotificationPreferences {
	deref := func(b *bool) bool { return b != nil && *b }
	return models.NotificationPreferences{
		Messages:   deref(in.Messages),
		Deals:      deref(in.Deals),
		Reviews:    deref(in.Reviews),
		AdExpiry:   deref(in.AdExpiry),
		Newsletter: deref(in.Newsletter),
	}
}

type AdInput struct {
	Section        string         `json:"section" form:"section" validate:"required,oneof=solutorg bilatorg fasteignir"`
	CategorySlug   string         `json:"category_slug" form:"category_slug" validate:"required,max=64"`
	ListingType    string         `json:"listing_type" form:"listing_type" validate:"required,oneof=sell want for_sale wanted"`
	Title          string         `json:"title" form:"title" validate:"required,min=3,max=120"`
	Price          *float64       `json:"price" form:"price" validate:"omitempty,gte=0"`
	Description    string         `json:"description" form:"description" validate:"max=20000"`
	Attributes     map[string]any `json:"attributes" form:"-"`
	MainImageIndex *int           `json:"main_image_index" form:"main_image_index"`
}

type AdUpdateInput struct {
	AdInput
	DeleteImageIDs []string `json:"delete_image_ids" form:"delete_image_ids" validate:"omitempty,max=15,dive,sixid"`
	MainImageID    string   `json:"main_image_id" form:"main_image_id" validate:"omitempty,sixid"`
}

// DeleteIDs parses DeleteImageIDs; call only after validation passed.
func (in *AdUpdateInput) DeleteIDs() []utils.SixID {
	ids := make([]utils.SixID, 0, len(in.DeleteImageIDs))
	for _, s := range in.DeleteImageIDs {
		if id, err := utils.ParseSixID(s); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

type DealInput struct {
	BuyerID    string   `json:"buyer_id" validate:"omitempty,sixid"`
	PriceFinal *float64 `json:"price_final" validate:"omitempty,gte=0"`
	Currency   string   `json:"currency" validate:"omitempty,len=3,alpha"`
}

// Buyer parses BuyerID; nil when absent.
func (in *DealInput) Buyer() *utils.SixID {
	if in.BuyerID == "" {
		return nil
	}
	id, err := utils.ParseSixID(in.BuyerID)
	if err != nil {
		return nil
	}
	return &id
}

// Price returns PriceFinal as a whole amount; call only after validation passed.
func (in *DealInput) Price() *int64 {
	return wholeAmount(in.PriceFinal)
}

// DealUpdateInput changes a pending deal.
type DealUpdateInput struct {
	Status     string   `json:"status" validate:"omitempty,oneof=completed cancelled"`
	PriceFinal *float64 `json:"price_final" validate:"omitempty,gte=0"`
	Currency   string   `json:"currency" validate:"omitempty,len=3,alpha"`
}

// Price returns PriceFinal as a whole amount; call only after validation passed.
func (in *DealUpdateInput) Price() *int64 {
	return wholeAmount(in.PriceFinal)
}

func wholeAmount(f *float64) *int64 {
	if f == nil || *f < 0 || *f > MaxWholeAmount {
		return nil
	}
	p := int64(*f)
	return &p
}

type MessageInput struct {
	Body string `json:"body" validate:"required,min=1,max=5000"`
}

type ConversationStatusInput struct {
	Status string `json:"status" validate:"required,oneof=open closed blocked"`
}

type ReportInput struct {
	Reason string `json:"reason" validate:"required,oneof=scam spam illegal wrong_category duplicate offensive other"`
	Notes  string `json:"notes" validate:"max=2000"`
}

type ReviewInput struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type ExtendInput struct {
	Days int `json:"days" validate:"required"`
}

type HandleReportInput struct {
	Resolution string `json:"resolution" validate:"max=2000"`
}

type CategoryInput struct {
	Section  string `json:"section" validate:"required,oneof=solutorg bilatorg fasteignir"`
	Slug     string `json:"slug" validate:"required,min=2,max=64,slug"`
	Name     string `json:"name" validate:"required,min=2,max=120"`
	ParentID string `json:"parent_id" validate:"omitempty,sixid"`
	Position int    `json:"position"`
}

// Parent parses ParentID; nil when absent.
func (in *CategoryInput) Parent() *utils.SixID {
	if in.ParentID == "" {
		return nil
	}
	id, err := utils.ParseSixID(in.ParentID)
	if err != nil {
		return nil
	}
	return &id
}
