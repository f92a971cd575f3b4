package validation

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/auth"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// Lookup answers the store-backed questions some rules need.
// exceptID excludes the acting user's own row.
type Lookup interface {
	UsernameTaken(ctx context.Context, username string, exceptID utils.SixID) (bool, error)
	EmailTaken(ctx context.Context, email string, exceptID utils.SixID) (bool, error)
	PhoneTaken(ctx context.Context, phone string, exceptID utils.SixID) (bool, error)
	PostcodeExists(ctx context.Context, code string) (bool, error)
	UserExists(ctx context.Context, id utils.SixID) (bool, error)
}

// Limits bounds ad image uploads.
type Limits struct {
	MaxImages     int
	MaxImageBytes int64
}

type Validator struct {
	lookup   Lookup
	password *regexp.Regexp
	limits   Limits
	now      func() time.Time
}

// New builds a Validator. passwordPattern is the strength rule for new passwords.
func New(lookup Lookup, passwordPattern string, limits Limits) (*Validator, error) {
	re, err := regexp.Compile(passwordPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid password pattern: %w", err)
	}
	if limits.MaxImages <= 0 {
		limits.MaxImages = 15
	}
	if limits.MaxImageBytes <= 0 {
		limits.MaxImageBytes = 8 << 20
	}
	return &Validator{lookup: lookup, password: re, limits: limits, now: time.Now}, nil
}

func (v *Validator) Limits() Limits { return v.limits }

func (v *Validator) checkPassword(errs Errors, password string) {
	if password != "" && !errs.Has("password") && !v.password.MatchString(password) {
		errs.Add("password", "The password format is invalid.")
	}
}

func (v *Validator) Register(ctx context.Context, in *RegisterInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = NormalizeEmail(in.Email)

	errs := structErrors(in)
	v.checkPassword(errs, in.Password)
	in.Username = NormalizeUsername(in.Username)

	if !errs.Has("username") {
		taken, err := v.lookup.UsernameTaken(ctx, in.Username, utils.SixID{})
		if err != nil {
			return fmt.Errorf("failed to check username: %w", err)
		}
		if taken {
			errs.Add("username", "The username has already been taken.")
		}
	}
	if !errs.Has("email") {
		taken, err := v.lookup.EmailTaken(ctx, in.Email, utils.SixID{})
		if err != nil {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if taken {
			errs.Add("email", "The email has already been taken.")
		}
	}
	return result("register", errs)
}

func (v *Validator) Login(in *LoginInput) error {
	in.Email = NormalizeEmail(in.Email)
	return result("login", structErrors(in))
}

// UpdateSettings checks a settings form for u. A username different from the
// current one must be free and past the change cooldown.
func (v *Validator) UpdateSettings(ctx context.Context, u *models.User, in *SettingsInput, cooldown time.Duration) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Postcode = strings.TrimSpace(in.Postcode)

	errs := structErrors(in)
	now := v.now()

	if in.Username != "" && !errs.Has("username") {
		in.Username = NormalizeUsername(in.Username)
		if in.Username != u.Username {
			if !u.CanChangeUsername(in.Username, now, cooldown) {
				unlock := u.UsernameUnlockAt(cooldown)
				errs.Add("username", fmt.Sprintf("You can change your username again on %s.", unlock.UTC().Format("2006-01-02 15:04")))
			} else {
				taken, err := v.lookup.UsernameTaken(ctx, in.Username, u.ID)
				if err != nil {
					return fmt.Errorf("failed to check username: %w", err)
				}
				if taken {
					errs.Add("username", "The username has already been taken.")
				}
			}
		}
	}
	if in.Phone != "" && !errs.Has("phone") {
		taken, err := v.lookup.PhoneTaken(ctx, in.Phone, u.ID)
		if err != nil {
			return fmt.Errorf("failed to check phone: %w", err)
		}
		if taken {
			errs.Add("phone", "The phone has already been taken.")
		}
	}
	if in.Postcode != "" && !errs.Has("postcode") {
		ok, err := v.lookup.PostcodeExists(ctx, in.Postcode)
		if err != nil {
			return fmt.Errorf("failed to check postcode: %w", err)
		}
		if !ok {
			errs.Add("postcode", "The selected postcode is invalid.")
		}
	}
	if dob := in.BirthDate(); dob != nil && !errs.Has("date_of_birth") && !dob.Before(now) {
		errs.Add("date_of_birth", "The date of birth must be a date before today.")
	}
	return result("settings", errs)
}

func (v *Validator) ChangePassword(u *models.User, in *PasswordInput) error {
	errs := structErrors(in)
	if in.CurrentPassword != "" && !auth.CheckPasswordHash(in.CurrentPassword, u.PasswordHash) {
		errs.Add("current_password", "The current password is incorrect.")
	}
	v.checkPassword(errs, in.Password)
	return result("password", errs)
}

func (v *Validator) NotificationPreferences(in *NotificationPreferencesInput) error {
	return result("notification_preferences", structErrors(in))
}

func (v *Validator) normalizeAd(in *AdInput) {
	in.Title = strings.TrimSpace(in.Title)
	in.CategorySlug = strings.TrimSpace(in.CategorySlug)
	in.Description = strings.TrimSpace(in.Description)
}

func (v *Validator) adErrors(in *AdInput, structIn any, uploads []Upload) Errors {
	v.normalizeAd(in)
	errs := structErrors(structIn)
	v.checkUploads(errs, uploads)
	if in.MainImageIndex != nil && (*in.MainImageIndex < 0 || *in.MainImageIndex >= len(uploads)) {
		errs.Add("main_image_index", "The main image index is invalid.")
	}
	if lt, ok := models.NormalizeListingType(in.ListingType); ok {
		in.ListingType = string(lt)
	}
	return errs
}

// CreateAd checks an ad form and its uploads. listing_type is normalized in place.
func (v *Validator) CreateAd(in *AdInput, uploads []Upload) error {
	return result("ad_create", v.adErrors(in, in, uploads))
}

func (v *Validator) UpdateAd(in *AdUpdateInput, uploads []Upload) error {
	return result("ad_update", v.adErrors(&in.AdInput, in, uploads))
}

func (v *Validator) CreateDeal(ctx context.Context, in *DealInput) error {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	errs := structErrors(in)
	checkWhole(errs, "price_final", in.PriceFinal)
	if buyer := in.Buyer(); buyer != nil && !errs.Has("buyer_id") {
		ok, err := v.lookup.UserExists(ctx, *buyer)
		if err != nil {
			return fmt.Errorf("failed to check buyer: %w", err)
		}
		if !ok {
			errs.Add("buyer_id", "The selected buyer id is invalid.")
		}
	}
	return result("deal_create", errs)
}

func (v *Validator) UpdateDeal(in *DealUpdateInput) error {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	errs := structErrors(in)
	checkWhole(errs, "price_final", in.PriceFinal)
	return result("deal_update", errs)
}

// MaxWholeAmount is the largest amount a float64 carries exactly; anything
// above it would also overflow or round when stored as int64.
const MaxWholeAmount = 1 << 53

// checkWhole requires a non-negative integer that fits MaxWholeAmount.
func checkWhole(errs Errors, field string, f *float64) {
	if f == nil || errs.Has(field) {
		return
	}
	switch {
	case *f != math.Trunc(*f):
		errs.Add(field, fmt.Sprintf("The %s must be an integer.", label(field)))
	case *f > MaxWholeAmount:
		errs.Add(field, fmt.Sprintf("The %s may not be greater than %d.", label(field), int64(MaxWholeAmount)))
	}
}

func (v *Validator) SendMessage(in *MessageInput) error {
	in.Body = strings.TrimSpace(in.Body)
	return result("message_send", structErrors(in))
}

func (v *Validator) ConversationStatus(in *ConversationStatusInput) error {
	return result("conversation_status", structErrors(in))
}

func (v *Validator) ReportAd(in *ReportInput) error {
	in.Notes = strings.TrimSpace(in.Notes)
	return result("ad_report", structErrors(in))
}

func (v *Validator) CreateReview(in *ReviewInput) error {
	in.Comment = strings.TrimSpace(in.Comment)
	return result("review_create", structErrors(in))
}

// ExtendAd accepts only the configured extension lengths.
func (v *Validator) ExtendAd(in *ExtendInput, allowedDays []int) error {
	errs := structErrors(in)
	if !errs.Has("days") {
		ok := false
		for _, d := range allowedDays {
			ok = ok || d == in.Days
		}
		if !ok {
			errs.Add("days", "The selected days is invalid.")
		}
	}
	return result("ad_extend", errs)
}

func (v *Validator) HandleReport(in *HandleReportInput) error {
	in.Resolution = strings.TrimSpace(in.Resolution)
	return result("report_handle", structErrors(in))
}

func (v *Validator) Category(in *CategoryInput) error {
	in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	in.Name = strings.TrimSpace(in.Name)
	return result("category", structErrors(in))
}
