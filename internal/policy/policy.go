// Package policy holds the authorization predicates. Every predicate is a
// pure function of the actor and the entity; a nil actor is a guest.
package policy

import (
	"errors"

	"github.com/returnordie/til-i-allt-sub001/internal/metrics"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
)

// ErrDenied is the single authorization failure value.
var ErrDenied = errors.New("this action is unauthorized")

// Authorize turns a predicate result into ErrDenied.
func Authorize(allowed bool) error {
	if allowed {
		return nil
	}
	return ErrDenied
}

// Check is Authorize with the denial counted under action.
func Check(action string, allowed bool) error {
	if !allowed {
		metrics.PolicyDenials.WithLabelValues(action).Inc()
	}
	return Authorize(allowed)
}

// IsAdmin is the bypass capability shared by all policies.
func IsAdmin(u *models.User) bool {
	return u != nil && u.IsAdmin()
}

func adminOr(u *models.User, owns func(*models.User) bool) bool {
	if u == nil {
		return false
	}
	return IsAdmin(u) || owns(u)
}

var (
	Ads           AdPolicy
	Conversations ConversationPolicy
	Deals         DealPolicy
	DealReviews   DealReviewPolicy
	Reports       ReportPolicy
	Admin         AdminPolicy
)

type AdPolicy struct{}

func (AdPolicy) View(_ *models.User, _ *models.Ad) bool { return true }

func (AdPolicy) Create(u *models.User) bool {
	return u != nil && u.IsActive
}

func (AdPolicy) Update(u *models.User, ad *models.Ad) bool {
	return adminOr(u, func(u *models.User) bool { return ad.IsOwnedBy(u.ID) })
}

func (p AdPolicy) Delete(u *models.User, ad *models.Ad) bool { return p.Update(u, ad) }

func (p AdPolicy) Extend(u *models.User, ad *models.Ad) bool { return p.Update(u, ad) }

// Report forbids reporting one's own ad, admins included.
func (AdPolicy) Report(u *models.User, ad *models.Ad) bool {
	return u != nil && !ad.IsOwnedBy(u.ID)
}

func (p AdPolicy) CreateDeal(u *models.User, ad *models.Ad) bool { return p.Update(u, ad) }

func (p AdPolicy) MarkSold(u *models.User, ad *models.Ad) bool { return p.Update(u, ad) }

// Contact lets a signed-in user other than the owner open a conversation about an active ad.
func (AdPolicy) Contact(u *models.User, ad *models.Ad) bool {
	return u != nil && !ad.IsOwnedBy(u.ID) && ad.Status == models.AdStatusActive
}

type ConversationPolicy struct{}

func (ConversationPolicy) View(u *models.User, c *models.Conversation) bool {
	return adminOr(u, func(u *models.User) bool { return c.IsParticipant(u.ID) })
}

// Send additionally requires the conversation to be open.
func (p ConversationPolicy) Send(u *models.User, c *models.Conversation) bool {
	return p.View(u, c) && c.Status == models.ConversationOpen
}

func (p ConversationPolicy) Archive(u *models.User, c *models.Conversation) bool { return p.View(u, c) }

func (p ConversationPolicy) Update(u *models.User, c *models.Conversation) bool { return p.View(u, c) }

type DealPolicy struct{}

func (DealPolicy) View(u *models.User, d *models.Deal) bool {
	return adminOr(u, func(u *models.User) bool { return d.IsParty(u.ID) })
}

func (p DealPolicy) Update(u *models.User, d *models.Deal) bool { return p.View(u, d) }

// CreateReview needs a completed deal with a buyer and an open review window.
func (p DealPolicy) CreateReview(u *models.User, d *models.Deal, reviewsOpen bool) bool {
	return p.View(u, d) &&
		d.Status == models.DealCompleted &&
		d.HasBuyer() &&
		reviewsOpen
}

type DealReviewPolicy struct{}

func (DealReviewPolicy) Create(_ *models.User) bool { return true }

func (DealReviewPolicy) Delete(u *models.User, _ *models.DealReview) bool { return IsAdmin(u) }

type ReportPolicy struct{}

func (ReportPolicy) View(u *models.User, r *models.AdReport) bool {
	return adminOr(u, func(u *models.User) bool { return r.ReporterID == u.ID })
}

func (ReportPolicy) Handle(u *models.User, _ *models.AdReport) bool { return IsAdmin(u) }

// AdminPolicy guards back-office operations: users, categories and runtime config.
type AdminPolicy struct{}

func (AdminPolicy) Manage(u *models.User) bool { return IsAdmin(u) }
