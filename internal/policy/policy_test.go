package policy

import (
	"testing"
	"time"

	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/stretchr/testify/assert"
)

func user() *models.User {
	return models.NewUser("U", "u", "u@example.is", time.Now())
}

func admin() *models.User {
	u := user()
	u.Role = models.RoleAdmin
	return u
}

func TestAuthorize(t *testing.T) {
	assert.NoError(t, Authorize(true))
	assert.ErrorIs(t, Authorize(false), ErrDenied)
	assert.ErrorIs(t, Check("ad.update", false), ErrDenied)
}

func TestAdPolicy(t *testing.T) {
	owner, other, adm := user(), user(), admin()
	ad := &models.Ad{Base: models.NewBase(), UserID: owner.ID}

	assert.True(t, Ads.View(nil, ad))

	assert.False(t, Ads.Create(nil))
	assert.True(t, Ads.Create(owner))
	inactive := user()
	inactive.IsActive = false
	assert.False(t, Ads.Create(inactive))

	for name, fn := range map[string]func(*models.User, *models.Ad) bool{
		"update": Ads.Update, "delete": Ads.Delete, "extend": Ads.Extend,
		"create_deal": Ads.CreateDeal, "mark_sold": Ads.MarkSold,
	} {
		assert.True(t, fn(owner, ad), name)
		assert.True(t, fn(adm, ad), name)
		assert.False(t, fn(other, ad), name)
		assert.False(t, fn(nil, ad), name)
	}

	assert.True(t, Ads.Report(other, ad))
	assert.False(t, Ads.Report(owner, ad))
	assert.False(t, Ads.Report(nil, ad))

	ownAdAdmin := &models.Ad{Base: models.NewBase(), UserID: adm.ID}
	assert.False(t, Ads.Report(adm, ownAdAdmin))
	assert.True(t, Ads.Report(adm, ad))
}

func TestConversationPolicy(t *testing.T) {
	owner, member, stranger, adm := user(), user(), user(), admin()
	c := &models.Conversation{OwnerID: owner.ID, MemberID: member.ID, Status: models.ConversationOpen}

	assert.True(t, Conversations.View(owner, c))
	assert.True(t, Conversations.View(member, c))
	assert.True(t, Conversations.View(adm, c))
	assert.False(t, Conversations.View(stranger, c))
	assert.False(t, Conversations.View(nil, c))

	assert.True(t, Conversations.Send(member, c))
	assert.True(t, Conversations.Archive(owner, c))
	assert.True(t, Conversations.Update(member, c))
	assert.False(t, Conversations.Archive(stranger, c))

	for _, st := range []models.ConversationStatus{models.ConversationClosed, models.ConversationBlocked} {
		c.Status = st
		assert.False(t, Conversations.Send(member, c), st)
		assert.False(t, Conversations.Send(adm, c), st)
		assert.True(t, Conversations.View(member, c), st)
	}
}

func TestDealPolicy_CreateReview(t *testing.T) {
	seller, buyer, stranger, adm := user(), user(), user(), admin()
	completed := models.Deal{SellerID: seller.ID, BuyerID: &buyer.ID, Status: models.DealCompleted}

	tests := []struct {
		name  string
		actor *models.User
		mut   func(d *models.Deal)
		open  bool
		want  bool
	}{
		{"seller", seller, nil, true, true},
		{"buyer", buyer, nil, true, true},
		{"admin bypasses membership", adm, nil, true, true},
		{"stranger", stranger, nil, true, false},
		{"guest", nil, nil, true, false},
		{"window closed", buyer, nil, false, false},
		{"pending", buyer, func(d *models.Deal) { d.Status = models.DealPending }, true, false},
		{"cancelled", seller, func(d *models.Deal) { d.Status = models.DealCancelled }, true, false},
		{"no buyer", seller, func(d *models.Deal) { d.BuyerID = nil }, true, false},
		{"admin still needs completed", adm, func(d *models.Deal) { d.Status = models.DealPending }, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := completed
			if tt.mut != nil {
				tt.mut(&d)
			}
			assert.Equal(t, tt.want, Deals.CreateReview(tt.actor, &d, tt.open))
		})
	}

	assert.True(t, Deals.View(buyer, &completed))
	assert.True(t, Deals.Update(seller, &completed))
	assert.False(t, Deals.View(stranger, &completed))
}

func TestDealReviewAndReportPolicies(t *testing.T) {
	reporter, other, adm := user(), user(), admin()
	review := &models.DealReview{}
	report := &models.AdReport{ReporterID: reporter.ID, AdID: utils.NewSixID()}

	assert.True(t, DealReviews.Create(nil))
	assert.True(t, DealReviews.Delete(adm, review))
	assert.False(t, DealReviews.Delete(reporter, review))
	assert.False(t, DealReviews.Delete(nil, review))

	assert.True(t, Reports.View(reporter, report))
	assert.True(t, Reports.View(adm, report))
	assert.False(t, Reports.View(other, report))
	assert.True(t, Reports.Handle(adm, report))
	assert.False(t, Reports.Handle(reporter, report))
}

func TestAdPolicy_Contact(t *testing.T) {
	owner, other := user(), user()
	ad := &models.Ad{Base: models.NewBase(), UserID: owner.ID, Status: models.AdStatusActive}

	assert.True(t, Ads.Contact(other, ad))
	assert.False(t, Ads.Contact(owner, ad))
	assert.False(t, Ads.Contact(nil, ad))
	ad.Status = models.AdStatusSold
	assert.False(t, Ads.Contact(other, ad))
}

func TestAdminPolicy(t *testing.T) {
	assert.True(t, Admin.Manage(admin()))
	assert.False(t, Admin.Manage(user()))
	assert.False(t, Admin.Manage(nil))
}
