package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// --- Mocks ---

func userOrNil(args mock.Arguments) (*models.User, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, in *validation.RegisterInput) (*models.User, error) {
	return userOrNil(m.Called(ctx, in))
}

func (m *MockUserService) Authenticate(ctx context.Context, in *validation.LoginInput) (*models.User, error) {
	return userOrNil(m.Called(ctx, in))
}

func (m *MockUserService) FindByID(ctx context.Context, userID utils.SixID) (*models.User, error) {
	return userOrNil(m.Called(ctx, userID))
}

func (m *MockUserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return userOrNil(m.Called(ctx, username))
}

func (m *MockUserService) UpdateSettings(ctx context.Context, actor *models.User, in *validation.SettingsInput) (*models.User, error) {
	return userOrNil(m.Called(ctx, actor, in))
}

func (m *MockUserService) ChangePassword(ctx context.Context, actor *models.User, in *validation.PasswordInput) error {
	return m.Called(ctx, actor, in).Error(0)
}

func (m *MockUserService) UpdateNotificationPreferences(ctx context.Context, actor *models.User, in *validation.NotificationPreferencesInput) (*models.User, error) {
	return userOrNil(m.Called(ctx, actor, in))
}

func (m *MockUserService) SetActive(ctx context.Context, actor *models.User, userID utils.SixID, active bool) (*models.User, error) {
	return userOrNil(m.Called(ctx, actor, userID, active))
}

func (m *MockUserService) List(ctx context.Context, actor *models.User, limit int, cursor string) ([]models.User, string, error) {
	args := m.Called(ctx, actor, limit, cursor)
	return args.Get(0).([]models.User), args.String(1), args.Error(2)
}

type MockAdService struct {
	mock.Mock
}

func adOrNil(args mock.Arguments) (*models.Ad, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ad), args.Error(1)
}

func (m *MockAdService) Create(ctx context.Context, actor *models.User, in *validation.AdInput, uploads []validation.Upload) (*models.Ad, error) {
	return adOrNil(m.Called(ctx, actor, in, uploads))
}

func (m *MockAdService) Find(ctx context.Context, adID utils.SixID) (*models.Ad, error) {
	return adOrNil(m.Called(ctx, adID))
}

func (m *MockAdService) Update(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.AdUpdateInput, uploads []validation.Upload) (*models.Ad, error) {
	return adOrNil(m.Called(ctx, actor, adID, in, uploads))
}

func (m *MockAdService) Delete(ctx context.Context, actor *models.User, adID utils.SixID) error {
	return m.Called(ctx, actor, adID).Error(0)
}

func (m *MockAdService) MarkSold(ctx context.Context, actor *models.User, adID utils.SixID) (*models.Ad, error) {
	return adOrNil(m.Called(ctx, actor, adID))
}

func (m *MockAdService) Extend(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.ExtendInput) (*models.Ad, error) {
	return adOrNil(m.Called(ctx, actor, adID, in))
}

func (m *MockAdService) Search(ctx context.Context, actor *models.User, q services.AdQuery) ([]models.Ad, string, error) {
	args := m.Called(ctx, actor, q)
	return args.Get(0).([]models.Ad), args.String(1), args.Error(2)
}

func (m *MockAdService) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAdService) MarkImageProcessed(ctx context.Context, adID, imageID utils.SixID, thumbKey string, size int64) error {
	return m.Called(ctx, adID, imageID, thumbKey, size).Error(0)
}

type MockConversationService struct {
	mock.Mock
}

func convOrNil(args mock.Arguments) (*models.Conversation, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *MockConversationService) Start(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.MessageInput) (*models.Conversation, *models.Message, error) {
	args := m.Called(ctx, actor, adID, in)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.Conversation), args.Get(1).(*models.Message), args.Error(2)
}

func (m *MockConversationService) Find(ctx context.Context, actor *models.User, conversationID utils.SixID) (*models.Conversation, error) {
	return convOrNil(m.Called(ctx, actor, conversationID))
}

func (m *MockConversationService) List(ctx context.Context, actor *models.User, archived bool, limit int, cursor string) ([]models.Conversation, string, error) {
	args := m.Called(ctx, actor, archived, limit, cursor)
	return args.Get(0).([]models.Conversation), args.String(1), args.Error(2)
}

func (m *MockConversationService) Messages(ctx context.Context, actor *models.User, conversationID utils.SixID, limit int, after string) ([]models.Message, string, error) {
	args := m.Called(ctx, actor, conversationID, limit, after)
	return args.Get(0).([]models.Message), args.String(1), args.Error(2)
}

func (m *MockConversationService) SendMessage(ctx context.Context, actor *models.User, conversationID utils.SixID, in *validation.MessageInput) (*models.Message, error) {
	args := m.Called(ctx, actor, conversationID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockConversationService) UpdateStatus(ctx context.Context, actor *models.User, conversationID utils.SixID, in *validation.ConversationStatusInput) (*models.Conversation, error) {
	return convOrNil(m.Called(ctx, actor, conversationID, in))
}

func (m *MockConversationService) Archive(ctx context.Context, actor *models.User, conversationID utils.SixID, archived bool) (*models.Conversation, error) {
	return convOrNil(m.Called(ctx, actor, conversationID, archived))
}

type MockDealService struct {
	mock.Mock
}

func dealOrNil(args mock.Arguments) (*models.Deal, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Deal), args.Error(1)
}

func (m *MockDealService) Create(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.DealInput) (*models.Deal, error) {
	return dealOrNil(m.Called(ctx, actor, adID, in))
}

func (m *MockDealService) Find(ctx context.Context, actor *models.User, dealID utils.SixID) (*models.Deal, error) {
	return dealOrNil(m.Called(ctx, actor, dealID))
}

func (m *MockDealService) List(ctx context.Context, actor *models.User, limit int, cursor string) ([]models.Deal, string, error) {
	args := m.Called(ctx, actor, limit, cursor)
	return args.Get(0).([]models.Deal), args.String(1), args.Error(2)
}

func (m *MockDealService) Update(ctx context.Context, actor *models.User, dealID utils.SixID, in *validation.DealUpdateInput) (*models.Deal, error) {
	return dealOrNil(m.Called(ctx, actor, dealID, in))
}

func (m *MockDealService) CreateReview(ctx context.Context, actor *models.User, dealID utils.SixID, in *validation.ReviewInput) (*models.DealReview, error) {
	args := m.Called(ctx, actor, dealID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DealReview), args.Error(1)
}

func (m *MockDealService) DeleteReview(ctx context.Context, actor *models.User, reviewID utils.SixID) error {
	return m.Called(ctx, actor, reviewID).Error(0)
}

func (m *MockDealService) ReviewsFor(ctx context.Context, userID utils.SixID, limit int, cursor string) ([]models.DealReview, string, error) {
	args := m.Called(ctx, userID, limit, cursor)
	return args.Get(0).([]models.DealReview), args.String(1), args.Error(2)
}

func (m *MockDealService) RatingSummary(ctx context.Context, userID utils.SixID) (services.RatingSummary, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(services.RatingSummary), args.Error(1)
}

type MockReportService struct {
	mock.Mock
}

func reportOrNil(args mock.Arguments) (*models.AdReport, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AdReport), args.Error(1)
}

func (m *MockReportService) Create(ctx context.Context, actor *models.User, adID utils.SixID, in *validation.ReportInput) (*models.AdReport, error) {
	return reportOrNil(m.Called(ctx, actor, adID, in))
}

func (m *MockReportService) Find(ctx context.Context, actor *models.User, reportID utils.SixID) (*models.AdReport, error) {
	return reportOrNil(m.Called(ctx, actor, reportID))
}

func (m *MockReportService) ListOpen(ctx context.Context, actor *models.User, limit int, cursor string) ([]models.AdReport, string, error) {
	args := m.Called(ctx, actor, limit, cursor)
	return args.Get(0).([]models.AdReport), args.String(1), args.Error(2)
}

func (m *MockReportService) Handle(ctx context.Context, actor *models.User, reportID utils.SixID, in *validation.HandleReportInput) (*models.AdReport, error) {
	return reportOrNil(m.Called(ctx, actor, reportID, in))
}

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) NotifyNewMessage(ctx context.Context, conv *models.Conversation, msg *models.Message, sender *models.User, ad *models.Ad) (*models.Notification, error) {
	args := m.Called(ctx, conv, msg, sender, ad)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}

func (m *MockNotificationService) List(ctx context.Context, actor *models.User, unreadOnly bool, limit int, cursor string) ([]models.Notification, string, error) {
	args := m.Called(ctx, actor, unreadOnly, limit, cursor)
	return args.Get(0).([]models.Notification), args.String(1), args.Error(2)
}

func (m *MockNotificationService) UnreadCount(ctx context.Context, actor *models.User) (int64, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, actor *models.User, notificationID utils.SixID) (*models.Notification, error) {
	args := m.Called(ctx, actor, notificationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Notification), args.Error(1)
}

func (m *MockNotificationService) MarkAllRead(ctx context.Context, actor *models.User) (int64, error) {
	args := m.Called(ctx, actor)
	return args.Get(0).(int64), args.Error(1)
}

type MockCategoryService struct {
	mock.Mock
}

func categoryOrNil(args mock.Arguments) (*models.Category, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}

func (m *MockCategoryService) NavTree(ctx context.Context) ([]models.NavSection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.NavSection), args.Error(1)
}

func (m *MockCategoryService) FindBySlug(ctx context.Context, section models.Section, slug string) (*models.Category, error) {
	return categoryOrNil(m.Called(ctx, section, slug))
}

func (m *MockCategoryService) List(ctx context.Context, section models.Section) ([]models.Category, error) {
	args := m.Called(ctx, section)
	return args.Get(0).([]models.Category), args.Error(1)
}

func (m *MockCategoryService) Create(ctx context.Context, actor *models.User, in *validation.CategoryInput) (*models.Category, error) {
	return categoryOrNil(m.Called(ctx, actor, in))
}

func (m *MockCategoryService) Update(ctx context.Context, actor *models.User, id utils.SixID, in *validation.CategoryInput) (*models.Category, error) {
	return categoryOrNil(m.Called(ctx, actor, id, in))
}

func (m *MockCategoryService) Delete(ctx context.Context, actor *models.User, id utils.SixID) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockCategoryService) Upsert(ctx context.Context, c *models.Category) (*models.Category, error) {
	return categoryOrNil(m.Called(ctx, c))
}

func (m *MockCategoryService) InvalidateNav(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockPostcodeService struct {
	mock.Mock
}

func (m *MockPostcodeService) Search(ctx context.Context, query string, limit int) ([]models.Postcode, error) {
	args := m.Called(ctx, query, limit)
	return args.Get(0).([]models.Postcode), args.Error(1)
}

func (m *MockPostcodeService) Upsert(ctx context.Context, p models.Postcode) error {
	return m.Called(ctx, p).Error(0)
}

// MockConfigService records writes and serves public values from a fixed map.
type MockConfigService struct {
	mock.Mock
}

func (m *MockConfigService) GetAllPublic(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}

func (m *MockConfigService) Get(ctx context.Context, key string) (interface{}, error) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Error(1)
}

func (m *MockConfigService) GetInt(_ context.Context, _ string, def int) int { return def }
func (m *MockConfigService) GetIntSlice(_ context.Context, _ string, def []int) []int {
	return def
}
func (m *MockConfigService) GetString(_ context.Context, _ string, def string) string { return def }
func (m *MockConfigService) GetBool(_ context.Context, _ string, def bool) bool       { return def }
func (m *MockConfigService) GetFloat64(_ context.Context, _ string, def float64) float64 {
	return def
}
func (m *MockConfigService) GetDuration(_ context.Context, _ string, def time.Duration) time.Duration {
	return def
}

func (m *MockConfigService) Load(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockConfigService) SubscribeToChanges(ctx context.Context) error { return nil }

func (m *MockConfigService) SetConfigValue(ctx context.Context, key string, value interface{}, isPublic bool) error {
	return m.Called(ctx, key, value, isPublic).Error(0)
}

func (m *MockConfigService) GetAPIEndpointConfig(ctx context.Context, apiType models.APIType, endpoint string, isAuthenticated bool) (*models.APIEndpointConfig, error) {
	return nil, nil
}

func (m *MockConfigService) UsernameCooldown(context.Context) time.Duration { return 30 * 24 * time.Hour }
func (m *MockConfigService) ReviewWindow(context.Context) time.Duration     { return 30 * 24 * time.Hour }
func (m *MockConfigService) AdExtendAllowedDays(context.Context) []int      { return []int{14, 30} }

type fakeURLs struct{}

func (fakeURLs) PublicURL(key string) string { return "https://cdn.test/" + key }
