package services

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/returnordie/til-i-allt-sub001/internal/auth"
	"github.com/returnordie/til-i-allt-sub001/internal/cache"
	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/storage"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

func init() {
	auth.HashCost = bcrypt.MinCost
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:             "Til i allt",
		AppURL:              "https://example.is",
		PasswordRegexp:      `^.{8,}$`,
		UsernameChangeDays:  30,
		AdExtendAllowedDays: []int{14, 30},
		AdLifetimeDays:      30,
		ReviewWindowDays:    30,
		NavCacheTTL:         time.Hour,
		ImageMaxCount:       15,
		ImageMaxSizeMB:      8,
	}
}

// staticConfigService answers from cfg and the given overrides without a database.
func staticConfigService(cfg *config.Config, overrides map[string]interface{}) *configService {
	if overrides == nil {
		overrides = map[string]interface{}{}
	}
	return &configService{cfg: cfg, cache: overrides, apiCache: map[string]*models.APIEndpointConfig{}}
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// memStorage is an in-memory object store.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{objects: map[string][]byte{}} }

func (m *memStorage) PutObject(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return nil
}

func (m *memStorage) GetObject(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, "", storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), "image/jpeg", nil
}

func (m *memStorage) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) PresignGetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://s3.test/" + key + "?signed", nil
}

func (m *memStorage) PublicURL(key string) string { return "https://s3.test/" + key }

func (m *memStorage) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) EnqueueEmail(ctx context.Context, to, templateID string, data map[string]any) error {
	return m.Called(ctx, to, templateID, data).Error(0)
}

type recordingImageQueue struct {
	mu   sync.Mutex
	keys []string
}

func (q *recordingImageQueue) EnqueueImageProcess(_ context.Context, _, _ utils.SixID, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.keys = append(q.keys, key)
	return nil
}

// Leading bytes that identify each accepted image format.
var imageMagic = map[string]string{
	"jpg":  "\xff\xd8\xff\xe0\x00\x10JFIF\x00",
	"png":  "\x89PNG\r\n\x1a\n",
	"webp": "RIFF\x00\x00\x00\x00WEBPVP8 ",
}

// upload builds an image upload whose header matches its extension.
func upload(name, content string) validation.Upload {
	up := validation.Upload{Filename: name}
	body := imageMagic[up.Ext()] + content
	up.Size = int64(len(body))
	up.ContentType = "application/octet-stream"
	up.Open = func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil }
	return up
}

// testEnv wires every service against a scratch database.
type testEnv struct {
	db            *mongo.Database
	cfg           *config.Config
	storage       *memStorage
	images        *recordingImageQueue
	mailer        *mockMailer
	users         IUserService
	categories    ICategoryService
	ads           IAdService
	notifications INotificationService
	conversations IConversationService
	deals         IDealService
	reports       IReportService
}

func newTestEnv(t *testing.T, dbName string) *testEnv {
	t.Helper()
	database := utils.SetupTestDB(t, dbName,
		usersCollection, adsCollection, categoriesCollection, postcodesCollection, conversationsCollection,
		messagesCollection, dealsCollection, dealReviewsCollection, adReportsCollection, notificationsCollection)
	require.NoError(t, EnsureIndexes(context.Background(), database))

	cfg := testConfig()
	v, err := validation.New(NewLookup(database), cfg.PasswordRegexp, validation.Limits{MaxImages: cfg.ImageMaxCount, MaxImageBytes: 8 << 20})
	require.NoError(t, err)

	env := &testEnv{db: database, cfg: cfg, storage: newMemStorage(), images: &recordingImageQueue{}, mailer: &mockMailer{}}
	env.mailer.On("EnqueueEmail", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	configSvc := staticConfigService(cfg, nil)

	env.users = NewUserService(database, cfg, v, configSvc, env.mailer)
	env.categories = NewCategoryService(database, cfg, v, newMemStore())
	env.ads = NewAdService(database, cfg, v, env.categories, configSvc, env.storage, env.images)
	env.notifications = NewNotificationService(database)
	env.conversations = NewConversationService(database, v, env.ads, env.notifications)
	env.deals = NewDealService(database, v, env.ads, configSvc)
	env.reports = NewReportService(database, v, env.ads)
	return env
}

func (e *testEnv) register(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := e.users.Register(context.Background(), &validation.RegisterInput{
		Name:                 strings.ToUpper(username[:1]) + username[1:],
		Username:             username,
		Email:                username + "@example.is",
		Password:             "password123",
		PasswordConfirmation: "password123",
	})
	require.NoError(t, err)
	return u
}

func (e *testEnv) admin(t *testing.T, username string) *models.User {
	t.Helper()
	u := e.register(t, username)
	u.Role = models.RoleAdmin
	return u
}

func (e *testEnv) category(t *testing.T, section models.Section, slug string) *models.Category {
	t.Helper()
	c, err := e.categories.Upsert(context.Background(), &models.Category{Section: section, Slug: slug, Name: slug})
	require.NoError(t, err)
	return c
}

func (e *testEnv) ad(t *testing.T, owner *models.User, title string, uploads ...validation.Upload) *models.Ad {
	t.Helper()
	e.category(t, models.SectionGoods, "hjol")
	ad, err := e.ads.Create(context.Background(), owner, &validation.AdInput{
		Section:      string(models.SectionGoods),
		CategorySlug: "hjol",
		ListingType:  "for_sale",
		Title:        title,
	}, uploads)
	require.NoError(t, err)
	return ad
}
