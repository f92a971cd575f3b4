package tasks_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/email"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/storage"
	"github.com/returnordie/til-i-allt-sub001/internal/tasks"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// --- Mocks ---

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, msg *email.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Render(ctx context.Context, templateID, locale string, data map[string]any) (string, string, error) {
	args := m.Called(ctx, templateID, locale, data)
	return args.String(0), args.String(1), args.Error(2)
}

type MockAds struct {
	mock.Mock
}

func (m *MockAds) MarkImageProcessed(ctx context.Context, adID, imageID utils.SixID, thumbKey string, size int64) error {
	return m.Called(ctx, adID, imageID, thumbKey, size).Error(0)
}

func (m *MockAds) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(f.tasks)), Type: task.Type()}, nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStorage) PutObject(_ context.Context, key, contentType string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memStorage) GetObject(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%s: %w", key, storage.ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), m.types[key], nil
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

func testConfig() *config.Config {
	return &config.Config{
		SmtpFromAddress:   "noreply@example.is",
		ImageMaxDimension: 200,
		ImageThumbSize:    50,
		ImageMaxSizeMB:    1,
	}
}

func solidImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidImage(w, h), nil))
	return buf.Bytes()
}

func imageTask(t *testing.T, adID, imageID utils.SixID, key string) *asynq.Task {
	payload, err := json.Marshal(tasks.ImageTaskPayload{AdID: adID.String(), ImageID: imageID.String(), Key: key})
	require.NoError(t, err)
	return asynq.NewTask(tasks.TypeImageProcess, payload)
}

// --- Dispatcher ---

func TestDispatcher_EnqueueEmail(t *testing.T) {
	q := &fakeEnqueuer{}
	d := tasks.NewDispatcher(q)

	require.NoError(t, d.EnqueueEmail(context.Background(), "anna@example.is", services.TemplateWelcome, map[string]any{"Name": "Anna"}))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, tasks.TypeEmailDelivery, q.tasks[0].Type())

	var payload tasks.EmailTaskPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, "anna@example.is", payload.To)
	assert.Equal(t, services.DefaultLocale, payload.Locale)
	assert.Equal(t, "Anna", payload.Data["Name"])

	q.err = errors.New("redis down")
	assert.Error(t, d.EnqueueEmail(context.Background(), "anna@example.is", services.TemplateWelcome, nil))
}

func TestDispatcher_EnqueueImageProcess(t *testing.T) {
	q := &fakeEnqueuer{}
	d := tasks.NewDispatcher(q)
	adID, imageID := utils.NewSixID(), utils.NewSixID()

	require.NoError(t, d.EnqueueImageProcess(context.Background(), adID, imageID, "ads/x/y.jpg"))
	var payload tasks.ImageTaskPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, adID.String(), payload.AdID)
	assert.Equal(t, imageID.String(), payload.ImageID)
	assert.Equal(t, "ads/x/y.jpg", payload.Key)
}

// --- Email ---

func TestHandleEmailDeliveryTask_Success(t *testing.T) {
	sender, renderer := new(MockEmailSender), new(MockRenderer)
	p := tasks.NewTaskProcessor(testConfig(), sender, renderer, nil, nil)

	data := map[string]any{"Name": "Anna"}
	payload, _ := json.Marshal(tasks.EmailTaskPayload{To: "anna@example.is", TemplateID: services.TemplateWelcome, Data: data})

	renderer.On("Render", mock.Anything, services.TemplateWelcome, services.DefaultLocale, data).
		Return("Velkomin Anna", "Hæ Anna", nil)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(m *email.Message) bool {
		return m.From == "noreply@example.is" &&
			assert.ObjectsAreEqual([]string{"anna@example.is"}, m.To) &&
			m.Subject == "Velkomin Anna" &&
			m.Body == "Hæ Anna" &&
			m.TemplateID == services.TemplateWelcome
	})).Return(nil)

	require.NoError(t, p.HandleEmailDeliveryTask(context.Background(), asynq.NewTask(tasks.TypeEmailDelivery, payload)))
	renderer.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestHandleEmailDeliveryTask_NonRetryable(t *testing.T) {
	tests := []struct {
		name      string
		payload   []byte
		renderErr error
	}{
		{"bad json", []byte("{"), nil},
		{"missing recipient", []byte(`{"template_id":"welcome"}`), nil},
		{"unknown template", []byte(`{"to":"a@example.is","template_id":"nope"}`), fmt.Errorf("%w: nope", services.ErrTemplateNotFound)},
		{"broken template", []byte(`{"to":"a@example.is","template_id":"welcome"}`), fmt.Errorf("%w: render", services.ErrTemplateInvalid)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, renderer := new(MockEmailSender), new(MockRenderer)
			renderer.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("", "", tt.renderErr).Maybe()
			p := tasks.NewTaskProcessor(testConfig(), sender, renderer, nil, nil)

			err := p.HandleEmailDeliveryTask(context.Background(), asynq.NewTask(tasks.TypeEmailDelivery, tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, asynq.SkipRetry)
			sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
		})
	}
}

func TestHandleEmailDeliveryTask_SendFailureRetries(t *testing.T) {
	sender, renderer := new(MockEmailSender), new(MockRenderer)
	renderer.On("Render", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return("s", "b", nil)
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp 451"))
	p := tasks.NewTaskProcessor(testConfig(), sender, renderer, nil, nil)

	payload := []byte(`{"to":"a@example.is","template_id":"welcome"}`)
	err := p.HandleEmailDeliveryTask(context.Background(), asynq.NewTask(tasks.TypeEmailDelivery, payload))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

// --- Images ---

func TestNormalizeImage(t *testing.T) {
	out, err := tasks.NormalizeImage(jpegBytes(t, 400, 100), 200, 50)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", out.Format)
	assert.True(t, out.Resized)
	main, _, err := image.DecodeConfig(bytes.NewReader(out.Main))
	require.NoError(t, err)
	assert.Equal(t, 200, main.Width)
	assert.Equal(t, 50, main.Height)
	thumb, format, err := image.DecodeConfig(bytes.NewReader(out.Thumb))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 50, thumb.Width)

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, solidImage(100, 80)))
	small, err := tasks.NormalizeImage(pngBuf.Bytes(), 200, 50)
	require.NoError(t, err)
	assert.Equal(t, "png", small.Format)
	assert.False(t, small.Resized)
	assert.Nil(t, small.Main)

	_, err = tasks.NormalizeImage([]byte("RIFF....WEBPVP8 "), 200, 50)
	assert.ErrorIs(t, err, image.ErrFormat)
}

func TestHandleImageProcessTask_ResizesAndThumbnails(t *testing.T) {
	store, ads := newMemStorage(), new(MockAds)
	p := tasks.NewTaskProcessor(testConfig(), nil, nil, store, ads)
	adID, imageID := utils.NewSixID(), utils.NewSixID()
	key := storage.AdImageKey(adID, "jpg")
	require.NoError(t, store.PutObject(context.Background(), key, "image/jpeg", bytes.NewReader(jpegBytes(t, 600, 300)), 0))

	ads.On("MarkImageProcessed", mock.Anything, adID, imageID, storage.ThumbKey(key), mock.AnythingOfType("int64")).Return(nil)
	require.NoError(t, p.HandleImageProcessTask(context.Background(), imageTask(t, adID, imageID, key)))
	ads.AssertExpectations(t)

	main, _, err := image.DecodeConfig(bytes.NewReader(store.objects[key]))
	require.NoError(t, err)
	assert.Equal(t, 200, main.Width)
	assert.Equal(t, "image/jpeg", store.types[key])
	assert.Contains(t, store.objects, storage.ThumbKey(key))
}

func TestHandleImageProcessTask_UndecodableKeptAsIs(t *testing.T) {
	store, ads := newMemStorage(), new(MockAds)
	p := tasks.NewTaskProcessor(testConfig(), nil, nil, store, ads)
	adID, imageID := utils.NewSixID(), utils.NewSixID()
	key := storage.AdImageKey(adID, "webp")
	raw := []byte("RIFF....WEBPVP8 ")
	require.NoError(t, store.PutObject(context.Background(), key, "image/webp", bytes.NewReader(raw), 0))

	ads.On("MarkImageProcessed", mock.Anything, adID, imageID, "", int64(len(raw))).Return(nil)
	require.NoError(t, p.HandleImageProcessTask(context.Background(), imageTask(t, adID, imageID, key)))
	ads.AssertExpectations(t)
	assert.Len(t, store.objects, 1)
}

func TestHandleImageProcessTask_Dropped(t *testing.T) {
	store, ads := newMemStorage(), new(MockAds)
	p := tasks.NewTaskProcessor(testConfig(), nil, nil, store, ads)
	adID, imageID := utils.NewSixID(), utils.NewSixID()

	err := p.HandleImageProcessTask(context.Background(), imageTask(t, adID, imageID, "ads/missing.jpg"))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = p.HandleImageProcessTask(context.Background(), asynq.NewTask(tasks.TypeImageProcess, []byte(`{"ad_id":"bad"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	key := storage.AdImageKey(adID, "jpg")
	require.NoError(t, store.PutObject(context.Background(), key, "image/jpeg", bytes.NewReader(jpegBytes(t, 100, 100)), 0))
	ads.On("MarkImageProcessed", mock.Anything, adID, imageID, storage.ThumbKey(key), mock.Anything).
		Return(fmt.Errorf("image: %w", services.ErrNotFound))
	err = p.HandleImageProcessTask(context.Background(), imageTask(t, adID, imageID, key))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.NotContains(t, store.objects, storage.ThumbKey(key), "orphaned thumbnail is removed")
}

// --- Expiry ---

func TestHandleAdsExpireTask(t *testing.T) {
	ads := new(MockAds)
	p := tasks.NewTaskProcessor(testConfig(), nil, nil, nil, ads)

	ads.On("ExpireDue", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(3), nil).Once()
	require.NoError(t, p.HandleAdsExpireTask(context.Background(), asynq.NewTask(tasks.TypeAdsExpire, nil)))

	ads.On("ExpireDue", mock.Anything, mock.Anything).Return(int64(0), errors.New("mongo down")).Once()
	err := p.HandleAdsExpireTask(context.Background(), asynq.NewTask(tasks.TypeAdsExpire, nil))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}
