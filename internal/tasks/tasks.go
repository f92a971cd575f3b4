package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/email"
	"github.com/returnordie/til-i-allt-sub001/internal/metrics"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/storage"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// Task types.
const (
	TypeEmailDelivery = "email:deliver"
	TypeImageProcess  = "image:process"
	TypeAdsExpire     = "ads:expire"
)

// Queues and their priorities.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueImages   = "images"
)

// RedisOpt derives the asynq connection from an existing go-redis client.
func RedisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	o := rdb.Options()
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(RedisOpt(rdb))
}

// --- Enqueuing ---

type EmailTaskPayload struct {
	To         string         `json:"to"`
	TemplateID string         `json:"template_id"`
	Locale     string         `json:"locale,omitempty"`
	Data       map[string]any `json:"data"`
}

type ImageTaskPayload struct {
	AdID    string `json:"ad_id"`
	ImageID string `json:"image_id"`
	Key     string `json:"key"`
}

// Enqueuer is the part of *asynq.Client the dispatcher needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher queues background work for the services. It satisfies
// services.Mailer and services.ImageQueue.
type Dispatcher struct {
	client Enqueuer
	locale string
}

func NewDispatcher(client Enqueuer) *Dispatcher {
	return &Dispatcher{client: client, locale: services.DefaultLocale}
}

func (d *Dispatcher) EnqueueEmail(ctx context.Context, to, templateID string, data map[string]any) error {
	payload, err := json.Marshal(EmailTaskPayload{To: to, TemplateID: templateID, Locale: d.locale, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}
	info, err := d.client.EnqueueContext(ctx, asynq.NewTask(TypeEmailDelivery, payload),
		asynq.Queue(QueueCritical), asynq.MaxRetry(5), asynq.Timeout(time.Minute))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s email to %s: %w", templateID, to, err)
	}
	zap.L().Debug("email task enqueued", zap.String("task_id", info.ID), zap.String("template", templateID))
	return nil
}

func (d *Dispatcher) EnqueueImageProcess(ctx context.Context, adID, imageID utils.SixID, key string) error {
	payload, err := json.Marshal(ImageTaskPayload{AdID: adID.String(), ImageID: imageID.String(), Key: key})
	if err != nil {
		return fmt.Errorf("failed to marshal image payload: %w", err)
	}
	if _, err := d.client.EnqueueContext(ctx, asynq.NewTask(TypeImageProcess, payload),
		asynq.Queue(QueueImages), asynq.MaxRetry(3), asynq.Timeout(2*time.Minute)); err != nil {
		return fmt.Errorf("failed to enqueue image %s: %w", key, err)
	}
	return nil
}

// --- Processing ---

// TemplateRenderer renders a stored or built-in email template.
type TemplateRenderer interface {
	Render(ctx context.Context, templateID, locale string, data map[string]any) (subject, body string, err error)
}

// AdMaintainer is the slice of the ad service the workers drive.
type AdMaintainer interface {
	MarkImageProcessed(ctx context.Context, adID, imageID utils.SixID, thumbKey string, size int64) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// TaskProcessor holds the dependencies of the task handlers.
type TaskProcessor struct {
	cfg       *config.Config
	sender    email.Sender
	templates TemplateRenderer
	storage   storage.IS3Storage
	ads       AdMaintainer
	now       func() time.Time
}

func NewTaskProcessor(cfg *config.Config, sender email.Sender, templates TemplateRenderer, store storage.IS3Storage, ads AdMaintainer) *TaskProcessor {
	return &TaskProcessor{
		cfg:       cfg,
		sender:    sender,
		templates: templates,
		storage:   store,
		ads:       ads,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Mode selects which handlers a worker process registers.
type Mode struct {
	Background bool // email delivery and scheduled sweeps
	Images     bool
}

// NewServer builds the asynq server and mux for mode. The caller starts and
// shuts down the server. It returns nil when mode registers nothing.
func NewServer(rdb *redis.Client, processor *TaskProcessor, mode Mode) (*asynq.Server, *asynq.ServeMux) {
	if !mode.Background && !mode.Images {
		return nil, nil
	}
	queues := map[string]int{}
	mux := asynq.NewServeMux()
	if mode.Background {
		queues[QueueCritical] = 6
		queues[QueueDefault] = 3
		mux.HandleFunc(TypeEmailDelivery, processor.HandleEmailDeliveryTask)
		mux.HandleFunc(TypeAdsExpire, processor.HandleAdsExpireTask)
		zap.L().Info("registered background task handlers")
	}
	if mode.Images {
		queues[QueueImages] = 5
		mux.HandleFunc(TypeImageProcess, processor.HandleImageProcessTask)
		zap.L().Info("registered image task handlers")
	}

	srv := asynq.NewServer(RedisOpt(rdb), asynq.Config{
		Queues: queues,
		Logger: zap.S(),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			zap.L().Error("task failed", zap.String("type", task.Type()), zap.ByteString("payload", task.Payload()), zap.Error(err))
		}),
	})
	return srv, mux
}

// NewScheduler registers the periodic ad-expiry sweep.
func NewScheduler(rdb *redis.Client, cfg *config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(RedisOpt(rdb), &asynq.SchedulerOpts{Logger: zap.S(), Location: time.UTC})
	entryID, err := scheduler.Register(cfg.AdExpirySweepCron, asynq.NewTask(TypeAdsExpire, nil), asynq.Queue(QueueDefault), asynq.MaxRetry(1))
	if err != nil {
		return nil, fmt.Errorf("failed to schedule %s with %q: %w", TypeAdsExpire, cfg.AdExpirySweepCron, err)
	}
	zap.L().Info("scheduled ad expiry sweep", zap.String("entry_id", entryID), zap.String("cron", cfg.AdExpirySweepCron))
	return scheduler, nil
}

// done counts the outcome of a task and passes err through.
func done(taskType string, err error) error {
	switch {
	case err == nil:
		metrics.TasksProcessed.WithLabelValues(taskType, "ok").Inc()
	case errors.Is(err, asynq.SkipRetry):
		metrics.TasksProcessed.WithLabelValues(taskType, "dropped").Inc()
	default:
		metrics.TasksProcessed.WithLabelValues(taskType, "retry").Inc()
	}
	return err
}

// HandleEmailDeliveryTask renders the template and hands the message to the sender.
func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return done(TypeEmailDelivery, fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry))
	}
	if payload.To == "" || payload.TemplateID == "" {
		return done(TypeEmailDelivery, fmt.Errorf("email task without recipient or template: %w", asynq.SkipRetry))
	}
	locale := payload.Locale
	if locale == "" {
		locale = services.DefaultLocale
	}

	subject, body, err := p.templates.Render(ctx, payload.TemplateID, locale, payload.Data)
	if err != nil {
		if errors.Is(err, services.ErrTemplateNotFound) || errors.Is(err, services.ErrTemplateInvalid) {
			zap.L().Error("email template unusable", zap.String("template", payload.TemplateID), zap.String("locale", locale), zap.Error(err))
			return done(TypeEmailDelivery, fmt.Errorf("template %s: %v: %w", payload.TemplateID, err, asynq.SkipRetry))
		}
		return done(TypeEmailDelivery, fmt.Errorf("failed to render %s: %w", payload.TemplateID, err))
	}

	msg := &email.Message{
		To:         []string{payload.To},
		From:       p.cfg.SmtpFromAddress,
		Subject:    subject,
		Body:       body,
		TemplateID: payload.TemplateID,
	}
	if err := p.sender.Send(ctx, msg); err != nil {
		zap.L().Warn("email delivery failed, will retry", zap.String("template", payload.TemplateID), zap.Error(err))
		return done(TypeEmailDelivery, fmt.Errorf("failed to send %s email: %w", payload.TemplateID, err))
	}
	zap.L().Info("email delivered", zap.String("template", payload.TemplateID))
	return done(TypeEmailDelivery, nil)
}

// HandleAdsExpireTask archives ads past their expiry date.
func (p *TaskProcessor) HandleAdsExpireTask(ctx context.Context, _ *asynq.Task) error {
	n, err := p.ads.ExpireDue(ctx, p.now())
	if err != nil {
		return done(TypeAdsExpire, fmt.Errorf("ad expiry sweep failed: %w", err))
	}
	zap.L().Info("ad expiry sweep finished", zap.Int64("archived", n))
	return done(TypeAdsExpire, nil)
}
