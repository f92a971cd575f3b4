package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/api"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/cache"
	"github.com/returnordie/til-i-allt-sub001/internal/captcha"
	"github.com/returnordie/til-i-allt-sub001/internal/email"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/storage"
	"github.com/returnordie/til-i-allt-sub001/internal/tasks"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var runMode string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API and/or task workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch runMode {
			case "api", "bg", "img", "all":
			default:
				return fmt.Errorf("invalid run mode %q: want api, bg, img or all", runMode)
			}
			return serve(cmd.Context(), runMode)
		},
	}
	cmd.Flags().StringVarP(&runMode, "mode", "m", "all", "Run mode: 'api', 'bg' (background tasks), 'img' (image processing), 'all'")
	return cmd
}

// emailSender picks the delivery chain: Redis capture under MOCK_SERVICES,
// SMTP otherwise, plus a file copy when LOG_EMAILS is on.
func emailSender(in *infra) email.Sender {
	var primary email.Sender
	if in.cfg.MockServices {
		zap.L().Info("MOCK_SERVICES enabled: capturing emails in Redis")
		primary = email.NewRedisSender(in.rdb)
	} else {
		primary = email.NewSMTPSender(in.cfg)
	}
	composite := email.NewCompositeEmailSender(primary)
	if in.cfg.LogEmails {
		fileSender, err := email.NewFileEmailSender(in.cfg.EmailLogFile)
		if err != nil {
			zap.L().Warn("file email logger disabled", zap.String("path", in.cfg.EmailLogFile), zap.Error(err))
		} else {
			composite.AddSender(fileSender)
		}
	}
	return composite
}

func serve(parent context.Context, runMode string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	in, err := connect(ctx, runMode)
	if err != nil {
		return err
	}
	defer in.close()
	cfg := in.cfg

	s3Client, err := storage.NewS3Client(ctx, cfg)
	if err != nil {
		return err
	}
	store := storage.NewS3Storage(cfg, s3Client)

	taskClient := tasks.NewClient(in.rdb)
	defer taskClient.Close()
	dispatcher := tasks.NewDispatcher(taskClient)

	configSvc := services.NewConfigService(ctx, in.db, cfg, in.rdb)
	v, err := validation.New(services.NewLookup(in.db), cfg.PasswordRegexp, validation.Limits{
		MaxImages:     cfg.ImageMaxCount,
		MaxImageBytes: int64(cfg.ImageMaxSizeMB) << 20,
	})
	if err != nil {
		return err
	}

	userSvc := services.NewUserService(in.db, cfg, v, configSvc, dispatcher)
	categorySvc := services.NewCategoryService(in.db, cfg, v, cache.NewRedisStore(in.rdb))
	adSvc := services.NewAdService(in.db, cfg, v, categorySvc, configSvc, store, dispatcher)
	notificationSvc := services.NewNotificationService(in.db)
	svc := api.Services{
		Users:         userSvc,
		Ads:           adSvc,
		Categories:    categorySvc,
		Postcodes:     services.NewPostcodeService(in.db),
		Conversations: services.NewConversationService(in.db, v, adSvc, notificationSvc),
		Deals:         services.NewDealService(in.db, v, adSvc, configSvc),
		Reports:       services.NewReportService(in.db, v, adSvc),
		Notifications: notificationSvc,
		Config:        configSvc,
	}
	processor := tasks.NewTaskProcessor(cfg, emailSender(in), services.NewEmailTemplateService(in.db), store, adSvc)

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)
	fatal := make(chan error, 4)

	listen := func(name string, srv *http.Server) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			zap.L().Info("listening", zap.String("server", name), zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				fatal <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	// The service API always runs.
	serviceSrv := &http.Server{
		Addr:    ":" + cfg.ServiceApiPort,
		Handler: api.SetupServiceRouter(in.rdb, configSvc, shutdownChan),
	}
	listen("service-api", serviceSrv)

	zap.L().Info("starting application", zap.String("mode", runMode))

	var mainSrv *http.Server
	if runMode == "api" || runMode == "all" {
		limiter := middleware.NewRateLimiter(cfg, configSvc)
		go limiter.Run(ctx)
		mainSrv = &http.Server{
			Addr:              ":" + cfg.ApiPort,
			Handler:           api.SetupRouter(cfg, svc, store, captcha.NewTurnstileVerifier(cfg), limiter),
			ReadHeaderTimeout: 10 * time.Second,
		}
		listen("api", mainSrv)
	}

	mode := tasks.Mode{
		Background: runMode == "bg" || runMode == "all",
		Images:     runMode == "img" || runMode == "all",
	}
	taskSrv, mux := tasks.NewServer(in.rdb, processor, mode)
	if taskSrv != nil {
		if err := taskSrv.Start(mux); err != nil {
			return fmt.Errorf("failed to start task server: %w", err)
		}
	}
	var scheduler *asynq.Scheduler
	if mode.Background {
		scheduler, err = tasks.NewScheduler(in.rdb, cfg)
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		zap.L().Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-shutdownChan:
		zap.L().Info("shutdown requested via service API")
	case runErr = <-fatal:
		zap.L().Error("server failed, shutting down", zap.Error(runErr))
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if mainSrv != nil {
		if err := mainSrv.Shutdown(ctxShutdown); err != nil {
			zap.L().Warn("main API shutdown error", zap.Error(err))
		}
	}
	if scheduler != nil {
		scheduler.Shutdown()
	}
	if taskSrv != nil {
		taskSrv.Shutdown()
	}
	if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
		zap.L().Warn("service API shutdown error", zap.Error(err))
	}
	cancel()

	wg.Wait()
	zap.L().Info("server gracefully stopped")
	return runErr
}
