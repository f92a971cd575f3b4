package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/returnordie/til-i-allt-sub001/internal/api/handlers"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/captcha"
	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
)

// Services are the domain services the public API is built on.
type Services struct {
	Users         services.IUserService
	Ads           services.IAdService
	Categories    services.ICategoryService
	Postcodes     services.IPostcodeService
	Conversations services.IConversationService
	Deals         services.IDealService
	Reports       services.IReportService
	Notifications services.INotificationService
	Config        services.IConfigService
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, svc Services, images handlers.ImageURLs, verifier captcha.ITurnstileVerifier, limiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()

	// Order matters: the limiter reads the actor and the human flag.
	r.Use(middleware.LoggerMiddleware(), gin.Recovery())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.CORSMiddleware(cfg.CorsOrigin))
	r.Use(middleware.OptionalAuthMiddleware(cfg.JwtSecret, svc.Users))
	r.Use(middleware.CaptchaMiddleware(cfg, verifier))
	r.Use(limiter.Limit())

	authH := handlers.NewRestAuthHandler(cfg, svc.Users)
	adH := handlers.NewRestAdHandler(svc.Ads, images)
	convH := handlers.NewRestConversationHandler(svc.Conversations)
	dealH := handlers.NewRestDealHandler(svc.Deals)
	reportH := handlers.NewRestReportHandler(svc.Reports)
	notifH := handlers.NewRestNotificationHandler(svc.Notifications)
	userH := handlers.NewRestUserHandler(svc.Users, svc.Deals)
	catalogH := handlers.NewRestCatalogHandler(svc.Categories, svc.Postcodes)
	configH := handlers.NewRestConfigHandler(svc.Config)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		v1.GET("/config", configH.GetPublicConfig)
		v1.POST("/auth/register", authH.Register)
		v1.POST("/auth/login", authH.Login)
		v1.GET("/nav/categories", catalogH.NavCategories)
		v1.GET("/postcodes/search", catalogH.SearchPostcodes)
		v1.GET("/ads", adH.SearchAds)
		v1.GET("/ads/:id", adH.GetAd)
		v1.GET("/users/:username", userH.GetProfile)
		v1.GET("/users/:username/reviews", userH.GetReviews)

		authRequired := v1.Group("")
		authRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret, svc.Users))
		{
			authRequired.GET("/me", authH.Me)
			authRequired.PUT("/account/settings", authH.UpdateSettings)
			authRequired.PUT("/account/password", authH.ChangePassword)
			authRequired.PUT("/account/notifications", authH.UpdateNotifications)

			authRequired.POST("/ads", adH.CreateAd)
			authRequired.PUT("/ads/:id", adH.UpdateAd)
			authRequired.DELETE("/ads/:id", adH.DeleteAd)
			authRequired.POST("/ads/:id/sold", adH.MarkSold)
			authRequired.POST("/ads/:id/extend", adH.ExtendAd)
			authRequired.POST("/ads/:id/report", reportH.ReportAd)
			authRequired.POST("/ads/:id/conversations", convH.StartConversation)
			authRequired.POST("/ads/:id/deals", dealH.CreateDeal)

			authRequired.GET("/conversations", convH.ListConversations)
			authRequired.GET("/conversations/:id", convH.GetConversation)
			authRequired.GET("/conversations/:id/messages", convH.ListMessages)
			authRequired.POST("/conversations/:id/messages", convH.SendMessage)
			authRequired.PATCH("/conversations/:id/status", convH.UpdateStatus)
			authRequired.POST("/conversations/:id/archive", convH.Archive)
			authRequired.DELETE("/conversations/:id/archive", convH.Unarchive)

			authRequired.GET("/deals", dealH.ListDeals)
			authRequired.GET("/deals/:id", dealH.GetDeal)
			authRequired.PATCH("/deals/:id", dealH.UpdateDeal)
			authRequired.POST("/deals/:id/reviews", dealH.CreateReview)

			authRequired.GET("/reports/:id", reportH.GetReport)

			authRequired.GET("/notifications", notifH.ListNotifications)
			authRequired.GET("/notifications/unread-count", notifH.UnreadCount)
			authRequired.POST("/notifications/read-all", notifH.MarkAllRead)
			authRequired.POST("/notifications/:id/read", notifH.MarkRead)
		}

		adminRequired := v1.Group("/admin")
		adminRequired.Use(middleware.AuthMiddleware(cfg.JwtSecret, svc.Users), middleware.AdminMiddleware())
		{
			adminRequired.GET("/users", userH.ListUsers)
			adminRequired.POST("/users/:id/activate", userH.Activate)
			adminRequired.POST("/users/:id/deactivate", userH.Deactivate)
			adminRequired.GET("/reports", reportH.ListOpen)
			adminRequired.POST("/reports/:id/handle", reportH.Handle)
			adminRequired.DELETE("/reviews/:id", dealH.DeleteReview)
			adminRequired.GET("/categories", catalogH.ListCategories)
			adminRequired.POST("/categories", catalogH.CreateCategory)
			adminRequired.PUT("/categories/:id", catalogH.UpdateCategory)
			adminRequired.DELETE("/categories/:id", catalogH.DeleteCategory)
			adminRequired.PUT("/config/:key", configH.SetConfig)
		}
	}

	return r
}

// SetupServiceRouter configures the internal service engine: the JSON service API and Prometheus metrics.
func SetupServiceRouter(rdb redis.UniversalClient, configs handlers.ConfigReloader, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(middleware.LoggerMiddleware(), gin.Recovery())

	serviceH := handlers.NewServiceApiHandler(rdb, configs, shutdownChan)
	r.POST("/api", serviceH.HandleRequest)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}
