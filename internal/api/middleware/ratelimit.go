package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
)

const (
	limiterIdleTTL      = 30 * time.Minute
	limiterSweepEvery   = 10 * time.Minute
	StatusCaptchaNeeded = http.StatusTeapot
)

// EndpointConfigSource supplies per-endpoint limit overrides.
type EndpointConfigSource interface {
	GetAPIEndpointConfig(ctx context.Context, apiType models.APIType, endpoint string, isAuthenticated bool) (*models.APIEndpointConfig, error)
}

type clientLimiter struct {
	soft     *rate.Limiter
	hard     *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies two token buckets per client and endpoint. The hard
// bucket always applies; the soft one is waived for captcha-verified clients.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	cfg       *config.Config
	endpoints EndpointConfigSource
}

func NewRateLimiter(cfg *config.Config, endpoints EndpointConfigSource) *RateLimiter {
	return &RateLimiter{
		clients:   make(map[string]*clientLimiter),
		cfg:       cfg,
		endpoints: endpoints,
	}
}

// Run evicts idle clients until ctx ends.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := rl.sweep(now); n > 0 {
				zap.L().Debug("rate limiter evicted idle clients", zap.Int("count", n))
			}
		}
	}
}

func (rl *RateLimiter) sweep(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for id, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(rl.clients, id)
			n++
		}
	}
	return n
}

func clientKey(c *gin.Context, endpoint string) string {
	return fmt.Sprintf("%s|%s|%s|%s", c.ClientIP(), c.GetHeader(HeaderFingerprint), c.GetHeader(HeaderSPASession), endpoint)
}

func (rl *RateLimiter) limiter(key string, soft, hard models.RateLimitConfig) *clientLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{
			soft: rate.NewLimiter(rate.Limit(soft.TokenRefillRate), soft.BucketSize),
			hard: rate.NewLimiter(rate.Limit(hard.TokenRefillRate), hard.BucketSize),
		}
		rl.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl
}

// limits resolves the buckets for endpoint, preferring stored overrides.
func (rl *RateLimiter) limits(ctx context.Context, endpoint string, authenticated bool) (soft, hard models.RateLimitConfig) {
	soft = models.RateLimitConfig{BucketSize: rl.cfg.RateLimitSoftBucketSize, TokenRefillRate: rl.cfg.RateLimitSoftRefillRate}
	hard = models.RateLimitConfig{BucketSize: rl.cfg.RateLimitHardBucketSize, TokenRefillRate: rl.cfg.RateLimitHardRefillRate}
	override, err := rl.endpoints.GetAPIEndpointConfig(ctx, models.APITypeREST, endpoint, authenticated)
	if err != nil {
		zap.L().Warn("failed to load endpoint limits, using defaults", zap.String("endpoint", endpoint), zap.Error(err))
		return soft, hard
	}
	if override != nil {
		if override.RateLimitSoft != nil {
			soft = *override.RateLimitSoft
		}
		if override.RateLimitHard != nil {
			hard = *override.RateLimitHard
		}
	}
	return soft, hard
}

// Limit must run after CaptchaMiddleware so the human flag is known.
func (rl *RateLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.Request.Method + " " + c.FullPath()
		soft, hard := rl.limits(c.Request.Context(), endpoint, Actor(c) != nil)
		cl := rl.limiter(clientKey(c, endpoint), soft, hard)

		if !cl.hard.Allow() {
			zap.L().Info("hard rate limit exceeded", zap.String("ip", c.ClientIP()), zap.String("endpoint", endpoint))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests."})
			return
		}
		if !c.GetBool(ContextKeyIsHumanVerified) && !cl.soft.Allow() {
			c.AbortWithStatusJSON(StatusCaptchaNeeded, gin.H{"error": "Captcha validation required."})
			return
		}
		c.Next()
	}
}
