package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/captcha"
	"github.com/returnordie/til-i-allt-sub001/internal/config"
)

// ContextKeyIsHumanVerified is true once the client passed a captcha.
const ContextKeyIsHumanVerified = "isHumanVerified"

// Client identification and captcha headers.
const (
	HeaderFingerprint = "X-BFP"
	HeaderSPASession  = "X-SPA"
	HeaderHumanToken  = "X-C-T"
	HeaderChallenge   = "X-C-V"
)

// CaptchaMiddleware accepts either a human token (X-C-T) or a fresh Turnstile
// challenge (X-C-V). A passed challenge is answered with a new X-C-T header.
func CaptchaMiddleware(cfg *config.Config, verifier captcha.ITurnstileVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		fingerprint := c.GetHeader(HeaderFingerprint)
		spaSession := c.GetHeader(HeaderSPASession)

		isHuman := false
		if token := c.GetHeader(HeaderHumanToken); token != "" {
			isHuman = verifier.ValidateHumanToken(token, ip, fingerprint, spaSession)
		}

		if challenge := c.GetHeader(HeaderChallenge); !isHuman && challenge != "" {
			verified, err := verifier.Verify(c.Request.Context(), challenge, ip)
			switch {
			case err != nil:
				// treated as not human; the rate limiter decides
				zap.L().Warn("turnstile verification failed", zap.String("ip", ip), zap.Error(err))
			case verified:
				isHuman = true
				userID := ""
				if u := Actor(c); u != nil {
					userID = u.ID.String()
				}
				token, err := verifier.GenerateHumanToken(userID, ip, fingerprint, spaSession, cfg.CaptchaTokenTTL)
				if err != nil {
					zap.L().Error("failed to issue human token", zap.Error(err))
				} else {
					c.Header(HeaderHumanToken, token)
				}
			}
		}

		c.Set(ContextKeyIsHumanVerified, isHuman)
		c.Next()
	}
}
