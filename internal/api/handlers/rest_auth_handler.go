package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/auth"
	"github.com/returnordie/til-i-allt-sub001/internal/config"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// RestAuthHandler handles registration, login and the caller's own account.
type RestAuthHandler struct {
	cfg         *config.Config
	userService services.IUserService
}

func NewRestAuthHandler(cfg *config.Config, userService services.IUserService) *RestAuthHandler {
	return &RestAuthHandler{cfg: cfg, userService: userService}
}

type tokenResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresIn int64        `json:"expires_in"`
	User      *models.User `json:"user"`
}

func (h *RestAuthHandler) issue(c *gin.Context, status int, u *models.User) {
	token, err := auth.GenerateJWT(u.ID, string(u.Role), h.cfg.JwtSecret, h.cfg.JwtTTL)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(status, tokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(h.cfg.JwtTTL.Seconds()),
		User:      u,
	})
}

// Register handles POST /v1/auth/register
func (h *RestAuthHandler) Register(c *gin.Context) {
	var in validation.RegisterInput
	if !bindBody(c, &in) {
		return
	}
	u, err := h.userService.Register(c.Request.Context(), &in)
	if err != nil {
		renderError(c, err)
		return
	}
	h.issue(c, http.StatusCreated, u)
}

// Login handles POST /v1/auth/login
func (h *RestAuthHandler) Login(c *gin.Context) {
	var in validation.LoginInput
	if !bindBody(c, &in) {
		return
	}
	u, err := h.userService.Authenticate(c.Request.Context(), &in)
	if err != nil {
		renderError(c, err)
		return
	}
	h.issue(c, http.StatusOK, u)
}

// Me handles GET /v1/me
func (h *RestAuthHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, middleware.Actor(c))
}

// UpdateSettings handles PUT /v1/account/settings
func (h *RestAuthHandler) UpdateSettings(c *gin.Context) {
	var in validation.SettingsInput
	if !bindBody(c, &in) {
		return
	}
	u, err := h.userService.UpdateSettings(c.Request.Context(), middleware.Actor(c), &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// ChangePassword handles PUT /v1/account/password
func (h *RestAuthHandler) ChangePassword(c *gin.Context) {
	var in validation.PasswordInput
	if !bindBody(c, &in) {
		return
	}
	if err := h.userService.ChangePassword(c.Request.Context(), middleware.Actor(c), &in); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateNotifications handles PUT /v1/account/notifications
func (h *RestAuthHandler) UpdateNotifications(c *gin.Context) {
	var in validation.NotificationPreferencesInput
	if !bindBody(c, &in) {
		return
	}
	u, err := h.userService.UpdateNotificationPreferences(c.Request.Context(), middleware.Actor(c), &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, u.NotificationPreferences)
}
