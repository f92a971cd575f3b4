package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// RestUserHandler handles public profiles and admin account management.
type RestUserHandler struct {
	userService services.IUserService
	deals       services.IDealService
}

// NewRestUserHandler creates a new RestUserHandler.
func NewRestUserHandler(userService services.IUserService, deals services.IDealService) *RestUserHandler {
	return &RestUserHandler{userService: userService, deals: deals}
}

// GetProfile handles GET /v1/users/:username
func (h *RestUserHandler) GetProfile(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.publicUser(c)
	if err != nil {
		renderError(c, err)
		return
	}
	summary, err := h.deals.RatingSummary(ctx, u.ID)
	if err != nil {
		renderError(c, err)
		return
	}
	profile := u.Profile()
	profile.RatingAverage = summary.Average
	profile.RatingCount = summary.Count
	c.JSON(http.StatusOK, profile)
}

// GetReviews handles GET /v1/users/:username/reviews
func (h *RestUserHandler) GetReviews(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.publicUser(c)
	if err != nil {
		renderError(c, err)
		return
	}
	limit, cursor := page(c)
	reviews, next, err := h.deals.ReviewsFor(ctx, u.ID, limit, cursor)
	if err != nil {
		renderError(c, err)
		return
	}
	paged(c, reviews, next)
}

// publicUser resolves :username. Deactivated accounts are hidden.
func (h *RestUserHandler) publicUser(c *gin.Context) (*models.User, error) {
	u, err := h.userService.FindByUsername(c.Request.Context(), validation.NormalizeUsername(c.Param("username")))
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, &services.NotFoundError{Entity: "user"}
	}
	return u, nil
}

// ListUsers handles GET /v1/admin/users
func (h *RestUserHandler) ListUsers(c *gin.Context) {
	limit, cursor := page(c)
	users, next, err := h.userService.List(c.Request.Context(), middleware.Actor(c), limit, cursor)
	if err != nil {
		renderError(c, err)
		return
	}
	paged(c, users, next)
}

// Activate handles POST /v1/admin/users/:id/activate
func (h *RestUserHandler) Activate(c *gin.Context) {
	h.setActive(c, true)
}

// Deactivate handles POST /v1/admin/users/:id/deactivate
func (h *RestUserHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

func (h *RestUserHandler) setActive(c *gin.Context, active bool) {
	id, ok := pathID(c, "id", "user")
	if !ok {
		return
	}
	u, err := h.userService.SetActive(c.Request.Context(), middleware.Actor(c), id, active)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}
