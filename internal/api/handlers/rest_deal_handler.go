package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// RestDealHandler handles deals and the reviews left on them.
type RestDealHandler struct {
	deals services.IDealService
}

func NewRestDealHandler(deals services.IDealService) *RestDealHandler {
	return &RestDealHandler{deals: deals}
}

// CreateDeal handles POST /v1/ads/:id/deals
func (h *RestDealHandler) CreateDeal(c *gin.Context) {
	adID, ok := pathID(c, "id", "ad")
	if !ok {
		return
	}
	var in validation.DealInput
	if !bindBody(c, &in) {
		return
	}
	deal, err := h.deals.Create(c.Request.Context(), middleware.Actor(c), adID, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, deal)
}

// ListDeals handles GET /v1/deals
func (h *RestDealHandler) ListDeals(c *gin.Context) {
	limit, cursor := page(c)
	deals, next, err := h.deals.List(c.Request.Context(), middleware.Actor(c), limit, cursor)
	if err != nil {
		renderError(c, err)
		return
	}
	paged(c, deals, next)
}

// GetDeal handles GET /v1/deals/:id
func (h *RestDealHandler) GetDeal(c *gin.Context) {
	id, ok := pathID(c, "id", "deal")
	if !ok {
		return
	}
	deal, err := h.deals.Find(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// UpdateDeal handles PATCH /v1/deals/:id
func (h *RestDealHandler) UpdateDeal(c *gin.Context) {
	id, ok := pathID(c, "id", "deal")
	if !ok {
		return
	}
	var in validation.DealUpdateInput
	if !bindBody(c, &in) {
		return
	}
	deal, err := h.deals.Update(c.Request.Context(), middleware.Actor(c), id, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, deal)
}

// CreateReview handles POST /v1/deals/:id/reviews
func (h *RestDealHandler) CreateReview(c *gin.Context) {
	id, ok := pathID(c, "id", "deal")
	if !ok {
		return
	}
	var in validation.ReviewInput
	if !bindBody(c, &in) {
		return
	}
	review, err := h.deals.CreateReview(c.Request.Context(), middleware.Actor(c), id, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

// DeleteReview handles DELETE /v1/admin/reviews/:id
func (h *RestDealHandler) DeleteReview(c *gin.Context) {
	id, ok := pathID(c, "id", "review")
	if !ok {
		return
	}
	if err := h.deals.DeleteReview(c.Request.Context(), middleware.Actor(c), id); err != nil {
		renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
