package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// RestReportHandler handles ad reports and the admin moderation queue.
type RestReportHandler struct {
	reports services.IReportService
}

func NewRestReportHandler(reports services.IReportService) *RestReportHandler {
	return &RestReportHandler{reports: reports}
}

// ReportAd handles POST /v1/ads/:id/report
func (h *RestReportHandler) ReportAd(c *gin.Context) {
	adID, ok := pathID(c, "id", "ad")
	if !ok {
		return
	}
	var in validation.ReportInput
	if !bindBody(c, &in) {
		return
	}
	report, err := h.reports.Create(c.Request.Context(), middleware.Actor(c), adID, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// GetReport handles GET /v1/reports/:id
func (h *RestReportHandler) GetReport(c *gin.Context) {
	id, ok := pathID(c, "id", "report")
	if !ok {
		return
	}
	report, err := h.reports.Find(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListOpen handles GET /v1/admin/reports
func (h *RestReportHandler) ListOpen(c *gin.Context) {
	limit, cursor := page(c)
	reports, next, err := h.reports.ListOpen(c.Request.Context(), middleware.Actor(c), limit, cursor)
	if err != nil {
		renderError(c, err)
		return
	}
	paged(c, reports, next)
}

// Handle handles POST /v1/admin/reports/:id/handle
func (h *RestReportHandler) Handle(c *gin.Context) {
	id, ok := pathID(c, "id", "report")
	if !ok {
		return
	}
	var in validation.HandleReportInput
	// The resolution note is optional, so an empty body is accepted.
	if c.Request.ContentLength != 0 && !bindBody(c, &in) {
		return
	}
	report, err := h.reports.Handle(c.Request.Context(), middleware.Actor(c), id, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
