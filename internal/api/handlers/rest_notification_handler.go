package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
)

type RestNotificationHandler struct {
	notifications services.INotificationService
}

func NewRestNotificationHandler(notifications services.INotificationService) *RestNotificationHandler {
	return &RestNotificationHandler{notifications: notifications}
}

// ListNotifications handles GET /v1/notifications?unread=1
func (h *RestNotificationHandler) ListNotifications(c *gin.Context) {
	limit, cursor := page(c)
	unread := c.Query("unread") == "1" || c.Query("unread") == "true"
	list, next, err := h.notifications.List(c.Request.Context(), middleware.Actor(c), unread, limit, cursor)
	if err != nil {
		renderError(c, err)
		return
	}
	paged(c, list, next)
}

// UnreadCount handles GET /v1/notifications/unread-count
func (h *RestNotificationHandler) UnreadCount(c *gin.Context) {
	n, err := h.notifications.UnreadCount(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

// MarkRead handles POST /v1/notifications/:id/read
func (h *RestNotificationHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c, "id", "notification")
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// MarkAllRead handles POST /v1/notifications/read-all
func (h *RestNotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifications.MarkAllRead(c.Request.Context(), middleware.Actor(c))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
