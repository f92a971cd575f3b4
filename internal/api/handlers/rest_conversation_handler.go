package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/api/middleware"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// RestConversationHandler handles buyer/seller conversations and their messages.
type RestConversationHandler struct {
	conversations services.IConversationService
}

func NewRestConversationHandler(conversations services.IConversationService) *RestConversationHandler {
	return &RestConversationHandler{conversations: conversations}
}

// StartConversation handles POST /v1/ads/:id/conversations
func (h *RestConversationHandler) StartConversation(c *gin.Context) {
	adID, ok := pathID(c, "id", "ad")
	if !ok {
		return
	}
	var in validation.MessageInput
	if !bindBody(c, &in) {
		return
	}
	conv, msg, err := h.conversations.Start(c.Request.Context(), middleware.Actor(c), adID, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"conversation": conv, "message": msg})
}

// ListConversations handles GET /v1/conversations?archived=1
func (h *RestConversationHandler) ListConversations(c *gin.Context) {
	limit, cursor := page(c)
	archived := c.Query("archived") == "1" || c.Query("archived") == "true"
	convs, next, err := h.conversations.List(c.Request.Context(), middleware.Actor(c), archived, limit, cursor)
	if err != nil {
		renderError(c, err)
		return
	}
	paged(c, convs, next)
}

// GetConversation handles GET /v1/conversations/:id
func (h *RestConversationHandler) GetConversation(c *gin.Context) {
	id, ok := pathID(c, "id", "conversation")
	if !ok {
		return
	}
	conv, err := h.conversations.Find(c.Request.Context(), middleware.Actor(c), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListMessages handles GET /v1/conversations/:id/messages. Messages come oldest first; cursor continues after the last one.
func (h *RestConversationHandler) ListMessages(c *gin.Context) {
	id, ok := pathID(c, "id", "conversation")
	if !ok {
		return
	}
	limit, cursor := page(c)
	msgs, next, err := h.conversations.Messages(c.Request.Context(), middleware.Actor(c), id, limit, cursor)
	if err != nil {
		renderError(c, err)
		return
	}
	paged(c, msgs, next)
}

// SendMessage handles POST /v1/conversations/:id/messages
func (h *RestConversationHandler) SendMessage(c *gin.Context) {
	id, ok := pathID(c, "id", "conversation")
	if !ok {
		return
	}
	var in validation.MessageInput
	if !bindBody(c, &in) {
		return
	}
	msg, err := h.conversations.SendMessage(c.Request.Context(), middleware.Actor(c), id, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// UpdateStatus handles PATCH /v1/conversations/:id/status
func (h *RestConversationHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c, "id", "conversation")
	if !ok {
		return
	}
	var in validation.ConversationStatusInput
	if !bindBody(c, &in) {
		return
	}
	conv, err := h.conversations.UpdateStatus(c.Request.Context(), middleware.Actor(c), id, &in)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// Archive handles POST /v1/conversations/:id/archive
func (h *RestConversationHandler) Archive(c *gin.Context) {
	h.setArchived(c, true)
}

// Unarchive handles DELETE /v1/conversations/:id/archive
func (h *RestConversationHandler) Unarchive(c *gin.Context) {
	h.setArchived(c, false)
}

func (h *RestConversationHandler) setArchived(c *gin.Context, archived bool) {
	id, ok := pathID(c, "id", "conversation")
	if !ok {
		return
	}
	conv, err := h.conversations.Archive(c.Request.Context(), middleware.Actor(c), id, archived)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}
