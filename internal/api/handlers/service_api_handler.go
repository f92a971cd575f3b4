package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/email"
)

// JsonApiRequest is the envelope accepted by the service API.
type JsonApiRequest struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// JsonApiResponse is the envelope returned by the service API.
type JsonApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ConfigReloader reloads runtime configuration from the store.
type ConfigReloader interface {
	Load(ctx context.Context) error
}

// ServiceApiHandler serves the internal operations port.
type ServiceApiHandler struct {
	rdb          redis.UniversalClient
	configs      ConfigReloader
	shutdownChan chan<- struct{}
	// PollInterval and PollAttempts bound how long getTestEmail waits for a message.
	PollInterval time.Duration
	PollAttempts int
}

func NewServiceApiHandler(rdb redis.UniversalClient, configs ConfigReloader, shutdownChan chan<- struct{}) *ServiceApiHandler {
	return &ServiceApiHandler{
		rdb:          rdb,
		configs:      configs,
		shutdownChan: shutdownChan,
		PollInterval: 200 * time.Millisecond,
		PollAttempts: 10,
	}
}

// HandleRequest handles POST /api
func (h *ServiceApiHandler) HandleRequest(c *gin.Context) {
	var req JsonApiRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, JsonApiResponse{Error: "Invalid request format"})
		return
	}

	switch req.Method {
	case "shutdown":
		zap.L().Info("shutdown requested via service API")
		c.JSON(http.StatusOK, JsonApiResponse{Success: true, Data: "Shutdown initiated"})
		select {
		case h.shutdownChan <- struct{}{}:
		default:
			zap.L().Warn("shutdown already signaled")
		}
	case "reloadConfig":
		if err := h.configs.Load(c.Request.Context()); err != nil {
			zap.L().Error("config reload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, JsonApiResponse{Error: "Config reload failed"})
			return
		}
		c.JSON(http.StatusOK, JsonApiResponse{Success: true})
	case "getTestEmail":
		h.getTestEmail(c, req.Arguments)
	default:
		c.JSON(http.StatusNotFound, JsonApiResponse{Error: fmt.Sprintf("Unknown service method: %s", req.Method)})
	}
}

// getTestEmail expects ["template_id", "email"] and consumes the captured message.
func (h *ServiceApiHandler) getTestEmail(c *gin.Context, raw json.RawMessage) {
	var args []string
	if err := json.Unmarshal(raw, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, JsonApiResponse{Error: "Invalid arguments: expected JSON array [templateID, email]"})
		return
	}
	key := email.MockEmailKey(args[1], args[0])

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var data string
	found := false
	for i := 0; i < h.PollAttempts; i++ {
		v, err := h.rdb.GetDel(ctx, key).Result()
		if err == nil {
			data, found = v, true
			break
		}
		if !errors.Is(err, redis.Nil) {
			zap.L().Error("service API redis read failed", zap.String("key", key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, JsonApiResponse{Error: "Redis error"})
			return
		}
		time.Sleep(h.PollInterval)
	}
	if !found {
		c.JSON(http.StatusNotFound, JsonApiResponse{Error: fmt.Sprintf("Test email not found in Redis for key %s", key)})
		return
	}

	var captured email.CapturedEmail
	if err := json.Unmarshal([]byte(data), &captured); err != nil {
		zap.L().Error("stored test email is not valid JSON", zap.String("key", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, JsonApiResponse{Error: "Failed to parse stored email data"})
		return
	}
	c.JSON(http.StatusOK, JsonApiResponse{Success: true, Data: captured})
}
