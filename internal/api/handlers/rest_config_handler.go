package handlers

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
)

// RestConfigHandler handles requests for the /config REST endpoint.
type RestConfigHandler struct {
	configService services.IConfigService
}

// NewRestConfigHandler creates a new RestConfigHandler.
func NewRestConfigHandler(configService services.IConfigService) *RestConfigHandler {
	return &RestConfigHandler{configService: configService}
}

// GetPublicConfig handles GET /v1/config
func (h *RestConfigHandler) GetPublicConfig(c *gin.Context) {
	publicConfig, err := h.configService.GetAllPublic(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, publicConfig)
}

var configKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{1,63}$`)

type setConfigRequest struct {
	Value  any  `json:"value"`
	Public bool `json:"public"`
}

// SetConfig handles PUT /v1/admin/config/:key
func (h *RestConfigHandler) SetConfig(c *gin.Context) {
	key := c.Param("key")
	if !configKeyPattern.MatchString(key) {
		renderValidation(c, validation.Single("key", "The key format is invalid."))
		return
	}
	var req setConfigRequest
	if !bindBody(c, &req) {
		return
	}
	if req.Value == nil {
		renderValidation(c, validation.Single("value", "The value field is required."))
		return
	}
	if err := h.configService.SetConfigValue(c.Request.Context(), key, req.Value, req.Public); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value, "public": req.Public})
}
