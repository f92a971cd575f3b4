package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
	"github.com/returnordie/til-i-allt-sub001/internal/validation"
	"go.uber.org/zap"
)

const invalidDataMessage = "The given data was invalid."

// renderError maps service errors onto status codes. Unknown errors are logged and hidden.
func renderError(c *gin.Context, err error) {
	var nf *services.NotFoundError
	switch {
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "This action is unauthorized."})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrInvalidCredentials):
		renderValidation(c, validation.Single("email", "These credentials do not match our records."))
	default:
		if errs, ok := validation.AsErrors(err); ok {
			renderValidation(c, errs)
			return
		}
		_ = c.Error(err)
		zap.L().Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func renderValidation(c *gin.Context, errs validation.Errors) {
	c.JSON(http.StatusUnprocessableEntity, gin.H{"message": invalidDataMessage, "errors": errs})
}

// pathID parses a SixID route parameter, answering 400 when malformed.
func pathID(c *gin.Context, param, entity string) (utils.SixID, bool) {
	id, err := utils.ParseSixID(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + entity + " ID format"})
		return utils.SixID{}, false
	}
	return id, true
}

// bindBody decodes a JSON body, answering 400 when it is not JSON at all.
func bindBody(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return false
	}
	return true
}

// page reads the limit and cursor query parameters.
func page(c *gin.Context) (int, string) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		limit = 0
	}
	return services.PageSize(limit), c.Query("cursor")
}

func paged(c *gin.Context, data any, next string) {
	c.JSON(http.StatusOK, gin.H{"data": data, "next_cursor": next})
}
