package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/returnordie/til-i-allt-sub001/internal/auth"
	"github.com/returnordie/til-i-allt-sub001/internal/models"
	"github.com/returnordie/til-i-allt-sub001/internal/services"
	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// ContextKeyUser holds the authenticated *models.User.
const ContextKeyUser = "actor"

// UserLoader resolves the subject of a token.
type UserLoader interface {
	FindByID(ctx context.Context, userID utils.SixID) (*models.User, error)
}

var errNoToken = errors.New("no bearer token")

// actorFromRequest returns the user behind the bearer token. A missing
// header yields errNoToken.
func actorFromRequest(c *gin.Context, jwtSecret string, users UserLoader) (*models.User, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, errNoToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return nil, errors.New("authorization header format must be Bearer {token}")
	}
	claims, err := auth.ValidateJWT(token, jwtSecret)
	if err != nil {
		return nil, err
	}
	id, err := claims.SubjectID()
	if err != nil {
		return nil, err
	}
	u, err := users.FindByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if !u.IsActive {
		return nil, errors.New("account is deactivated")
	}
	return u, nil
}

// AuthMiddleware requires a valid token for an active user and stores the user in the context.
// A user already loaded by OptionalAuthMiddleware is reused.
func AuthMiddleware(jwtSecret string, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if Actor(c) != nil {
			c.Next()
			return
		}
		u, err := actorFromRequest(c, jwtSecret, users)
		if err != nil {
			if !errors.Is(err, errNoToken) && !errors.Is(err, services.ErrNotFound) {
				zap.L().Debug("rejected bearer token", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthenticated."})
			return
		}
		c.Set(ContextKeyUser, u)
		c.Next()
	}
}

// OptionalAuthMiddleware loads the user when a valid token is sent and
// otherwise continues as a guest.
func OptionalAuthMiddleware(jwtSecret string, users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if u, err := actorFromRequest(c, jwtSecret, users); err == nil {
			c.Set(ContextKeyUser, u)
		}
		c.Next()
	}
}

// AdminMiddleware must run after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Actor(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "This action is unauthorized."})
			return
		}
		c.Next()
	}
}

// Actor returns the authenticated user or nil for guests.
func Actor(c *gin.Context) *models.User {
	if v, ok := c.Get(ContextKeyUser); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
