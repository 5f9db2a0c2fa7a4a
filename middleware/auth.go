package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"

	"github.com/Abhinavsb985/Smart-Traffic-Control/auth"
	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// Context keys set by AuthMiddleware.
const (
	IdentityKey = "identity"
	TokenKey    = "token"
)

// TokenValidator resolves a bearer token to the identity it was issued to.
// Rejected tokens are reported as auth.ErrInvalidToken; any other error means
// the token could not be checked.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Identity, error)
}

// AuthMiddleware validates bearer tokens for protected routes. Browsers cannot
// set headers on WebSocket upgrades, so a "token" query parameter is accepted
// when the header is absent.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" && c.Query("token") != "" {
			authHeader = "Bearer " + c.Query("token")
		}
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "missing authorization header"})
			return
		}

		tokenString := extractToken(authHeader)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid authorization format"})
			return
		}

		identity, err := validator.ValidateToken(c.Request.Context(), tokenString)
		if errors.Is(err, auth.ErrInvalidToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "invalid or expired token"})
			return
		}
		if err != nil {
			log.WithError(err).Error("Token validation failed")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "authentication unavailable"})
			return
		}

		c.Set(IdentityKey, *identity)
		c.Set(TokenKey, tokenString)
		c.Next()
	}
}

// GetIdentity returns the identity stored by AuthMiddleware.
func GetIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := v.(models.Identity)
	return identity, ok
}

// extractToken extracts the token from the Authorization header
func extractToken(authHeader string) string {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
