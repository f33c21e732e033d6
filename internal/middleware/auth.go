package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey   = "userID"
	UsernameKey = "username"
)

// TokenVerifier resolves an access token to an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// AuthMiddleware validates the bearer Authorization header.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(UsernameKey, identity.Username)
		c.Next()
	}
}
