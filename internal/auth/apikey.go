package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Header carrying the shared-secret credential.
const apiKeyHeader = "X-API-Key"

// RequireAPIKey guards a route group with a constant-time check of the
// X-API-Key header. An empty configured key disables the check, which
// is the development default.
func RequireAPIKey(key string) gin.HandlerFunc {
	secret := []byte(key)
	return func(c *gin.Context) {
		if len(secret) == 0 {
			c.Next()
			return
		}

		provided := c.GetHeader(apiKeyHeader)
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), secret) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Next()
	}
}
