package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/open-builders/giveaway-engine/internal/common/errors"
)

// RequireAPIKey admits requests carrying key in X-API-Key or as a bearer
// token. An empty key admits everything.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			provided = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			sendErrorResponse(c, errors.New(errors.ErrCodeUnauthorized, "Unauthorized: API key required"))
			return
		}
		c.Next()
	}
}
