package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "github.com/consoleblue/consoleblue/pkg/errors"
	"github.com/consoleblue/consoleblue/pkg/logger"
	"github.com/consoleblue/consoleblue/pkg/response"
)

const apiKeyHeader = "X-API-Key"

// APIKey guards mutating endpoints with a shared secret. With no key
// configured the guard is disabled; a warning is logged once at setup so
// open deployments are deliberate rather than accidental.
func APIKey(key string) gin.HandlerFunc {
	if key == "" {
		logger.WithModule("http").Warn("api key not configured, mutating endpoints are unprotected")
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		presented := c.GetHeader(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			response.Error(c, apperrors.ErrUnauthorized)
			c.Abort()
			return
		}
		c.Next()
	}
}
