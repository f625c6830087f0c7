package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader is the request header carrying the pre-shared credential.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth rejects requests without the X-API-Key header (401) or with a
// key outside the allow-set (403). Comparison is constant-time per key.
func APIKeyAuth(allowedKeys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			c.Header("WWW-Authenticate", "ApiKey")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":      "Unauthorized",
				"detail":     "missing " + APIKeyHeader + " header",
				"request_id": RequestID(c),
			})
			return
		}

		for _, allowed := range allowedKeys {
			if subtle.ConstantTimeCompare([]byte(key), []byte(allowed)) == 1 {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":      "Forbidden",
			"detail":     "invalid API key",
			"request_id": RequestID(c),
		})
	}
}
