// Package requestid tags each request with an identifier echoed in X-Request-ID.
package requestid

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderKey  = "X-Request-ID"
	contextKey = "request_id"
	maxLength  = 64
)

// Middleware keeps a well-formed caller supplied ID and otherwise generates a UUID.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderKey)
		if !valid(reqID) {
			reqID = uuid.NewString()
		}
		c.Set(contextKey, reqID)
		c.Header(HeaderKey, reqID)
		c.Next()
	}
}

// Value returns the request ID or "" when the middleware did not run.
func Value(c *gin.Context) string {
	return c.GetString(contextKey)
}

// valid accepts short IDs made of letters, digits, '-', '_' and '.'.
func valid(id string) bool {
	if id == "" || len(id) > maxLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
