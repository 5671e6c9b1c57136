package middleware

import (
	"github.com/gin-gonic/gin"
)

// Cache-Control directives used by the route groups.
const (
	CacheCatalog = "private, max-age=60"
	CacheNone    = "no-store"
)

// CacheControl sets the Cache-Control header on every response of a group.
func CacheControl(directive string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", directive)
		c.Next()
	}
}
