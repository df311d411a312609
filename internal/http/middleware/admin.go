package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminKey guards a route group. The key is read from X-Admin-Key or from an
// "Authorization: Bearer" header. An empty key leaves the group open, which is
// how local development runs.
func AdminKey(required string) gin.HandlerFunc {
	want := []byte(required)
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(presentedKey(c)), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Invalid admin key",
					"details": nil,
				},
			})
			return
		}
		c.Next()
	}
}

func presentedKey(c *gin.Context) string {
	if key := c.GetHeader(AdminKeyHeader); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
