package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAdmin lets through accounts whose email is on the operator list.
// Must run after RequireAuth.
func (m *AuthMiddleware) RequireAdmin(adminEmails []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(adminEmails))
	for _, e := range adminEmails {
		allowed[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}

	return func(c *gin.Context) {
		email, ok := EmailFromContext(c)
		if !ok || email == "" {
			abortUnauthorized(c, "Missing identity context")
			return
		}

		if _, ok := allowed[strings.ToLower(email)]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "forbidden",
					"message": "Admin access required",
				},
			})
			return
		}
		c.Next()
	}
}
