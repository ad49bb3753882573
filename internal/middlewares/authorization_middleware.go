package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin rejects callers without the admin role. It must run after
// Authenticate.
func RequireAdmin(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
		return
	}
	if !user.IsAdmin() {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Access denied. Admin privileges required."})
		return
	}
	c.Next()
}
