package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tabula/internal/services"
	"tabula/internal/utils"
)

const userKey = "user"

// Authenticate verifies the bearer token and stores the caller in the
// context for handlers.
func Authenticate(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing Authorization header"})
			return
		}

		// Expected format: "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid Authorization format"})
			return
		}

		claims, err := utils.VerifyJWT(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid token subject"})
			return
		}

		c.Set(userKey, services.User{ID: userID, Role: claims.Role})
		c.Next()
	}
}

// CurrentUser returns the caller stored by Authenticate.
func CurrentUser(c *gin.Context) (services.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return services.User{}, false
	}
	user, ok := v.(services.User)
	return user, ok
}
