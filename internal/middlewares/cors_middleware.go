package middlewares

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows every origin unless production is set, in which case only
// allowedOrigins are accepted.
func CORS(production bool, allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	switch {
	case !production:
		cfg.AllowOriginFunc = func(string) bool { return true }
	case len(allowedOrigins) > 0:
		cfg.AllowOrigins = allowedOrigins
	default:
		cfg.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(cfg)
}
