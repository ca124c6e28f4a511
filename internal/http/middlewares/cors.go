package middlewares

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = allowedOrigins
	cfg.AllowCredentials = true
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	cfg.AllowHeaders = []string{"Authorization", "Content-Type", "If-None-Match", "X-Request-Id"}
	cfg.ExposeHeaders = []string{"ETag", "X-Request-Id", "Retry-After"}
	cfg.MaxAge = 12 * time.Hour

	return cors.New(cfg)
}
