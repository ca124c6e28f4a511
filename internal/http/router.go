package http

import (
	"log/slog"

	"github.com/geocoder89/expertjobs/internal/config"
	"github.com/geocoder89/expertjobs/internal/http/handlers"
	"github.com/geocoder89/expertjobs/internal/http/middlewares"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20

type RouterDeps struct {
	Logger *slog.Logger
	Config config.Config
	Prom   *observability.Prom
	JWT    middlewares.TokenVerifier

	Health     *handlers.HealthHandler
	Auth       *handlers.AuthHandler
	Documents  *handlers.DocumentsHandler
	AdminTasks *handlers.AdminTasksHandler
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("expertjobs-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(deps.Logger))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(deps.Config.CORSAllowedOrigins))
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
	}

	// health
	r.GET("/healthz", deps.Health.Healthz)
	r.GET("/readyz", deps.Health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMw := middlewares.NewAuthMiddleware(deps.JWT)
	limiter := middlewares.NewRateLimiter(deps.Config.RateLimitPerMinute)

	// no caller yet, so auth is limited per IP
	authGroup := r.Group("/auth",
		middlewares.MaxBodyBytes(maxBodyBytes),
		middlewares.RequireJSONBody(),
		limiter.RateLimiterMiddleware(middlewares.KeyByIP),
	)
	authGroup.POST("/signup", deps.Auth.SignUp)
	authGroup.POST("/signin", deps.Auth.SignIn)
	authGroup.POST("/refresh", deps.Auth.Refresh)
	authGroup.POST("/signout", deps.Auth.SignOut)
	authGroup.POST("/password-reset", deps.Auth.PasswordReset)
	authGroup.POST("/password-reset/confirm", deps.Auth.PasswordResetConfirm)

	docs := r.Group("/v1/collections/:collection/documents",
		middlewares.MaxBodyBytes(maxBodyBytes),
		middlewares.RequireJSONBody(),
	)
	docs.GET("", authMw.OptionalAuth(), limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), deps.Documents.Query)
	docs.POST("", authMw.RequireAuth(), limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), deps.Documents.Create)
	docs.PUT("/:id", authMw.RequireAuth(), limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP), deps.Documents.Merge)

	if deps.AdminTasks != nil {
		admin := r.Group("/admin",
			authMw.RequireAuth(),
			authMw.RequireAdmin(deps.Config.AdminEmails),
		)
		admin.GET("/tasks", deps.AdminTasks.List)
		admin.GET("/tasks/:id", deps.AdminTasks.GetByID)
		admin.POST("/tasks/:id/retry", deps.AdminTasks.Retry)
		admin.POST("/tasks/reprocess-dead", deps.AdminTasks.ReprocessDead)
	}

	return r
}
