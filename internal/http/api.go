package http

import (
	"log/slog"

	"github.com/geocoder89/expertjobs/internal/auth"
	"github.com/geocoder89/expertjobs/internal/cache"
	"github.com/geocoder89/expertjobs/internal/config"
	"github.com/geocoder89/expertjobs/internal/documents"
	"github.com/geocoder89/expertjobs/internal/http/handlers"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/geocoder89/expertjobs/internal/repo/postgres"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

type APIDeps struct {
	Logger *slog.Logger
	Config config.Config
	Pool   *pgxpool.Pool
	Prom   *observability.Prom

	// CacheStore backs the query cache: redis when configured, in-process otherwise.
	CacheStore cache.Store

	// extra readiness checks, e.g. redis
	Ready map[string]handlers.Pinger
}

// NewAPI builds the repositories, services and handlers over one pool and
// returns the routed engine.
func NewAPI(deps APIDeps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	cfg := deps.Config

	users := postgres.NewUsersRepo(deps.Pool, deps.Prom)
	refresh := postgres.NewRefreshTokensRepo(deps.Pool, deps.Prom)
	resets := postgres.NewPasswordResetsRepo(deps.Pool, deps.Prom)
	tasksRepo := postgres.NewTasksRepo(deps.Pool, deps.Prom)
	docs := postgres.NewDocumentsRepo(deps.Pool, deps.Prom)

	jwt := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())

	store := deps.CacheStore
	if store == nil {
		store = cache.NewLocalStore(cfg.QueryCacheTTL)
	}
	var obs cache.Observer
	if deps.Prom != nil {
		obs = deps.Prom
	}
	queryCache := cache.NewQueryCache(store, cfg.QueryCacheTTL, obs, log)

	ready := map[string]handlers.Pinger{"postgres": deps.Pool}
	for name, p := range deps.Ready {
		ready[name] = p
	}

	return NewRouter(RouterDeps{
		Logger: log,
		Config: cfg,
		Prom:   deps.Prom,
		JWT:    jwt,
		Health: handlers.NewHealthHandler(ready),
		Auth: handlers.NewAuthHandler(handlers.AuthDeps{
			Users:   users,
			Refresh: refresh,
			Resets:  resets,
			Tasks:   tasksRepo,
			JWT:     jwt,
			Logger:  log,
		}, cfg),
		Documents:  handlers.NewDocumentsHandler(documents.New(docs, tasksRepo, queryCache, log), log),
		AdminTasks: handlers.NewAdminTasksHandler(tasksRepo),
	})
}
