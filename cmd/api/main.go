package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/expertjobs/internal/cache"
	"github.com/geocoder89/expertjobs/internal/config"
	"github.com/geocoder89/expertjobs/internal/db"
	httpx "github.com/geocoder89/expertjobs/internal/http"
	"github.com/geocoder89/expertjobs/internal/http/handlers"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/geocoder89/expertjobs/internal/queue/redisclient"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, "expertjobs-api", cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	pool, err := db.NewPool(cfg.DBURL, 10)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	migrateCtx, cancel := config.WithTimeout(30 * time.Second)
	err = db.Migrate(migrateCtx, pool, log)
	cancel()
	if err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	seedCtx, cancel := config.WithTimeout(5 * time.Second)
	err = db.EnsureEmployer(seedCtx, pool, cfg)
	cancel()
	if err != nil {
		log.Error("seed employer failed", "err", err)
		os.Exit(1)
	}

	var (
		store cache.Store
		ready = map[string]handlers.Pinger{}
	)
	if rc := redisclient.New(redisclient.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}); rc != nil {
		defer rc.Close()
		store = rc.Store()
		ready["redis"] = rc
		log.Info("query cache on redis", "addr", cfg.RedisAddr)
	} else {
		log.Info("query cache in process")
	}

	router := httpx.NewAPI(httpx.APIDeps{
		Logger:     log,
		Config:     cfg,
		Pool:       pool,
		Prom:       observability.NewProm(prometheus.DefaultRegisterer),
		CacheStore: store,
		Ready:      ready,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})
	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")
	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
