package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geocoder89/expertjobs/internal/config"
	"github.com/geocoder89/expertjobs/internal/db"
	"github.com/geocoder89/expertjobs/internal/notifications"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/geocoder89/expertjobs/internal/queue/worker"
	"github.com/geocoder89/expertjobs/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg := config.Load()
	log := observability.NewLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "expertjobs-worker", cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	pool, err := db.NewPool(cfg.DBURL, int32(cfg.WorkerConcurrency+2))
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	notifier := notifications.NewProtectedNotifier(notifications.NewLogNotifier(log), notifications.ProtectedNotifierConfig{
		Timeout:          5 * time.Second,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 1,
	})

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		WorkerID:         workerID,
		PollInterval:     cfg.WorkerPollInterval,
		Concurrency:      cfg.WorkerConcurrency,
		ShutdownGrace:    10 * time.Second,
		LockTTL:          cfg.WorkerLockTTL,
		HousekeepingSpec: cfg.HousekeepingSpec,
	}, worker.Deps{
		Repo:     postgres.NewTasksRepo(pool, prom),
		Notifier: notifier,
		Ledger:   postgres.NewNotificationDeliveriesRepo(pool, prom),
		Users:    postgres.NewUsersRepo(pool, prom),
		Purgers: map[string]worker.Purger{
			"refresh_tokens":  postgres.NewRefreshTokensRepo(pool, prom),
			"password_resets": postgres.NewPasswordResetsRepo(pool, prom),
		},
		Logger: log,
		Prom:   prom,
	})

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           w.HealthHandler(pool),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server failed", "err", err)
		}
	}()

	log.Info("worker started", "worker_id", workerID, "concurrency", cfg.WorkerConcurrency)

	if err := w.Run(ctx); err != nil {
		log.Error("worker stopped with error", "err", err)
	}

	shutdownCtx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(shutdownCtx)

	log.Info("worker shutdown complete")
}
