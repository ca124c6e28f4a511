package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/expertjobs/internal/domain/task"
	"github.com/geocoder89/expertjobs/internal/domain/user"
	"github.com/geocoder89/expertjobs/internal/notifications"
	"github.com/geocoder89/expertjobs/internal/observability"
	"github.com/robfig/cron/v3"
)

type TasksRepository interface {
	ClaimNext(ctx context.Context, workerID string) (task.Task, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type DeliveryLedger interface {
	TryStart(ctx context.Context, kind, refID, taskID, recipient string) error
	MarkSent(ctx context.Context, kind, refID string, providerMessageID *string) error
	MarkFailed(ctx context.Context, kind, refID, errMsg string) error
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// Purger deletes rows that expired before cutoff.
type Purger interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	WorkerID      string
	PollInterval  time.Duration
	Concurrency   int
	ShutdownGrace time.Duration
	LockTTL       time.Duration

	// cron spec for stale-lock requeue and token purges
	HousekeepingSpec string
}

type Deps struct {
	Repo     TasksRepository
	Notifier notifications.Notifier
	Ledger   DeliveryLedger
	Users    UserLookup
	Purgers  map[string]Purger
	Logger   *slog.Logger
	Prom     *observability.Prom
	Stats    *observability.TaskMetrics
}

type Worker struct {
	cfg      Config
	repo     TasksRepository
	notifier notifications.Notifier
	ledger   DeliveryLedger
	users    UserLookup
	purgers  map[string]Purger
	log      *slog.Logger
	prom     *observability.Prom
	stats    *observability.TaskMetrics
	cron     *cron.Cron
	now      func() time.Time
	backoff  func(attempt int) time.Duration

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, deps Deps) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.HousekeepingSpec == "" {
		cfg.HousekeepingSpec = "@every 1m"
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Stats == nil {
		deps.Stats = observability.NewTaskMetrics()
	}

	return &Worker{
		cfg:      cfg,
		repo:     deps.Repo,
		notifier: deps.Notifier,
		ledger:   deps.Ledger,
		users:    deps.Users,
		purgers:  deps.Purgers,
		log:      deps.Logger.With("worker_id", cfg.WorkerID),
		prom:     deps.Prom,
		stats:    deps.Stats,
		cron:     cron.New(),
		now:      time.Now,
		backoff:  ExponentialBackoff,
	}
}

// Run polls until ctx is cancelled, then waits up to ShutdownGrace for
// in-flight tasks.
func (w *Worker) Run(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.cfg.HousekeepingSpec, func() { w.Housekeep(ctx) }); err != nil {
		return err
	}
	w.cron.Start()
	w.setReady(true)
	w.log.Info("worker started", "concurrency", w.cfg.Concurrency)

	// in-flight tasks finish on their own context so shutdown does not cut a send in half
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx, runCtx)
		}()
	}

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker received shutdown signal")
	<-w.cron.Stop().Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("shutdown grace elapsed with tasks in flight")
		cancelRun()
		<-done
	}
	return nil
}

func (w *Worker) loop(stop, runCtx context.Context) {
	for {
		if stop.Err() != nil {
			return
		}

		processed, err := w.ProcessOne(runCtx)
		if err != nil {
			w.log.Error("process task", "err", err)
		}
		if processed {
			continue
		}

		select {
		case <-stop.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

func (w *Worker) Stats() observability.TaskMetricsSnapshot {
	return w.stats.Snapshot()
}

// Housekeep requeues tasks abandoned by dead workers and purges expired
// tokens. Failures are logged; the next tick tries again.
func (w *Worker) Housekeep(ctx context.Context) {
	n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
	if err != nil {
		w.log.Error("requeue stale tasks", "err", err)
	} else if n > 0 {
		w.log.Warn("requeued stale tasks", "count", n)
	}

	cutoff := w.now().UTC()
	for name, p := range w.purgers {
		n, err := p.DeleteExpired(ctx, cutoff)
		if err != nil {
			w.log.Error("purge expired", "table", name, "err", err)
			continue
		}
		if n > 0 {
			w.log.Info("purged expired rows", "table", name, "count", n)
		}
	}
}

var errNoUsers = errors.New("no user lookup configured")
