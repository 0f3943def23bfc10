package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joshu-sajeev/notifyqueue/internal/logging"
	"github.com/joshu-sajeev/notifyqueue/internal/metrics"
	"github.com/joshu-sajeev/notifyqueue/internal/storage/postgres"
)

// Lock states reported in Summary.Lock.
const (
	LockAcquired       = "acquired"
	LockAlreadyRunning = "already_running"
	LockError          = "error"
)

// releaseTimeout bounds the lock release, which runs even after the run's
// context is canceled.
const releaseTimeout = 5 * time.Second

type Locker interface {
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) error
}

type Cleaner interface {
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SessionCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// JobProcessor handles one job per call. owner is written to locked_by and
// guards the outcome update.
type JobProcessor interface {
	ProcessNext(ctx context.Context, owner string, log *slog.Logger) (Result, error)
}

type DriverConfig struct {
	WorkerID         string
	LockName         string
	LockTTL          time.Duration
	BatchSize        int
	WebhookBatchSize int
	CleanupRetention time.Duration
	CleanupSessions  bool
	// LogLevel is the lowest level copied into Summary.Logs.
	LogLevel slog.Leveler
}

// DriverDeps are the collaborators of a run. Webhooks, WebhookCleaner and
// Sessions are optional.
type DriverDeps struct {
	Locker              Locker
	Notifications       JobProcessor
	Webhooks            JobProcessor
	NotificationCleaner Cleaner
	WebhookCleaner      Cleaner
	Sessions            SessionCleaner
	Log                 *slog.Logger
	Now                 func() time.Time
}

// Summary is the machine readable report of one run.
type Summary struct {
	RunID                string     `json:"run_id"`
	WorkerID             string     `json:"worker_id"`
	Owner                string     `json:"owner"`
	Lock                 string     `json:"lock"`
	Notifications        BatchStats `json:"notifications"`
	Webhooks             BatchStats `json:"webhooks"`
	CleanupNotifications int64      `json:"cleanup_notifications"`
	CleanupWebhooks      int64      `json:"cleanup_webhooks"`
	CleanupSessions      int64      `json:"cleanup_sessions"`
	Errors               []string   `json:"errors"`
	Logs                 []string   `json:"logs"`
	StartedAt            time.Time  `json:"started_at"`
	FinishedAt           time.Time  `json:"finished_at"`
}

// Driver runs one batch per Run call. It holds no state between runs.
type Driver struct {
	cfg  DriverConfig
	deps DriverDeps
}

func NewDriver(cfg DriverConfig, deps DriverDeps) *Driver {
	if deps.Log == nil {
		deps.Log = logging.Discard()
	}
	if deps.Now == nil {
		deps.Now = postgres.Now
	}
	if cfg.LogLevel == nil {
		cfg.LogLevel = slog.LevelInfo
	}
	return &Driver{cfg: cfg, deps: deps}
}

// Run takes the batch lock, drains both queues, cleans up and releases the
// lock. A held lock is not an error. limit, when positive, lowers the
// configured batch sizes. The returned error is set for infrastructure
// failures only, and the Summary is always returned.
func (d *Driver) Run(ctx context.Context, limit int) (*Summary, error) {
	capture := logging.NewCapture(d.deps.Log.Handler(), d.cfg.LogLevel)
	log := slog.New(capture)

	runID := uuid.NewString()
	sum := &Summary{
		RunID:     runID,
		WorkerID:  d.cfg.WorkerID,
		Owner:     d.cfg.WorkerID + ":" + runID,
		Errors:    []string{},
		StartedAt: d.deps.Now(),
	}

	err := d.run(ctx, log, sum, limit)
	if err != nil {
		sum.Errors = append(sum.Errors, err.Error())
		log.Error("run aborted", "error", err)
	}

	sum.FinishedAt = d.deps.Now()
	log.Info("run finished",
		"run_id", sum.RunID,
		"lock", sum.Lock,
		"notifications", sum.Notifications.Processed,
		"webhooks", sum.Webhooks.Processed,
		"duration", sum.FinishedAt.Sub(sum.StartedAt))
	sum.Logs = capture.Lines()

	metrics.Runs.WithLabelValues(sum.Lock).Inc()
	if sum.Lock == LockAcquired {
		metrics.RunDuration.Observe(sum.FinishedAt.Sub(sum.StartedAt).Seconds())
	}
	return sum, err
}

func (d *Driver) run(ctx context.Context, log *slog.Logger, sum *Summary, limit int) error {
	log.Info("run started", "run_id", sum.RunID, "worker_id", d.cfg.WorkerID)

	// runs of one process share WorkerID, so the lock and the leases are held
	// per run
	ok, err := d.deps.Locker.Acquire(ctx, d.cfg.LockName, sum.Owner, d.cfg.LockTTL)
	if err != nil {
		sum.Lock = LockError
		return fmt.Errorf("acquire batch lock: %w", err)
	}
	if !ok {
		sum.Lock = LockAlreadyRunning
		log.Info("another run holds the batch lock", "lock", d.cfg.LockName)
		return nil
	}
	sum.Lock = LockAcquired

	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if rerr := d.deps.Locker.Release(rctx, d.cfg.LockName, sum.Owner); rerr != nil {
			// the lock expires on its own after LockTTL
			sum.Errors = append(sum.Errors, rerr.Error())
			log.Error("release batch lock", "error", rerr)
		}
	}()

	notifLimit, hookLimit := d.cfg.BatchSize, d.cfg.WebhookBatchSize
	// a larger limit would outlast the lock TTL, which is sized for the
	// configured batches
	if limit > 0 {
		notifLimit, hookLimit = min(limit, notifLimit), min(limit, hookLimit)
	}

	if err := drain(ctx, log, sum.Owner, "notifications", d.deps.Notifications, notifLimit, &sum.Notifications); err != nil {
		return fmt.Errorf("drain notifications: %w", err)
	}
	if d.deps.Webhooks != nil {
		if err := drain(ctx, log, sum.Owner, "webhooks", d.deps.Webhooks, hookLimit, &sum.Webhooks); err != nil {
			return fmt.Errorf("drain webhooks: %w", err)
		}
	}

	return d.cleanup(ctx, log, sum)
}

func drain(ctx context.Context, log *slog.Logger, owner, queue string, p JobProcessor, limit int, stats *BatchStats) error {
	log = log.With("queue", queue)

	for range limit {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := p.ProcessNext(ctx, owner, log)
		stats.add(res)
		if res.Claimed {
			metrics.JobsProcessed.WithLabelValues(queue, string(res.Outcome)).Inc()
		}
		if err != nil {
			return err
		}
		if !res.Claimed {
			break
		}
	}
	return nil
}

func (d *Driver) cleanup(ctx context.Context, log *slog.Logger, sum *Summary) error {
	if d.cfg.CleanupRetention <= 0 {
		return nil
	}
	cutoff := d.deps.Now().Add(-d.cfg.CleanupRetention)

	if d.deps.NotificationCleaner != nil {
		n, err := d.deps.NotificationCleaner.DeleteFinishedBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		sum.CleanupNotifications = n
		metrics.CleanupDeleted.WithLabelValues("notifications").Add(float64(n))
	}

	if d.deps.WebhookCleaner != nil {
		n, err := d.deps.WebhookCleaner.DeleteFinishedBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		sum.CleanupWebhooks = n
		metrics.CleanupDeleted.WithLabelValues("webhook_queue").Add(float64(n))
	}

	if d.cfg.CleanupSessions && d.deps.Sessions != nil {
		n, err := d.deps.Sessions.DeleteExpired(ctx)
		if err != nil {
			return err
		}
		sum.CleanupSessions = n
		metrics.CleanupDeleted.WithLabelValues("sessions").Add(float64(n))
	}

	log.Info("cleanup done",
		"notifications", sum.CleanupNotifications,
		"webhooks", sum.CleanupWebhooks,
		"sessions", sum.CleanupSessions)
	return nil
}
