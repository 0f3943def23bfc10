//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/joshu-sajeev/notifyqueue/internal/config"
	"github.com/joshu-sajeev/notifyqueue/internal/logging"
	"github.com/joshu-sajeev/notifyqueue/internal/mailer"
	"github.com/joshu-sajeev/notifyqueue/internal/mocks"
	"github.com/joshu-sajeev/notifyqueue/internal/models"
	"github.com/joshu-sajeev/notifyqueue/internal/retry"
	"github.com/joshu-sajeev/notifyqueue/internal/storage/postgres"
	"github.com/joshu-sajeev/notifyqueue/internal/worker"
)

func enqueueN(t *testing.T, repo *postgres.NotificationRepository, n int) {
	t.Helper()
	for i := range n {
		_, err := repo.Enqueue(context.Background(), &models.Notification{
			Template:   "generic",
			Payload:    fmt.Sprintf(`{"to":"user%d@example.com","subject":"Hi %d"}`, i, i),
			MaxRetries: 3,
		})
		require.NoError(t, err)
	}
}

// N concurrent claimers on real row locks never get the same job.
func TestClaim_SkipLockedAtMostOnce(t *testing.T) {
	db, ctx := setupTestDB(t)

	for _, skipLocked := range []bool{true, false} {
		t.Run(fmt.Sprintf("skip_locked=%v", skipLocked), func(t *testing.T) {
			require.NoError(t, db.Exec("DELETE FROM notifications").Error)

			repo := postgres.NewNotificationRepository(db, postgres.WithSkipLocked(skipLocked))
			const jobs, claimers = 40, 8
			enqueueN(t, repo, jobs)

			var (
				mu   sync.Mutex
				seen = map[uint64]string{}
				wg   sync.WaitGroup
			)
			for w := range claimers {
				wg.Add(1)
				go func(workerID string) {
					defer wg.Done()
					for {
						n, err := repo.Claim(ctx, workerID, time.Minute)
						if !assert.NoError(t, err) || n == nil {
							return
						}
						mu.Lock()
						prev, dup := seen[n.ID]
						seen[n.ID] = workerID
						mu.Unlock()
						assert.False(t, dup, "job %d claimed by %s and %s", n.ID, prev, workerID)
					}
				}(fmt.Sprintf("w%d", w))
			}
			wg.Wait()

			assert.Len(t, seen, jobs)
			counts, err := repo.CountByStatus(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(jobs), counts[config.StatusProcessing])
		})
	}
}

func TestClaim_ExpiredLeaseIsReclaimed(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewNotificationRepository(db)
	enqueueN(t, repo, 1)

	first, err := repo.Claim(ctx, "crashed", time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, first)

	time.Sleep(20 * time.Millisecond)

	second, err := repo.Claim(ctx, "rescuer", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "rescuer", *second.LockedBy)

	// the crashed worker can no longer record an outcome
	err = repo.MarkSent(ctx, first.ID, "crashed")
	assert.ErrorIs(t, err, postgres.ErrLeaseLost)
	require.NoError(t, repo.MarkSent(ctx, first.ID, "rescuer"))
}

func TestLock_ConcurrentAcquire(t *testing.T) {
	db, ctx := setupTestDB(t)
	locks := postgres.NewLockRepository(db)

	const contenders = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range contenders {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			ok, err := locks.Acquire(ctx, "notification_worker", owner, time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(fmt.Sprintf("owner-%d", i))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestDriver_EndToEnd(t *testing.T) {
	db, ctx := setupTestDB(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifs := postgres.NewNotificationRepository(db)
	webhooks := postgres.NewWebhookRepository(db)
	enqueueN(t, notifs, 3)
	_, err := webhooks.Enqueue(ctx, &models.WebhookDelivery{
		TargetURL: srv.URL, Payload: datatypes.JSON(`{"event":"order.paid"}`), MaxAttempts: 3,
	})
	require.NoError(t, err)

	renderer, err := mailer.NewTemplateRenderer()
	require.NoError(t, err)
	mail := new(mocks.MailerMock)
	mail.On("Send", mock.Anything, mock.Anything).Return(nil)

	pcfg := worker.ProcessorConfig{Lease: time.Minute, Policy: retry.Exponential{}}
	newDriver := func(id string) *worker.Driver {
		return worker.NewDriver(worker.DriverConfig{
			WorkerID:         id,
			LockName:         "notification_worker",
			LockTTL:          time.Minute,
			BatchSize:        50,
			WebhookBatchSize: 50,
			CleanupRetention: time.Hour,
		}, worker.DriverDeps{
			Locker:              postgres.NewLockRepository(db),
			Notifications:       worker.NewNotificationProcessor(notifs, renderer, mail, nil, pcfg),
			Webhooks:            worker.NewWebhookProcessor(webhooks, worker.BuildClient(config.WebhookConfig{Timeout: 5 * time.Second, AllowPrivate: true}), "secret", pcfg),
			NotificationCleaner: notifs,
			WebhookCleaner:      webhooks,
			Sessions:            postgres.NewSessionRepository(db),
			Log:                 logging.Discard(),
		})
	}

	sum, err := newDriver("it-worker").Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, worker.LockAcquired, sum.Lock)
	assert.Equal(t, 3, sum.Notifications.Sent)
	assert.Equal(t, 1, sum.Webhooks.Sent)

	counts, err := notifs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[config.StatusSent])

	// a second process finds nothing left and the lock free again
	sum, err = newDriver("other-worker").Run(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, worker.LockAcquired, sum.Lock)
	assert.Zero(t, sum.Notifications.Processed)
}
