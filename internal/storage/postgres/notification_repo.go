package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/joshu-sajeev/notifyqueue/internal/config"
	"github.com/joshu-sajeev/notifyqueue/internal/models"
)

var notificationQueue = queueSpec{
	table:      "notifications",
	order:      "priority DESC, next_attempt_at ASC NULLS FIRST, created_at ASC, id ASC",
	pending:    config.StatusPending,
	processing: config.StatusProcessing,
	scheduled:  true,
}

type NotificationRepository struct {
	db    *gorm.DB
	now   func() time.Time
	claim *claimer[models.Notification]
}

func NewNotificationRepository(db *gorm.DB, opts ...Option) *NotificationRepository {
	o := buildOptions(db, opts)
	return &NotificationRepository{
		db:    db,
		now:   o.now,
		claim: newClaimer[models.Notification](db, notificationQueue, o),
	}
}

// Enqueue inserts n as a pending job and returns its id.
func (r *NotificationRepository) Enqueue(ctx context.Context, n *models.Notification) (uint64, error) {
	n.Status = config.StatusPending
	if n.Channel == "" {
		n.Channel = config.ChannelEmail
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = r.now()
	}
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return 0, fmt.Errorf("enqueue notification: %w", err)
	}
	return n.ID, nil
}

// FetchByID returns (nil, nil) when no row has the id.
func (r *NotificationRepository) FetchByID(ctx context.Context, id uint64) (*models.Notification, error) {
	var n models.Notification
	err := r.db.WithContext(ctx).Take(&n, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// CountByStatus reports how many jobs are in each status. Every known status
// is present in the result.
func (r *NotificationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&models.Notification{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}

	counts := make(map[string]int64, len(config.NotificationStatuses))
	for _, s := range config.NotificationStatuses {
		counts[s] = 0
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *NotificationRepository) Claim(ctx context.Context, workerID string, lease time.Duration) (*models.Notification, error) {
	return r.claim.Claim(ctx, workerID, lease)
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id uint64, workerID string) error {
	return r.finish(ctx, id, workerID, "mark sent", map[string]any{
		"status":          config.StatusSent,
		"sent_at":         r.now(),
		"error":           nil,
		"next_attempt_at": nil,
		"locked_by":       nil,
		"locked_until":    nil,
	})
}

// MarkFailed moves the job to the terminal failed state with the given retry count.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id uint64, workerID string, retries int, reason string) error {
	return r.finish(ctx, id, workerID, "mark failed", map[string]any{
		"status":          config.StatusFailed,
		"retries":         retries,
		"error":           reason,
		"next_attempt_at": nil,
		"locked_by":       nil,
		"locked_until":    nil,
	})
}

// ScheduleRetry puts the job back to pending, not eligible before at.
func (r *NotificationRepository) ScheduleRetry(ctx context.Context, id uint64, workerID string, retries int, at time.Time, reason string) error {
	return r.finish(ctx, id, workerID, "schedule retry", map[string]any{
		"status":          config.StatusPending,
		"retries":         retries,
		"error":           reason,
		"next_attempt_at": at,
		"locked_by":       nil,
		"locked_until":    nil,
	})
}

// finish applies an outcome only while workerID still holds the job.
func (r *NotificationRepository) finish(ctx context.Context, id uint64, workerID, op string, cols map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND locked_by = ? AND status = ?", id, workerID, config.StatusProcessing).
		Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s notification %d: %w", op, id, ErrLeaseLost)
	}
	return nil
}

// DeleteFinishedBefore removes sent and failed jobs whose last activity is
// older than cutoff.
func (r *NotificationRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(status = ? AND sent_at < ?) OR (status = ? AND COALESCE(last_attempt_at, created_at) < ?)",
			config.StatusSent, cutoff, config.StatusFailed, cutoff).
		Delete(&models.Notification{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup notifications: %w", res.Error)
	}
	return res.RowsAffected, nil
}
