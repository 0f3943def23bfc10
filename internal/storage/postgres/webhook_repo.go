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

var webhookQueue = queueSpec{
	table:      "webhook_queue",
	order:      "next_attempt_at ASC NULLS FIRST, created_at ASC, id ASC",
	pending:    config.WebhookPending,
	processing: config.WebhookProcessing,
}

type WebhookRepository struct {
	db    *gorm.DB
	now   func() time.Time
	claim *claimer[models.WebhookDelivery]
}

func NewWebhookRepository(db *gorm.DB, opts ...Option) *WebhookRepository {
	o := buildOptions(db, opts)
	return &WebhookRepository{
		db:    db,
		now:   o.now,
		claim: newClaimer[models.WebhookDelivery](db, webhookQueue, o),
	}
}

func (r *WebhookRepository) Enqueue(ctx context.Context, d *models.WebhookDelivery) (uint64, error) {
	d.Status = config.WebhookPending
	if d.CreatedAt.IsZero() {
		d.CreatedAt = r.now()
	}
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return 0, fmt.Errorf("enqueue webhook: %w", err)
	}
	return d.ID, nil
}

func (r *WebhookRepository) FetchByID(ctx context.Context, id uint64) (*models.WebhookDelivery, error) {
	var d models.WebhookDelivery
	err := r.db.WithContext(ctx).Take(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	return &d, nil
}

func (r *WebhookRepository) Claim(ctx context.Context, workerID string, lease time.Duration) (*models.WebhookDelivery, error) {
	return r.claim.Claim(ctx, workerID, lease)
}

func (r *WebhookRepository) MarkDelivered(ctx context.Context, id uint64, workerID string, attempts int, response string) error {
	return r.finish(ctx, id, workerID, "mark delivered", map[string]any{
		"status":          config.WebhookDelivered,
		"attempts":        attempts,
		"delivered_at":    r.now(),
		"last_error":      nil,
		"last_response":   nullable(response),
		"next_attempt_at": nil,
		"locked_by":       nil,
		"locked_until":    nil,
	})
}

func (r *WebhookRepository) MarkFailed(ctx context.Context, id uint64, workerID string, attempts int, reason, response string) error {
	return r.finish(ctx, id, workerID, "mark failed", map[string]any{
		"status":          config.WebhookFailed,
		"attempts":        attempts,
		"last_error":      reason,
		"last_response":   nullable(response),
		"next_attempt_at": nil,
		"locked_by":       nil,
		"locked_until":    nil,
	})
}

func (r *WebhookRepository) ScheduleRetry(ctx context.Context, id uint64, workerID string, attempts int, at time.Time, reason, response string) error {
	return r.finish(ctx, id, workerID, "schedule retry", map[string]any{
		"status":          config.WebhookPending,
		"attempts":        attempts,
		"last_error":      reason,
		"last_response":   nullable(response),
		"next_attempt_at": at,
		"locked_by":       nil,
		"locked_until":    nil,
	})
}

func (r *WebhookRepository) finish(ctx context.Context, id uint64, workerID, op string, cols map[string]any) error {
	res := r.db.WithContext(ctx).Model(&models.WebhookDelivery{}).
		Where("id = ? AND locked_by = ? AND status = ?", id, workerID, config.WebhookProcessing).
		Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("%s: %w", op, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%s webhook %d: %w", op, id, ErrLeaseLost)
	}
	return nil
}

func (r *WebhookRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(status = ? AND delivered_at < ?) OR (status = ? AND COALESCE(last_attempt_at, created_at) < ?)",
			config.WebhookDelivered, cutoff, config.WebhookFailed, cutoff).
		Delete(&models.WebhookDelivery{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup webhooks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
