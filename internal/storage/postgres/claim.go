package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// fallbackCandidates is how many eligible ids the portable claim path tries
// before reporting an empty queue.
const fallbackCandidates = 5

// queueSpec describes one lease-claimed table.
type queueSpec struct {
	table      string
	order      string
	pending    string
	processing string
	// scheduled adds the scheduled_at gate.
	scheduled bool
}

// claimer hands out one eligible row of a queue table at a time. A row is
// eligible when it is pending, or processing with an expired lease, and its
// next_attempt_at (and scheduled_at, if the table has one) has passed.
type claimer[T any] struct {
	db         *gorm.DB
	spec       queueSpec
	now        func() time.Time
	skipLocked bool
	log        *slog.Logger
}

func newClaimer[T any](db *gorm.DB, spec queueSpec, o repoOptions) *claimer[T] {
	return &claimer[T]{db: db, spec: spec, now: o.now, skipLocked: *o.skipLocked, log: o.log}
}

func (c *claimer[T]) eligible(now time.Time) (string, []any) {
	cond := "(status = ? OR (status = ? AND locked_until < ?)) AND (next_attempt_at IS NULL OR next_attempt_at <= ?)"
	args := []any{c.spec.pending, c.spec.processing, now, now}
	if c.spec.scheduled {
		cond += " AND (scheduled_at IS NULL OR scheduled_at <= ?)"
		args = append(args, now)
	}
	return cond, args
}

func (c *claimer[T]) leaseColumns(workerID string, lease time.Duration, now time.Time) map[string]any {
	return map[string]any{
		"status":          c.spec.processing,
		"locked_by":       workerID,
		"locked_until":    now.Add(lease),
		"last_attempt_at": now,
	}
}

// Claim leases the next eligible row to workerID. It returns (nil, nil) when
// nothing is eligible or every candidate was taken by a concurrent worker.
func (c *claimer[T]) Claim(ctx context.Context, workerID string, lease time.Duration) (*T, error) {
	now := c.now()

	if c.skipLocked {
		row, err := c.claimSkipLocked(ctx, workerID, lease, now)
		switch {
		case err == nil && row != nil:
			return row, nil
		case err != nil && !isUnsupportedSQL(err):
			return nil, fmt.Errorf("claim %s: %w", c.spec.table, err)
		case err != nil:
			c.log.Debug("skip locked claim unsupported, using fallback", "table", c.spec.table, "err", err)
		}
	}

	row, err := c.claimFallback(ctx, workerID, lease, now)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", c.spec.table, err)
	}
	return row, nil
}

func (c *claimer[T]) claimSkipLocked(ctx context.Context, workerID string, lease time.Duration, now time.Time) (*T, error) {
	var claimed *T

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cond, args := c.eligible(now)
		query := fmt.Sprintf(
			"SELECT id FROM %s WHERE %s ORDER BY %s LIMIT 1 FOR UPDATE SKIP LOCKED",
			c.spec.table, cond, c.spec.order,
		)

		var id uint64
		res := tx.Raw(query, args...).Scan(&id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.Table(c.spec.table).Where("id = ?", id).
			Updates(c.leaseColumns(workerID, lease, now)).Error; err != nil {
			return err
		}

		var row T
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			return err
		}
		claimed = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// claimFallback works on any dialect. The conditional UPDATE re-checks
// eligibility, so of two workers racing for one id only one sees a row change.
func (c *claimer[T]) claimFallback(ctx context.Context, workerID string, lease time.Duration, now time.Time) (*T, error) {
	db := c.db.WithContext(ctx)
	cond, args := c.eligible(now)

	var ids []uint64
	if err := db.Table(c.spec.table).
		Where(cond, args...).
		Order(c.spec.order).
		Limit(fallbackCandidates).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	for _, id := range ids {
		res := db.Table(c.spec.table).
			Where("id = ?", id).
			Where(cond, args...).
			Updates(c.leaseColumns(workerID, lease, now))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			c.log.Debug("claim race lost", "table", c.spec.table, "id", id)
			continue
		}

		var row T
		if err := db.Where("id = ?", id).Take(&row).Error; err != nil {
			return nil, err
		}
		return &row, nil
	}

	return nil, nil
}

// isUnsupportedSQL reports whether the database rejected the locking clause
// itself rather than failing for an operational reason.
func isUnsupportedSQL(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// syntax_error, feature_not_supported
		return pgErr.Code == "42601" || pgErr.Code == "0A000"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "syntax error") || strings.Contains(msg, "not supported")
}
