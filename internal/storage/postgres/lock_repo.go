package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/joshu-sajeev/notifyqueue/internal/models"
)

// LockRepository manages named batch locks in worker_locks. A lock whose
// locked_until has passed is treated as abandoned and reaped on the next
// Acquire, so a crashed run never blocks later ones for longer than its TTL.
type LockRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLockRepository(db *gorm.DB, opts ...Option) *LockRepository {
	o := buildOptions(db, opts)
	return &LockRepository{db: db, now: o.now}
}

// Acquire takes the named lock for owner until now+ttl. It reports false
// without error when someone else holds a live lock.
func (r *LockRepository) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := r.now()
	db := r.db.WithContext(ctx)

	if err := db.Where("name = ? AND locked_until < ?", name, now).
		Delete(&models.WorkerLock{}).Error; err != nil {
		return false, fmt.Errorf("reap stale lock: %w", err)
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.WorkerLock{
		Name:        name,
		LockedBy:    owner,
		LockedUntil: now.Add(ttl),
		CreatedAt:   now,
	})
	if res.Error != nil {
		return false, fmt.Errorf("acquire lock: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Release drops the lock only if owner still holds it.
func (r *LockRepository) Release(ctx context.Context, name, owner string) error {
	if err := r.db.WithContext(ctx).
		Where("name = ? AND locked_by = ?", name, owner).
		Delete(&models.WorkerLock{}).Error; err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// Holder returns the current lock row, or (nil, nil) when the lock is free.
func (r *LockRepository) Holder(ctx context.Context, name string) (*models.WorkerLock, error) {
	var l models.WorkerLock
	err := r.db.WithContext(ctx).Take(&l, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lock holder: %w", err)
	}
	return &l, nil
}
