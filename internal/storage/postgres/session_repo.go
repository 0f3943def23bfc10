package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/joshu-sajeev/notifyqueue/internal/models"
)

type SessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSessionRepository(db *gorm.DB, opts ...Option) *SessionRepository {
	o := buildOptions(db, opts)
	return &SessionRepository{db: db, now: o.now}
}

// DeleteExpired removes sessions whose expires_at has passed.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", r.now()).
		Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
