package models

import "time"

// WorkerLock is a named batch lock. A row whose LockedUntil has passed is stale
// and may be reaped by the next acquirer.
type WorkerLock struct {
	Name        string    `gorm:"primaryKey;type:varchar(100)"`
	LockedBy    string    `gorm:"type:varchar(191);not null"`
	LockedUntil time.Time `gorm:"not null"`
	CreatedAt   time.Time
}

func (WorkerLock) TableName() string { return "worker_locks" }
