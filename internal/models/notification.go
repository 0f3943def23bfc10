package models

import "time"

// Notification is one queued outbound message. Payload is kept as raw text so a
// producer bug that stores malformed JSON is still readable by the worker.
type Notification struct {
	ID            uint64     `gorm:"primaryKey;autoIncrement"`
	UserID        *uint64    `gorm:"index"`
	Channel       string     `gorm:"type:varchar(32);not null;default:'email'"`
	Template      string     `gorm:"type:varchar(100);not null"`
	Payload       string     `gorm:"type:text;not null"`
	Status        string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_notifications_claim,priority:1"`
	Priority      int        `gorm:"not null;default:0"`
	Retries       int        `gorm:"not null;default:0"`
	MaxRetries    int        `gorm:"not null"`
	ScheduledAt   *time.Time `gorm:"index:idx_notifications_claim,priority:2"`
	NextAttemptAt *time.Time `gorm:"index:idx_notifications_claim,priority:3"`
	LockedBy      *string    `gorm:"type:varchar(191)"`
	LockedUntil   *time.Time
	LastAttemptAt *time.Time
	SentAt        *time.Time
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (Notification) TableName() string { return "notifications" }
