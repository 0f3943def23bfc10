package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookDelivery is one queued outbound HTTP POST.
type WebhookDelivery struct {
	ID            uint64         `gorm:"primaryKey;autoIncrement"`
	Payload       datatypes.JSON `gorm:"not null"`
	TargetURL     string         `gorm:"type:varchar(2048);not null"`
	Attempts      int            `gorm:"not null;default:0"`
	MaxAttempts   int            `gorm:"not null"`
	Status        string         `gorm:"type:varchar(20);not null;default:'pending';index"`
	NextAttemptAt *time.Time
	LockedBy      *string `gorm:"type:varchar(191)"`
	LockedUntil   *time.Time
	LastAttemptAt *time.Time
	LastError     *string `gorm:"type:text"`
	LastResponse  *string `gorm:"type:text"`
	CreatedAt     time.Time
	DeliveredAt   *time.Time
}

func (WebhookDelivery) TableName() string { return "webhook_queue" }
