package models

import "time"

// Session is the storefront's login session row. The worker only ever deletes
// expired ones.
type Session struct {
	ID        string    `gorm:"primaryKey;type:varchar(128)"`
	UserID    *uint64   `gorm:"index"`
	Data      string    `gorm:"type:text"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}

func (Session) TableName() string { return "sessions" }

// All lists every model owned by this module, in migration order.
func All() []any {
	return []any{&Notification{}, &WebhookDelivery{}, &WorkerLock{}, &Session{}}
}
