package dto

import (
	"encoding/json"
	"time"
)

type NotificationCreateDTO struct {
	UserID      *uint64         `json:"user_id,omitempty"`
	Channel     string          `json:"channel"`
	Template    string          `json:"template"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
	Priority    int             `json:"priority" validate:"gte=-100,lte=100"`
	MaxRetries  int             `json:"max_retries" validate:"gte=0,lte=20"`
	ScheduledAt *time.Time      `json:"scheduled_at,omitempty"`
	// SecretToken is encrypted with the current key before it is stored.
	SecretToken string `json:"secret_token,omitempty"`
}

type NotificationResponseDTO struct {
	ID            uint64          `json:"id"`
	UserID        *uint64         `json:"user_id,omitempty"`
	Channel       string          `json:"channel"`
	Template      string          `json:"template"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status"`
	Priority      int             `json:"priority"`
	Retries       int             `json:"retries"`
	MaxRetries    int             `json:"max_retries"`
	ScheduledAt   *time.Time      `json:"scheduled_at,omitempty"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type EnqueuedDTO struct {
	ID uint64 `json:"id"`
}
