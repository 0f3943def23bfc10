package dto

import "encoding/json"

type WebhookCreateDTO struct {
	TargetURL   string          `json:"target_url" validate:"required,url"`
	Payload     json.RawMessage `json:"payload" validate:"required"`
	MaxAttempts int             `json:"max_attempts" validate:"gte=0,lte=20"`
}
