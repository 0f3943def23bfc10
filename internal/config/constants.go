package config

// Notification statuses. sent and failed are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
)

// Webhook delivery statuses.
const (
	WebhookPending    = "pending"
	WebhookProcessing = "processing"
	WebhookDelivered  = "delivered"
	WebhookFailed     = "failed"
)

const (
	ChannelEmail = "email"

	BackoffExponential = "exponential"
	BackoffTable       = "table"

	DefaultMaxRetries  = 6
	DefaultMaxAttempts = 6
)

var (
	AllowedChannels      = []string{ChannelEmail}
	NotificationStatuses = []string{StatusPending, StatusProcessing, StatusSent, StatusFailed}
)
