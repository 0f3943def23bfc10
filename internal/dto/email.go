package dto

// EmailPayload is the document stored in notifications.payload for the email channel.
type EmailPayload struct {
	To       string         `json:"to" validate:"required,email"`
	Subject  string         `json:"subject" validate:"required"`
	Template string         `json:"template" validate:"required"`
	Vars     map[string]any `json:"vars,omitempty"`
}
