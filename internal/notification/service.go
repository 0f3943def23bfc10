package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"

	"gorm.io/datatypes"

	"github.com/joshu-sajeev/notifyqueue/common"
	"github.com/joshu-sajeev/notifyqueue/internal/config"
	"github.com/joshu-sajeev/notifyqueue/internal/dto"
	"github.com/joshu-sajeev/notifyqueue/internal/models"
)

type Service struct {
	repo     RepoInterface
	webhooks WebhookRepoInterface
	crypt    Encrypter
}

// NewService wires the producer logic. webhooks and crypt may be nil, in which
// case webhook enqueueing and secret tokens are rejected.
func NewService(repo RepoInterface, webhooks WebhookRepoInterface, crypt Encrypter) *Service {
	return &Service{repo: repo, webhooks: webhooks, crypt: crypt}
}

var _ ServiceInterface = (*Service)(nil)

// Enqueue validates the payload, seals the optional secret token into
// vars.encrypted_token and stores a pending notification.
func (s *Service) Enqueue(ctx context.Context, req *dto.NotificationCreateDTO) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	channel := req.Channel
	if channel == "" {
		channel = config.ChannelEmail
	}
	if !slices.Contains(config.AllowedChannels, channel) {
		return 0, common.NewAPIError(
			http.StatusBadRequest,
			"invalid channel",
			map[string]any{
				"provided": channel,
				"allowed":  config.AllowedChannels,
			},
		)
	}

	if !json.Valid(req.Payload) {
		return 0, common.Errf(http.StatusBadRequest, "payload must be valid JSON")
	}

	payload, err := DecodeEmailPayload(req.Payload, req.Template)
	if err != nil {
		return 0, err
	}

	template := req.Template
	if template == "" {
		template = payload.Template
	}

	raw := []byte(req.Payload)
	if req.SecretToken != "" {
		if raw, err = s.sealToken(raw, req.SecretToken); err != nil {
			return 0, err
		}
	}

	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = config.DefaultMaxRetries
	}

	n := models.Notification{
		UserID:      req.UserID,
		Channel:     channel,
		Template:    template,
		Payload:     string(raw),
		Priority:    req.Priority,
		MaxRetries:  maxRetries,
		ScheduledAt: req.ScheduledAt,
	}

	id, err := s.repo.Enqueue(ctx, &n)
	if err != nil {
		return 0, storeError(err, "failed to enqueue notification")
	}
	return id, nil
}

func (s *Service) sealToken(raw []byte, secret string) ([]byte, error) {
	if s.crypt == nil {
		return nil, common.Errf(http.StatusServiceUnavailable, "payload encryption is not configured")
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, common.Errf(http.StatusBadRequest, "payload must be a JSON object")
	}
	vars, _ := doc["vars"].(map[string]any)
	if vars == nil {
		vars = map[string]any{}
	}

	token, version, err := s.crypt.Encrypt([]byte(secret))
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to encrypt secret token")
	}
	vars["encrypted_token"] = token
	vars["crypto_key_version"] = version
	doc["vars"] = vars

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to encode payload")
	}
	return out, nil
}

// Get returns one notification. The payload is returned as stored, so any
// secret token stays encrypted.
func (s *Service) Get(ctx context.Context, id uint64) (*dto.NotificationResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	n, err := s.repo.FetchByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "failed to get notification")
	}
	if n == nil {
		return nil, common.Errf(http.StatusNotFound, "notification not found")
	}

	resp := &dto.NotificationResponseDTO{
		ID:            n.ID,
		UserID:        n.UserID,
		Channel:       n.Channel,
		Template:      n.Template,
		Status:        n.Status,
		Priority:      n.Priority,
		Retries:       n.Retries,
		MaxRetries:    n.MaxRetries,
		ScheduledAt:   n.ScheduledAt,
		NextAttemptAt: n.NextAttemptAt,
		LastAttemptAt: n.LastAttemptAt,
		SentAt:        n.SentAt,
		CreatedAt:     n.CreatedAt,
	}
	if json.Valid([]byte(n.Payload)) {
		resp.Payload = json.RawMessage(n.Payload)
	} else {
		// stored by a misbehaving producer; return it as a JSON string
		resp.Payload, _ = json.Marshal(n.Payload)
	}
	if n.Error != nil {
		resp.Error = *n.Error
	}
	return resp, nil
}

func (s *Service) Stats(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request timed out")
	}

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, storeError(err, "failed to count notifications")
	}
	return counts, nil
}

func (s *Service) EnqueueWebhook(ctx context.Context, req *dto.WebhookCreateDTO) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}
	if s.webhooks == nil {
		return 0, common.Errf(http.StatusServiceUnavailable, "webhook queue is not configured")
	}

	u, err := url.Parse(req.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return 0, common.NewAPIError(http.StatusBadRequest, "invalid target_url", map[string]any{
			"target_url": "must be an absolute http or https URL",
		})
	}
	if !json.Valid(req.Payload) {
		return 0, common.Errf(http.StatusBadRequest, "payload must be valid JSON")
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = config.DefaultMaxAttempts
	}

	id, err := s.webhooks.Enqueue(ctx, &models.WebhookDelivery{
		Payload:     datatypes.JSON(req.Payload),
		TargetURL:   req.TargetURL,
		MaxAttempts: maxAttempts,
	})
	if err != nil {
		return 0, storeError(err, "failed to enqueue webhook")
	}
	return id, nil
}

func storeError(err error, msg string) error {
	switch {
	case errors.Is(err, context.Canceled):
		return common.Errf(http.StatusRequestTimeout, "request was canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return common.Errf(http.StatusRequestTimeout, "request timeout")
	default:
		return common.Errf(http.StatusInternalServerError, "%s", msg)
	}
}
