package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"time"

	"github.com/joshu-sajeev/notifyqueue/internal/crypto"
	"github.com/joshu-sajeev/notifyqueue/internal/mailer"
	"github.com/joshu-sajeev/notifyqueue/internal/models"
	"github.com/joshu-sajeev/notifyqueue/internal/notification"
)

// Vars keys that carry the sealed secret token.
const (
	varEncryptedToken = "encrypted_token"
	varKeyVersion     = "crypto_key_version"
)

// maxErrorLen bounds what is written to the error column.
const maxErrorLen = 1000

type NotificationStore interface {
	Claim(ctx context.Context, workerID string, lease time.Duration) (*models.Notification, error)
	MarkSent(ctx context.Context, id uint64, workerID string) error
	MarkFailed(ctx context.Context, id uint64, workerID string, retries int, reason string) error
	ScheduleRetry(ctx context.Context, id uint64, workerID string, retries int, at time.Time, reason string) error
}

type Renderer interface {
	Render(name string, data mailer.TemplateData) (*mailer.Message, error)
}

type Decrypter interface {
	Decrypt(version, token string) ([]byte, error)
}

// NotificationProcessor moves one claimed notification to sent, back to
// pending with a delay, or to failed.
type NotificationProcessor struct {
	store  NotificationStore
	render Renderer
	mail   mailer.Mailer
	keys   Decrypter
	cfg    ProcessorConfig
}

// NewNotificationProcessor builds a processor. keys may be nil when no
// payload carries a secret token.
func NewNotificationProcessor(store NotificationStore, render Renderer, mail mailer.Mailer, keys Decrypter, cfg ProcessorConfig) *NotificationProcessor {
	return &NotificationProcessor{
		store:  store,
		render: render,
		mail:   mail,
		keys:   keys,
		cfg:    cfg.withDefaults(),
	}
}

// ProcessNext claims and handles a single notification as owner. The returned
// error is only set for infrastructure failures, which should end the batch. Delivery
// problems are recorded on the row and reported through Result.
func (p *NotificationProcessor) ProcessNext(ctx context.Context, owner string, log *slog.Logger) (Result, error) {
	n, err := p.store.Claim(ctx, owner, p.cfg.Lease)
	if err != nil {
		return Result{}, fmt.Errorf("claim notification: %w", err)
	}
	if n == nil {
		return Result{}, nil
	}

	res := Result{Claimed: true, JobID: n.ID}
	log = log.With("notification_id", n.ID, "template", n.Template)

	sendErr := p.deliver(ctx, n)

	switch {
	case sendErr == nil:
		res.Outcome = OutcomeSent
		err = p.store.MarkSent(ctx, n.ID, owner)

	case isPermanent(sendErr):
		res.Outcome = OutcomeFailed
		res.Cause = truncate(sendErr.Error(), maxErrorLen)
		err = p.store.MarkFailed(ctx, n.ID, owner, n.Retries, res.Cause)

	case n.Retries < n.MaxRetries:
		res.Outcome = OutcomeRetried
		res.Cause = truncate(sendErr.Error(), maxErrorLen)
		retries := n.Retries + 1
		at := p.cfg.Now().Add(p.cfg.Policy.Delay(retries))
		err = p.store.ScheduleRetry(ctx, n.ID, owner, retries, at, res.Cause)

	default:
		res.Outcome = OutcomeFailed
		res.Cause = truncate(sendErr.Error(), maxErrorLen)
		err = p.store.MarkFailed(ctx, n.ID, owner, n.Retries+1, res.Cause)
	}

	if leaseLost(err) {
		log.Warn("lease lost before outcome was recorded", "outcome", res.Outcome)
		res.Outcome = OutcomeLeaseLost
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("record notification %d outcome: %w", n.ID, err)
	}

	switch res.Outcome {
	case OutcomeSent:
		log.Info("notification sent")
	case OutcomeRetried:
		log.Warn("notification will be retried", "retries", n.Retries+1, "error", res.Cause)
	default:
		log.Error("notification failed", "error", res.Cause)
	}
	return res, nil
}

// deliver runs decode, decrypt, render and send. Errors wrapped with
// permanent must not be retried.
func (p *NotificationProcessor) deliver(ctx context.Context, n *models.Notification) error {
	payload, err := notification.DecodeEmailPayload([]byte(n.Payload), n.Template)
	if err != nil {
		return permanent(err)
	}

	vars := maps.Clone(payload.Vars)
	if vars == nil {
		vars = map[string]any{}
	}

	var token string
	if sealed := varString(vars, varEncryptedToken); sealed != "" {
		version := varString(vars, varKeyVersion)
		if version == "" {
			return permanent(fmt.Errorf("decrypt token: missing %s", varKeyVersion))
		}
		plain, err := p.decrypt(version, sealed)
		if err != nil {
			return err
		}
		token = string(plain)
	}
	delete(vars, varEncryptedToken)
	delete(vars, varKeyVersion)

	msg, err := p.render.Render(payload.Template, mailer.TemplateData{
		To:      payload.To,
		Subject: payload.Subject,
		Vars:    vars,
		Token:   token,
	})
	if err != nil {
		return permanent(fmt.Errorf("render: %w", err))
	}

	if err := p.mail.Send(ctx, msg); err != nil {
		if errors.Is(err, mailer.ErrNoRecipient) {
			return permanent(err)
		}
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// decrypt opens the secret token. An unknown key version may be deployed
// later, so it is retried; a token that does not open never will.
func (p *NotificationProcessor) decrypt(version, sealed string) ([]byte, error) {
	if p.keys == nil {
		return nil, fmt.Errorf("decrypt token: %w", crypto.ErrUnknownKey)
	}
	plain, err := p.keys.Decrypt(version, sealed)
	switch {
	case err == nil:
		return plain, nil
	case errors.Is(err, crypto.ErrUnknownKey):
		return nil, fmt.Errorf("decrypt token: %w", err)
	default:
		return nil, permanent(fmt.Errorf("decrypt token: %w", err))
	}
}

// varString reads a vars entry as text. JSON numbers decode as float64, so
// "crypto_key_version": 3 is accepted as well as "3".
func varString(vars map[string]any, key string) string {
	switch v := vars[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
