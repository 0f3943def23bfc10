package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/doyensec/safeurl"

	"github.com/joshu-sajeev/notifyqueue/internal/config"
	"github.com/joshu-sajeev/notifyqueue/internal/models"
)

const (
	HeaderTimestamp = "X-Notify-Timestamp"
	HeaderSignature = "X-Notify-Signature"
	HeaderDelivery  = "X-Notify-Delivery"
)

// maxResponseBytes is how much of a response body is kept in last_response.
const maxResponseBytes = 1024

type WebhookStore interface {
	Claim(ctx context.Context, workerID string, lease time.Duration) (*models.WebhookDelivery, error)
	MarkDelivered(ctx context.Context, id uint64, workerID string, attempts int, response string) error
	MarkFailed(ctx context.Context, id uint64, workerID string, attempts int, reason, response string) error
	ScheduleRetry(ctx context.Context, id uint64, workerID string, attempts int, at time.Time, reason, response string) error
}

// BuildSafeClient returns the production client: private and loopback
// addresses are refused and redirects are not followed.
func BuildSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetCheckRedirect(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}).
		Build()
	return safeurl.Client(cfg).Client
}

// BuildClient picks the safe client unless private targets are allowed.
func BuildClient(cfg config.WebhookConfig) *http.Client {
	if !cfg.AllowPrivate {
		return BuildSafeClient(cfg.Timeout)
	}
	return &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// WebhookProcessor POSTs one claimed delivery per call. attempts counts every
// try, and the delivery fails once it reaches max_attempts.
type WebhookProcessor struct {
	store  WebhookStore
	client *http.Client
	secret string
	cfg    ProcessorConfig
}

func NewWebhookProcessor(store WebhookStore, client *http.Client, signingSecret string, cfg ProcessorConfig) *WebhookProcessor {
	return &WebhookProcessor{
		store:  store,
		client: client,
		secret: signingSecret,
		cfg:    cfg.withDefaults(),
	}
}

func (p *WebhookProcessor) ProcessNext(ctx context.Context, owner string, log *slog.Logger) (Result, error) {
	d, err := p.store.Claim(ctx, owner, p.cfg.Lease)
	if err != nil {
		return Result{}, fmt.Errorf("claim webhook: %w", err)
	}
	if d == nil {
		return Result{}, nil
	}

	res := Result{Claimed: true, JobID: d.ID}
	log = log.With("webhook_id", d.ID, "target", d.TargetURL)

	attempts := d.Attempts + 1
	response, sendErr := p.post(ctx, d)

	switch {
	case sendErr == nil:
		res.Outcome = OutcomeSent
		err = p.store.MarkDelivered(ctx, d.ID, owner, attempts, response)

	case isPermanent(sendErr) || attempts >= d.MaxAttempts:
		res.Outcome = OutcomeFailed
		res.Cause = truncate(sendErr.Error(), maxErrorLen)
		err = p.store.MarkFailed(ctx, d.ID, owner, attempts, res.Cause, response)

	default:
		res.Outcome = OutcomeRetried
		res.Cause = truncate(sendErr.Error(), maxErrorLen)
		at := p.cfg.Now().Add(p.cfg.Policy.Delay(attempts))
		err = p.store.ScheduleRetry(ctx, d.ID, owner, attempts, at, res.Cause, response)
	}

	if leaseLost(err) {
		log.Warn("lease lost before outcome was recorded", "outcome", res.Outcome)
		res.Outcome = OutcomeLeaseLost
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("record webhook %d outcome: %w", d.ID, err)
	}

	switch res.Outcome {
	case OutcomeSent:
		log.Info("webhook delivered", "attempts", attempts)
	case OutcomeRetried:
		log.Warn("webhook will be retried", "attempts", attempts, "error", res.Cause)
	default:
		log.Error("webhook failed", "attempts", attempts, "error", res.Cause)
	}
	return res, nil
}

// post sends the payload and returns up to maxResponseBytes of the body.
// Network errors, 5xx, 408 and 429 are retried; other statuses are final.
func (p *WebhookProcessor) post(ctx context.Context, d *models.WebhookDelivery) (string, error) {
	u, err := url.Parse(d.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", permanent(fmt.Errorf("invalid target url %q", d.TargetURL))
	}

	body := []byte(d.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return "", permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderDelivery, strconv.FormatUint(d.ID, 10))

	if p.secret != "" {
		ts := strconv.FormatInt(p.cfg.Now().Unix(), 10)
		req.Header.Set(HeaderTimestamp, ts)
		req.Header.Set(HeaderSignature, Sign(p.secret, ts, body))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("webhook POST: %w", err)
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	response := truncate(string(snippet), maxResponseBytes)

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return response, nil
	case code >= 500, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return response, fmt.Errorf("webhook POST: unexpected status %d", code)
	default:
		return response, permanent(fmt.Errorf("webhook POST: rejected with status %d", code))
	}
}

// Sign computes the signature header value over "timestamp.body".
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
