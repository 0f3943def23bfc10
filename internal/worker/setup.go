package worker

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/joshu-sajeev/notifyqueue/internal/config"
	"github.com/joshu-sajeev/notifyqueue/internal/crypto"
	"github.com/joshu-sajeev/notifyqueue/internal/logging"
	"github.com/joshu-sajeev/notifyqueue/internal/mailer"
	"github.com/joshu-sajeev/notifyqueue/internal/retry"
	"github.com/joshu-sajeev/notifyqueue/internal/storage/postgres"
)

// Setup wires a production Driver against db: postgres repositories, the
// SMTP mailer, the keyring and the safe webhook client.
func Setup(cfg *config.Config, db *gorm.DB, log *slog.Logger) (*Driver, error) {
	policy, err := retry.FromName(cfg.BackoffStrategy)
	if err != nil {
		return nil, err
	}

	renderer, err := mailer.NewTemplateRenderer()
	if err != nil {
		return nil, err
	}

	var keys Decrypter
	if len(cfg.CryptoKeys) > 0 {
		kr, err := crypto.NewKeyring(cfg.CryptoKeys, cfg.CryptoCurrentVersion)
		if err != nil {
			return nil, fmt.Errorf("load keyring: %w", err)
		}
		keys = kr
	}

	opts := []postgres.Option{postgres.WithLogger(log)}
	if !cfg.SkipLocked {
		opts = append(opts, postgres.WithSkipLocked(false))
	}

	notifications := postgres.NewNotificationRepository(db, opts...)
	webhooks := postgres.NewWebhookRepository(db, opts...)

	pcfg := ProcessorConfig{
		Lease:  cfg.Lease,
		Policy: policy,
	}

	mail := mailer.RateLimited(mailer.NewSMTPMailer(cfg.SMTP), cfg.MailRatePerSecond)

	return NewDriver(DriverConfig{
		WorkerID:         cfg.WorkerID,
		LockName:         cfg.LockName,
		LockTTL:          cfg.LockTTL,
		BatchSize:        cfg.BatchSize,
		WebhookBatchSize: cfg.WebhookBatchSize,
		CleanupRetention: cfg.CleanupRetention,
		CleanupSessions:  cfg.CleanupSessions,
		LogLevel:         logging.ParseLevel(cfg.LogLevel),
	}, DriverDeps{
		Locker:              postgres.NewLockRepository(db, opts...),
		Notifications:       NewNotificationProcessor(notifications, renderer, mail, keys, pcfg),
		Webhooks:            NewWebhookProcessor(webhooks, BuildClient(cfg.Webhook), cfg.Webhook.SigningSecret, pcfg),
		NotificationCleaner: notifications,
		WebhookCleaner:      webhooks,
		Sessions:            postgres.NewSessionRepository(db, opts...),
		Log:                 log,
	}), nil
}
