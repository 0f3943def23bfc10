package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Config holds the worker and API settings. Database settings live in
// postgres.Config so the storage package can load them on its own.
type Config struct {
	WorkerID         string        `env:"WORKER_ID" validate:"max=150"`
	BatchSize        int           `env:"WORKER_BATCH_SIZE,default=50" validate:"gte=1,lte=10000"`
	WebhookBatchSize int           `env:"WEBHOOK_BATCH_SIZE,default=50" validate:"gte=0,lte=10000"`
	Lease            time.Duration `env:"WORKER_LEASE,default=5m" validate:"gt=0"`
	LockName         string        `env:"WORKER_LOCK_NAME,default=notification_worker" validate:"required,max=100"`
	LockTTL          time.Duration `env:"WORKER_LOCK_TTL,default=30m" validate:"gt=0"`
	SkipLocked       bool          `env:"CLAIM_SKIP_LOCKED,default=true"`
	BackoffStrategy  string        `env:"BACKOFF_STRATEGY,default=exponential" validate:"oneof=exponential table"`
	CleanupRetention time.Duration `env:"CLEANUP_RETENTION,default=720h" validate:"gt=0"`
	CleanupSessions  bool          `env:"CLEANUP_SESSIONS,default=false"`

	CronToken string `env:"CRON_TOKEN"`
	HTTPAddr  string `env:"HTTP_ADDR,default=:8080"`

	LogLevel  string `env:"LOG_LEVEL,default=info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT,default=json" validate:"oneof=json text"`

	MailRatePerSecond float64 `env:"MAIL_RATE_PER_SECOND,default=0" validate:"gte=0"`

	// CryptoKeys maps a key version to a base64 encoded 32 byte key,
	// written as CRYPTO_KEYS=1:<key>,2:<key>.
	CryptoKeys           map[string]string `env:"CRYPTO_KEYS"`
	CryptoCurrentVersion string            `env:"CRYPTO_CURRENT_VERSION"`

	SMTP    SMTPConfig    `env:", prefix=SMTP_"`
	Webhook WebhookConfig `env:", prefix=WEBHOOK_"`
}

type SMTPConfig struct {
	Host     string        `env:"HOST,default=localhost"`
	Port     int           `env:"PORT,default=587" validate:"gte=1,lte=65535"`
	Username string        `env:"USERNAME"`
	Password string        `env:"PASSWORD"`
	From     string        `env:"FROM,default=no-reply@localhost" validate:"required"`
	FromName string        `env:"FROM_NAME,default=Book Shop"`
	TLS      string        `env:"TLS,default=opportunistic" validate:"oneof=mandatory opportunistic none"`
	Timeout  time.Duration `env:"TIMEOUT,default=15s" validate:"gt=0"`
}

type WebhookConfig struct {
	SigningSecret string        `env:"SIGNING_SECRET"`
	Timeout       time.Duration `env:"TIMEOUT,default=10s" validate:"gt=0"`
	// AllowPrivate lets deliveries reach loopback and private ranges. Local development only.
	AllowPrivate bool `env:"ALLOW_PRIVATE,default=false"`
}

// to help with testing
var envProcess = envconfig.Process

var validate = validator.New()

func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if cfg.WorkerID == "" {
		cfg.WorkerID = DefaultWorkerID()
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// the batch lock is not renewed during a run
	if worst := cfg.MaxRunDuration(); cfg.LockTTL <= worst {
		return nil, fmt.Errorf("config validation failed: WORKER_LOCK_TTL %s must exceed the longest possible run %s", cfg.LockTTL, worst)
	}

	return &cfg, nil
}

// MaxRunDuration is how long one full batch can take when every send runs
// into its timeout.
func (c *Config) MaxRunDuration() time.Duration {
	return time.Duration(c.BatchSize)*c.SMTP.Timeout +
		time.Duration(c.WebhookBatchSize)*c.Webhook.Timeout
}

// DefaultWorkerID identifies this process as host:pid.
func DefaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
