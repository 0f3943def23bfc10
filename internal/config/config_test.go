package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	original := envProcess
	defer func() { envProcess = original }()

	envProcess = func(ctx context.Context, v any, mus ...envconfig.Mutator) error {
		return envconfig.ProcessWith(ctx, &envconfig.Config{
			Target:   v,
			Lookuper: envconfig.MapLookuper(map[string]string{}),
		})
	}

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 50, cfg.WebhookBatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Lease)
	assert.Equal(t, "notification_worker", cfg.LockName)
	assert.Equal(t, 30*time.Minute, cfg.LockTTL)
	assert.Greater(t, cfg.LockTTL, cfg.MaxRunDuration())
	assert.True(t, cfg.SkipLocked)
	assert.Equal(t, BackoffExponential, cfg.BackoffStrategy)
	assert.Equal(t, 720*time.Hour, cfg.CleanupRetention)
	assert.False(t, cfg.CleanupSessions)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "opportunistic", cfg.SMTP.TLS)
	assert.Equal(t, 10*time.Second, cfg.Webhook.Timeout)
	assert.True(t, strings.Contains(cfg.WorkerID, ":"), "worker id should be host:pid, got %q", cfg.WorkerID)
}

func TestLoad_FromEnv(t *testing.T) {
	original := envProcess
	defer func() { envProcess = original }()

	env := map[string]string{
		"WORKER_ID":              "cron-1",
		"WORKER_BATCH_SIZE":      "10",
		"BACKOFF_STRATEGY":       "table",
		"CRYPTO_KEYS":            "1:YWFhYQ==,2:YmJiYg==",
		"CRYPTO_CURRENT_VERSION": "2",
		"SMTP_HOST":              "smtp.example.com",
		"SMTP_PORT":              "2525",
		"SMTP_TLS":               "mandatory",
		"WEBHOOK_SIGNING_SECRET": "shh",
		"WEBHOOK_TIMEOUT":        "3s",
	}
	envProcess = func(ctx context.Context, v any, mus ...envconfig.Mutator) error {
		return envconfig.ProcessWith(ctx, &envconfig.Config{
			Target:   v,
			Lookuper: envconfig.MapLookuper(env),
		})
	}

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "cron-1", cfg.WorkerID)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, BackoffTable, cfg.BackoffStrategy)
	assert.Equal(t, map[string]string{"1": "YWFhYQ==", "2": "YmJiYg=="}, cfg.CryptoKeys)
	assert.Equal(t, "2", cfg.CryptoCurrentVersion)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, "mandatory", cfg.SMTP.TLS)
	assert.Equal(t, "shh", cfg.Webhook.SigningSecret)
	assert.Equal(t, 3*time.Second, cfg.Webhook.Timeout)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name          string
		env           map[string]string
		processErr    error
		errorContains string
	}{
		{
			name:          "env processing fails",
			processErr:    errors.New("boom"),
			errorContains: "failed to process env config",
		},
		{
			name:          "unknown backoff strategy",
			env:           map[string]string{"BACKOFF_STRATEGY": "linear"},
			errorContains: "config validation failed",
		},
		{
			name:          "zero batch size",
			env:           map[string]string{"WORKER_BATCH_SIZE": "0"},
			errorContains: "config validation failed",
		},
		{
			name:          "bad log format",
			env:           map[string]string{"LOG_FORMAT": "xml"},
			errorContains: "config validation failed",
		},
		{
			name: "lock ttl shorter than a full batch",
			env: map[string]string{
				"WORKER_LOCK_TTL": "10m",
				"SMTP_TIMEOUT":    "15s",
				"WEBHOOK_TIMEOUT": "10s",
			},
			errorContains: "must exceed the longest possible run 20m50s",
		},
		{
			name:          "worker id too long",
			env:           map[string]string{"WORKER_ID": strings.Repeat("w", 151)},
			errorContains: "config validation failed",
		},
		{
			name:          "negative mail rate",
			env:           map[string]string{"MAIL_RATE_PER_SECOND": "-1"},
			errorContains: "config validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := envProcess
			defer func() { envProcess = original }()

			envProcess = func(ctx context.Context, v any, mus ...envconfig.Mutator) error {
				if tt.processErr != nil {
					return tt.processErr
				}
				return envconfig.ProcessWith(ctx, &envconfig.Config{
					Target:   v,
					Lookuper: envconfig.MapLookuper(tt.env),
				})
			}

			_, err := Load(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorContains)
		})
	}
}

func TestConfig_MaxRunDuration(t *testing.T) {
	cfg := Config{
		BatchSize:        10,
		WebhookBatchSize: 4,
		SMTP:             SMTPConfig{Timeout: 15 * time.Second},
		Webhook:          WebhookConfig{Timeout: 10 * time.Second},
	}
	assert.Equal(t, 190*time.Second, cfg.MaxRunDuration())
}

func TestDefaultWorkerID(t *testing.T) {
	id := DefaultWorkerID()
	assert.NotEmpty(t, id)
	assert.Contains(t, id, ":")
}
