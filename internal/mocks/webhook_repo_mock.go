package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/joshu-sajeev/notifyqueue/internal/models"
)

type WebhookRepoMock struct {
	mock.Mock
}

func (m *WebhookRepoMock) Enqueue(ctx context.Context, d *models.WebhookDelivery) (uint64, error) {
	args := m.Called(ctx, d)
	id, _ := args.Get(0).(uint64)
	return id, args.Error(1)
}

func (m *WebhookRepoMock) Claim(ctx context.Context, workerID string, lease time.Duration) (*models.WebhookDelivery, error) {
	args := m.Called(ctx, workerID, lease)

	d, _ := args.Get(0).(*models.WebhookDelivery)
	return d, args.Error(1)
}

func (m *WebhookRepoMock) MarkDelivered(ctx context.Context, id uint64, workerID string, attempts int, response string) error {
	args := m.Called(ctx, id, workerID, attempts, response)
	return args.Error(0)
}

func (m *WebhookRepoMock) MarkFailed(ctx context.Context, id uint64, workerID string, attempts int, reason, response string) error {
	args := m.Called(ctx, id, workerID, attempts, reason, response)
	return args.Error(0)
}

func (m *WebhookRepoMock) ScheduleRetry(ctx context.Context, id uint64, workerID string, attempts int, at time.Time, reason, response string) error {
	args := m.Called(ctx, id, workerID, attempts, at, reason, response)
	return args.Error(0)
}

func (m *WebhookRepoMock) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}
