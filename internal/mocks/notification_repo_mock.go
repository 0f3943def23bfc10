package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/joshu-sajeev/notifyqueue/internal/models"
)

type NotificationRepoMock struct {
	mock.Mock
}

func (m *NotificationRepoMock) Enqueue(ctx context.Context, n *models.Notification) (uint64, error) {
	args := m.Called(ctx, n)
	id, _ := args.Get(0).(uint64)
	return id, args.Error(1)
}

func (m *NotificationRepoMock) FetchByID(ctx context.Context, id uint64) (*models.Notification, error) {
	args := m.Called(ctx, id)

	n, _ := args.Get(0).(*models.Notification)
	return n, args.Error(1)
}

func (m *NotificationRepoMock) CountByStatus(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)

	counts, _ := args.Get(0).(map[string]int64)
	return counts, args.Error(1)
}

func (m *NotificationRepoMock) Claim(ctx context.Context, workerID string, lease time.Duration) (*models.Notification, error) {
	args := m.Called(ctx, workerID, lease)

	n, _ := args.Get(0).(*models.Notification)
	return n, args.Error(1)
}

func (m *NotificationRepoMock) MarkSent(ctx context.Context, id uint64, workerID string) error {
	args := m.Called(ctx, id, workerID)
	return args.Error(0)
}

func (m *NotificationRepoMock) MarkFailed(ctx context.Context, id uint64, workerID string, retries int, reason string) error {
	args := m.Called(ctx, id, workerID, retries, reason)
	return args.Error(0)
}

func (m *NotificationRepoMock) ScheduleRetry(ctx context.Context, id uint64, workerID string, retries int, at time.Time, reason string) error {
	args := m.Called(ctx, id, workerID, retries, at, reason)
	return args.Error(0)
}

func (m *NotificationRepoMock) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}
