package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshu-sajeev/notifyqueue/internal/dto"
)

type NotificationServiceMock struct {
	mock.Mock
}

func (m *NotificationServiceMock) Enqueue(ctx context.Context, req *dto.NotificationCreateDTO) (uint64, error) {
	args := m.Called(ctx, req)
	id, _ := args.Get(0).(uint64)
	return id, args.Error(1)
}

func (m *NotificationServiceMock) Get(ctx context.Context, id uint64) (*dto.NotificationResponseDTO, error) {
	args := m.Called(ctx, id)

	resp, _ := args.Get(0).(*dto.NotificationResponseDTO)
	return resp, args.Error(1)
}

func (m *NotificationServiceMock) Stats(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)

	counts, _ := args.Get(0).(map[string]int64)
	return counts, args.Error(1)
}

func (m *NotificationServiceMock) EnqueueWebhook(ctx context.Context, req *dto.WebhookCreateDTO) (uint64, error) {
	args := m.Called(ctx, req)
	id, _ := args.Get(0).(uint64)
	return id, args.Error(1)
}
