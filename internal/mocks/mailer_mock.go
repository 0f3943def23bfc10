package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/joshu-sajeev/notifyqueue/internal/mailer"
)

type MailerMock struct {
	mock.Mock
}

func (m *MailerMock) Send(ctx context.Context, msg *mailer.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
