package notification

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/joshu-sajeev/notifyqueue/internal/dto"
	"github.com/joshu-sajeev/notifyqueue/internal/models"
)

// RepoInterface is the producer side of the notifications table.
type RepoInterface interface {
	Enqueue(ctx context.Context, n *models.Notification) (uint64, error)
	FetchByID(ctx context.Context, id uint64) (*models.Notification, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// WebhookRepoInterface is the producer side of the webhook queue.
type WebhookRepoInterface interface {
	Enqueue(ctx context.Context, d *models.WebhookDelivery) (uint64, error)
}

// Encrypter seals secrets before they are written into a payload.
type Encrypter interface {
	Encrypt(plaintext []byte) (token, version string, err error)
}

// ServiceInterface defines the producer business logic.
type ServiceInterface interface {
	Enqueue(ctx context.Context, req *dto.NotificationCreateDTO) (uint64, error)
	Get(ctx context.Context, id uint64) (*dto.NotificationResponseDTO, error)
	Stats(ctx context.Context) (map[string]int64, error)
	EnqueueWebhook(ctx context.Context, req *dto.WebhookCreateDTO) (uint64, error)
}

// HandlerInterface defines the HTTP handlers.
type HandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Stats(c *gin.Context)
	CreateWebhook(c *gin.Context)
}
