package notification

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joshu-sajeev/notifyqueue/common"
	"github.com/joshu-sajeev/notifyqueue/internal/dto"
	"github.com/joshu-sajeev/notifyqueue/middleware"
)

type Handler struct {
	service ServiceInterface
}

func NewHandler(s ServiceInterface) *Handler {
	return &Handler{service: s}
}

var _ HandlerInterface = (*Handler)(nil)

// Create enqueues a notification and answers 201 with its id.
func (h *Handler) Create(c *gin.Context) {
	var req dto.NotificationCreateDTO
	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	id, err := h.service.Enqueue(c.Request.Context(), &req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			reason := "invalid"
			if verr.Missing {
				reason = "missing"
			}
			err = common.NewAPIError(http.StatusBadRequest, verr.Error(), map[string]any{verr.Field: reason})
		} else if errors.Is(err, ErrInvalidPayload) {
			err = common.Errf(http.StatusBadRequest, "%s", err.Error())
		}
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, dto.EnqueuedDTO{ID: id})
}

func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.Error(common.Errf(http.StatusBadRequest, "invalid ID"))
		return
	}

	resp, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Stats(c *gin.Context) {
	counts, err := h.service.Stats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"counts": counts})
}

func (h *Handler) CreateWebhook(c *gin.Context) {
	var req dto.WebhookCreateDTO
	if !middleware.Bind(c, &req) {
		c.Abort()
		return
	}

	id, err := h.service.EnqueueWebhook(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		c.Abort()
		return
	}

	c.JSON(http.StatusCreated, dto.EnqueuedDTO{ID: id})
}
