package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joshu-sajeev/notifyqueue/common"
	"github.com/joshu-sajeev/notifyqueue/internal/worker"
)

type Runner interface {
	Run(ctx context.Context, limit int) (*worker.Summary, error)
}

type CronHandler struct {
	runner Runner
	log    *slog.Logger
}

func NewCronHandler(r Runner, log *slog.Logger) *CronHandler {
	return &CronHandler{runner: r, log: log}
}

// Run executes one batch and answers with its summary. Job failures are part
// of a normal run; only infrastructure failures turn the answer into a 500.
// The batch is detached from the request so a caller that hangs up does not
// cut it short.
func (h *CronHandler) Run(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.Error(common.Errf(http.StatusBadRequest, "invalid limit"))
			return
		}
		limit = n
	}

	sum, err := h.runner.Run(context.WithoutCancel(c.Request.Context()), limit)
	if err != nil {
		h.log.Error("cron run failed", "error", err)
		if sum == nil {
			c.Error(common.Errf(http.StatusInternalServerError, "run failed"))
			return
		}
		c.JSON(http.StatusInternalServerError, sum)
		return
	}

	c.JSON(http.StatusOK, sum)
}
