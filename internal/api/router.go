// Package api exposes the producer endpoints, the HTTP batch trigger, health
// and metrics over gin.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joshu-sajeev/notifyqueue/internal/notification"
	"github.com/joshu-sajeev/notifyqueue/middleware"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type RouterDeps struct {
	Notifications  notification.HandlerInterface
	Runner         Runner
	CronToken      string
	DB             Pinger
	RequestTimeout time.Duration
	Log            *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 10 * time.Second
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.ErrorHandler())

	r.GET("/healthz", healthz(deps.DB, deps.Log))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Notifications != nil {
		h := deps.Notifications
		api := r.Group("/", middleware.TimeoutMiddleware(deps.RequestTimeout))
		api.POST("/notifications", h.Create)
		api.GET("/notifications/stats", h.Stats)
		api.GET("/notifications/:id", h.Get)
		api.POST("/webhooks", h.CreateWebhook)
	}

	if deps.Runner != nil {
		cron := NewCronHandler(deps.Runner, deps.Log)
		guard := middleware.RequireToken(deps.CronToken)
		r.GET("/cron/run", guard, cron.Run)
		r.POST("/cron/run", guard, cron.Run)
	}

	return r
}

type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
}

// healthz answers 200 when the database answers a ping and 503 otherwise.
func healthz(db Pinger, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "degraded", DB: "unavailable"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			log.Warn("healthz: db ping failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, healthResponse{Status: "degraded", DB: "unavailable"})
			return
		}
		c.JSON(http.StatusOK, healthResponse{Status: "ok"})
	}
}
