package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/joshu-sajeev/notifyqueue/internal/api"
	"github.com/joshu-sajeev/notifyqueue/internal/config"
	"github.com/joshu-sajeev/notifyqueue/internal/crypto"
	"github.com/joshu-sajeev/notifyqueue/internal/logging"
	"github.com/joshu-sajeev/notifyqueue/internal/notification"
	"github.com/joshu-sajeev/notifyqueue/internal/storage/postgres"
	"github.com/joshu-sajeev/notifyqueue/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(log)

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		return err
	}
	db, err := postgres.ConnectDB(ctx, dbCfg)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	var crypt notification.Encrypter
	if len(cfg.CryptoKeys) > 0 {
		kr, err := crypto.NewKeyring(cfg.CryptoKeys, cfg.CryptoCurrentVersion)
		if err != nil {
			return fmt.Errorf("load keyring: %w", err)
		}
		crypt = kr
	}

	svc := notification.NewService(
		postgres.NewNotificationRepository(db),
		postgres.NewWebhookRepository(db),
		crypt,
	)

	driver, err := worker.Setup(cfg, db, log)
	if err != nil {
		return err
	}
	if cfg.CronToken == "" {
		log.Warn("CRON_TOKEN is empty, /cron/run will refuse every request")
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.RouterDeps{
		Notifications: notification.NewHandler(svc),
		Runner:        driver,
		CronToken:     cfg.CronToken,
		DB:            sqlDB,
		Log:           log,
	})

	// no WriteTimeout: /cron/run may legitimately take as long as a batch
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server started", "addr", cfg.HTTPAddr, "worker_id", cfg.WorkerID)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
