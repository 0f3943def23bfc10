// Command worker drains the notification and webhook queues.
//
//	run      one batch, summary JSON on stdout (for cron)
//	loop     a batch every --interval until interrupted
//	migrate  apply the database migrations and exit
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/joshu-sajeev/notifyqueue/internal/config"
	"github.com/joshu-sajeev/notifyqueue/internal/logging"
	"github.com/joshu-sajeev/notifyqueue/internal/pool"
	"github.com/joshu-sajeev/notifyqueue/internal/storage/postgres"
	"github.com/joshu-sajeev/notifyqueue/internal/worker"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "worker",
		Short:         "Notification queue worker",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.AddCommand(runCmd(), loopCmd(), migrateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch and print its summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			driver, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			sum, err := driver.Run(cmd.Context(), limit)
			if perr := printSummary(cmd.OutOrStdout(), sum); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "jobs per queue, at most WORKER_BATCH_SIZE / WEBHOOK_BATCH_SIZE; 0 uses those")
	return cmd
}

func loopCmd() *cobra.Command {
	var (
		limit    int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "loop",
		Short: "Process a batch on every interval until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if interval <= 0 {
				return fmt.Errorf("--interval must be positive")
			}
			driver, cleanup, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			sched := pool.NewScheduler(interval, func(ctx context.Context) error {
				sum, err := driver.Run(ctx, limit)
				if perr := printSummary(out, sum); perr != nil {
					slog.Warn("print summary", "error", perr)
				}
				return err
			}, slog.Default())

			sched.Start()
			slog.Info("worker loop started", "interval", interval)
			<-cmd.Context().Done()
			sched.Stop()
			slog.Info("worker loop stopped")
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "jobs per queue per run")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between runs")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := loadConfig(ctx); err != nil {
				return err
			}

			dbCfg, err := postgres.LoadConfigFromEnv(ctx)
			if err != nil {
				return err
			}
			db, err := sql.Open("postgres", dbCfg.DSN())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			if err := postgres.Migrate(ctx, db); err != nil {
				return err
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr))
	return cfg, nil
}

// setup loads configuration, connects and wires a Driver. cleanup closes the
// database pool.
func setup(ctx context.Context) (*worker.Driver, func(), error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, err
	}

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		return nil, nil, err
	}
	db, err := postgres.ConnectDB(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql.DB: %w", err)
	}
	cleanup := func() { _ = sqlDB.Close() }

	driver, err := worker.Setup(cfg, db, slog.Default())
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return driver, cleanup, nil
}

func printSummary(w io.Writer, sum *worker.Summary) error {
	if sum == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
