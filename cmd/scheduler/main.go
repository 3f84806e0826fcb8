package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/openshelter/lending-engine/internal/app"
	"github.com/openshelter/lending-engine/internal/config"
	"github.com/openshelter/lending-engine/internal/logging"
	"github.com/openshelter/lending-engine/internal/scheduler"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	logger := logging.New(cfg.Logging).With("service", "lending-scheduler")
	logger.Info("starting loan scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error("close resources", "error", err)
		}
	}()

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.GetSchedulerLocation()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	jobs := scheduler.NewJobs(application.Services.Loans, cfg, logger)
	if err := jobs.Register(c); err != nil {
		return err
	}

	c.Start()
	logger.Info("scheduler started",
		"default_sweep", cfg.Scheduler.DefaultSweepSpec,
		"reminders", cfg.Scheduler.ReminderSpec,
		"timezone", cfg.Scheduler.Timezone,
	)

	<-ctx.Done()

	logger.Info("shutting down scheduler")
	// Wait for running jobs to finish
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
	return nil
}
