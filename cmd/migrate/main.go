package main

import (
	"context"
	"fmt"
	"os"

	"github.com/openshelter/lending-engine/internal/config"
	"github.com/openshelter/lending-engine/internal/logging"
	"github.com/openshelter/lending-engine/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Database.Driver != config.DatabaseDriverPostgres {
		return fmt.Errorf("migrations need DATABASE_DRIVER=%s, got %q", config.DatabaseDriverPostgres, cfg.Database.Driver)
	}
	logger := logging.New(cfg.Logging).With("service", "lending-migrate")

	ctx := context.Background()
	db, err := repository.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := repository.Migrate(ctx, db, logger); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
