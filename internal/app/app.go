// Package app assembles the storage, cache, ledger and service layers from
// configuration. Both the API server and the scheduler start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openshelter/lending-engine/internal/cache"
	"github.com/openshelter/lending-engine/internal/config"
	"github.com/openshelter/lending-engine/internal/ledger"
	"github.com/openshelter/lending-engine/internal/repository"
	"github.com/openshelter/lending-engine/internal/service"
	"github.com/redis/go-redis/v9"
)

type Services struct {
	Loans    *service.LoanService
	Payments *service.PaymentService
	Users    *service.UserService
	Visas    *service.VisaService
}

// App holds the live dependencies. DB and Redis are nil when the configuration
// disables them.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Ledger   ledger.Gateway
	Services Services
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	var (
		loans    repository.LoanRepository
		payments repository.PaymentRepository
		users    repository.UserRepository
		visas    repository.VisaRepository
	)

	switch cfg.Database.Driver {
	case config.DatabaseDriverMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		store := repository.NewMemoryStore()
		loans, payments, users, visas = store.Loans(), store.Payments(), store.Users(), store.Visas()
	default:
		db, err := repository.Connect(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.DB = db

		if cfg.Database.AutoMigrate {
			if err := repository.Migrate(ctx, db, logger); err != nil {
				_ = a.Close()
				return nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		loans = repository.NewLoanRepository(db)
		payments = repository.NewPaymentRepository(db)
		users = repository.NewUserRepository(db)
		visas = repository.NewVisaRepository(db)
	}

	var loanCache cache.LoanCache = cache.Noop{}
	if cfg.Redis.Enabled {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			// The cache is optional; reads fall through to the store.
			logger.Warn("redis unreachable, loan cache degraded", "error", err)
		}
		loanCache = cache.NewRedisLoanCache(a.Redis, cfg.Redis.CacheTTL)
	}

	switch cfg.Ledger.Mode {
	case config.LedgerModeHTTP:
		a.Ledger = ledger.NewHTTPGateway(cfg.Ledger.URL, cfg.Ledger.Timeout)
	default:
		logger.Warn("using simulated ledger")
		a.Ledger = ledger.NewSimulated()
	}

	a.Services = Services{
		Loans:    service.NewLoanService(loans, a.Ledger, loanCache, cfg, logger),
		Payments: service.NewPaymentService(loans, payments, a.Ledger, loanCache, cfg, logger),
		Users:    service.NewUserService(users, a.Ledger, logger),
		Visas:    service.NewVisaService(visas, a.Ledger, logger),
	}

	logger.Info("application initialised",
		"database_driver", cfg.Database.Driver,
		"redis_enabled", cfg.Redis.Enabled,
		"ledger_mode", cfg.Ledger.Mode,
	)
	return a, nil
}

// RedisCmdable returns the redis client as a health-checkable interface, or a
// true nil when redis is disabled.
func (a *App) RedisCmdable() redis.Cmdable {
	if a.Redis == nil {
		return nil
	}
	return a.Redis
}

func (a *App) Close() error {
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
