package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Ledger    LedgerConfig
	Scheduler SchedulerConfig
	Logging   LoggingConfig
	Business  BusinessConfig
	Health    HealthConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Driver          string // postgres|memory
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
	Enabled  bool
}

type LedgerConfig struct {
	Mode    string // http|simulated
	URL     string
	Timeout time.Duration
}

type SchedulerConfig struct {
	DefaultSweepSpec string
	ReminderSpec     string
	Timezone         string
}

type LoggingConfig struct {
	Level  string
	Format string // text|json
}

type BusinessConfig struct {
	DefaultInterestRate      string
	PaymentIntervalDays      int
	MinReputationForApproval int
	DefaultGraceDays         int
	ReminderWindowDays       int
	MaxUpdateRetries         int
}

type HealthConfig struct {
	Timeout time.Duration
}

const (
	LedgerModeHTTP      = "http"
	LedgerModeSimulated = "simulated"

	DatabaseDriverPostgres = "postgres"
	DatabaseDriverMemory   = "memory"
)

// Load reads configuration from environment variables and files
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("ENV", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", "10s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "15s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("DATABASE_DRIVER", DatabaseDriverPostgres)
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "openshelter")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)
	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "10m")
	v.SetDefault("LEDGER_MODE", LedgerModeSimulated)
	v.SetDefault("LEDGER_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DEFAULT_INTEREST_RATE", "3.5")
	v.SetDefault("PAYMENT_INTERVAL_DAYS", 30)
	v.SetDefault("MIN_REPUTATION_FOR_APPROVAL", 0)
	v.SetDefault("DEFAULT_GRACE_DAYS", 30)
	v.SetDefault("REMINDER_WINDOW_DAYS", 3)
	v.SetDefault("MAX_UPDATE_RETRIES", 3)
	v.SetDefault("SCHEDULER_DEFAULT_SPEC", "0 0 0 * * *")
	v.SetDefault("SCHEDULER_REMINDER_SPEC", "0 0 9 * * *")
	v.SetDefault("SCHEDULER_TIMEZONE", "UTC")
	v.SetDefault("HEALTH_CHECK_TIMEOUT", "5s")

	// Read from environment variables
	v.AutomaticEnv()

	// Try to read from .env file (optional)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	// Don't fail if .env file doesn't exist
	_ = v.ReadInConfig()

	config := Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Host:            v.GetString("SERVER_HOST"),
			Env:             v.GetString("ENV"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("DATABASE_DRIVER")),
			URL:             v.GetString("DATABASE_URL"),
			Host:            v.GetString("DATABASE_HOST"),
			Port:            v.GetString("DATABASE_PORT"),
			Name:            v.GetString("DATABASE_NAME"),
			User:            v.GetString("DATABASE_USER"),
			Password:        v.GetString("DATABASE_PASSWORD"),
			SSLMode:         v.GetString("DATABASE_SSLMODE"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
			AutoMigrate:     v.GetBool("DATABASE_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			CacheTTL: v.GetDuration("CACHE_TTL"),
		},
		Ledger: LedgerConfig{
			Mode:    strings.ToLower(v.GetString("LEDGER_MODE")),
			URL:     v.GetString("LEDGER_URL"),
			Timeout: v.GetDuration("LEDGER_TIMEOUT"),
		},
		Scheduler: SchedulerConfig{
			DefaultSweepSpec: v.GetString("SCHEDULER_DEFAULT_SPEC"),
			ReminderSpec:     v.GetString("SCHEDULER_REMINDER_SPEC"),
			Timezone:         v.GetString("SCHEDULER_TIMEZONE"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Business: BusinessConfig{
			DefaultInterestRate:      v.GetString("DEFAULT_INTEREST_RATE"),
			PaymentIntervalDays:      v.GetInt("PAYMENT_INTERVAL_DAYS"),
			MinReputationForApproval: v.GetInt("MIN_REPUTATION_FOR_APPROVAL"),
			DefaultGraceDays:         v.GetInt("DEFAULT_GRACE_DAYS"),
			ReminderWindowDays:       v.GetInt("REMINDER_WINDOW_DAYS"),
			MaxUpdateRetries:         v.GetInt("MAX_UPDATE_RETRIES"),
		},
		Health: HealthConfig{
			Timeout: v.GetDuration("HEALTH_CHECK_TIMEOUT"),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with the built-in defaults, for tests and tools
// that do not read the environment.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080", Host: "0.0.0.0", Env: "development"},
		Database: DatabaseConfig{Driver: DatabaseDriverPostgres, Host: "localhost", Port: "5432", Name: "openshelter", User: "postgres", SSLMode: "disable"},
		Redis:    RedisConfig{CacheTTL: 10 * time.Minute},
		Ledger:   LedgerConfig{Mode: LedgerModeSimulated, Timeout: 30 * time.Second},
		Scheduler: SchedulerConfig{
			DefaultSweepSpec: "0 0 0 * * *",
			ReminderSpec:     "0 0 9 * * *",
			Timezone:         "UTC",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Business: BusinessConfig{
			DefaultInterestRate: "3.5",
			PaymentIntervalDays: 30,
			DefaultGraceDays:    30,
			ReminderWindowDays:  3,
			MaxUpdateRetries:    3,
		},
		Health: HealthConfig{Timeout: 5 * time.Second},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Database.Driver {
	case DatabaseDriverMemory:
	case DatabaseDriverPostgres:
		if c.Database.URL == "" && c.Database.Host == "" {
			return fmt.Errorf("DATABASE_URL or DATABASE_HOST is required")
		}
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q", DatabaseDriverPostgres, DatabaseDriverMemory)
	}

	if c.Business.PaymentIntervalDays <= 0 {
		return fmt.Errorf("PAYMENT_INTERVAL_DAYS must be greater than 0")
	}

	if c.Business.DefaultGraceDays < 0 {
		return fmt.Errorf("DEFAULT_GRACE_DAYS must not be negative")
	}

	if c.Business.MaxUpdateRetries <= 0 {
		return fmt.Errorf("MAX_UPDATE_RETRIES must be greater than 0")
	}

	// Validate interest rate
	rate, err := decimal.NewFromString(c.Business.DefaultInterestRate)
	if err != nil {
		return fmt.Errorf("DEFAULT_INTEREST_RATE must be a valid decimal: %w", err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("DEFAULT_INTEREST_RATE must not be negative")
	}

	switch c.Ledger.Mode {
	case LedgerModeSimulated:
	case LedgerModeHTTP:
		if c.Ledger.URL == "" {
			return fmt.Errorf("LEDGER_URL is required when LEDGER_MODE is http")
		}
	default:
		return fmt.Errorf("LEDGER_MODE must be %q or %q", LedgerModeHTTP, LedgerModeSimulated)
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be a positive duration")
	}

	return nil
}

// DSN builds the Postgres connection string, preferring DATABASE_URL when set.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     d.Name,
		RawQuery: "sslmode=" + d.SSLMode,
	}
	return u.String()
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// GetDefaultInterestRate returns the default interest rate as decimal
func (c *Config) GetDefaultInterestRate() decimal.Decimal {
	rate, _ := decimal.NewFromString(c.Business.DefaultInterestRate)
	return rate
}

// GetSchedulerLocation resolves the scheduler timezone, falling back to UTC.
func (c *Config) GetSchedulerLocation() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
