package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the sync worker.
// Environment variables are parsed with the POWERTOKEN_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// Storage
	DBDriver    string `envconfig:"DB_DRIVER" default:"sqlite"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"powertoken.db"`

	// External APIs
	WEconnectURL string        `envconfig:"WECONNECT_URL" default:"https://palalinq.herokuapp.com/api"`
	FitbitURL    string        `envconfig:"FITBIT_URL" default:"https://api.fitbit.com"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	APIRateLimit float64       `envconfig:"API_RATE_LIMIT" default:"5"` // requests per second per API
	StepGoal     int           `envconfig:"STEP_GOAL" default:"1000000"`

	// Scheduling
	PollInterval  time.Duration `envconfig:"POLL_INTERVAL" default:"60s"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`

	// Health and metrics listener; 0 disables it.
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	BootstrapTimeoutSeconds int `envconfig:"BOOTSTRAP_TIMEOUT_SECONDS" default:"30"`
}

// ResolveDefaults validates the driver selection and numeric knobs.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "", "auto":
		c.DBDriver = "sqlite"
		if c.PostgresDSN != "" {
			c.DBDriver = "postgres"
		}
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required when DB_DRIVER=postgres")
	}
	if c.DBDriver == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}
	if c.StepGoal <= 0 {
		return fmt.Errorf("STEP_GOAL must be > 0")
	}
	if c.APIRateLimit <= 0 {
		return fmt.Errorf("API_RATE_LIMIT must be > 0")
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Example: POWERTOKEN_DB_DRIVER=postgres POWERTOKEN_POSTGRES_DSN=postgres://...
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("POWERTOKEN", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("db_driver", cfg.DBDriver).
		Str("postgres_dsn_present", func() string {
			if cfg.PostgresDSN != "" {
				return "true"
			}
			return "false"
		}()).
		Str("weconnect_url", cfg.WEconnectURL).
		Str("fitbit_url", cfg.FitbitURL).
		Dur("poll_interval", cfg.PollInterval).
		Dur("sweep_interval", cfg.SweepInterval).
		Int("http_port", cfg.HTTPPort).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment:             EnvTesting,
		LogLevel:                "debug",
		DBDriver:                "sqlite",
		SQLitePath:              "powertoken-test.db",
		WEconnectURL:            "http://localhost:3000/api",
		FitbitURL:               "http://localhost:3001",
		HTTPTimeout:             5 * time.Second,
		APIRateLimit:            100,
		StepGoal:                1000000,
		PollInterval:            time.Minute,
		SweepInterval:           time.Hour,
		BootstrapTimeoutSeconds: 5,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the health/metrics listen address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
