package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/willtech3/powertoken/internal/config"
	"github.com/willtech3/powertoken/internal/store/postgres"
	"github.com/willtech3/powertoken/internal/store/sqlite"
	"github.com/willtech3/powertoken/internal/store/sqlstore"
)

// openStore connects to the configured database, retrying with exponential
// backoff for up to BootstrapTimeoutSeconds, and creates the schema.
func openStore(ctx context.Context, c *config.Config) (*sqlstore.Store, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxInterval = 5 * time.Second
	exp.MaxElapsedTime = time.Duration(c.BootstrapTimeoutSeconds) * time.Second
	if exp.MaxElapsedTime <= 0 {
		exp.MaxElapsedTime = 30 * time.Second
	}

	var st *sqlstore.Store
	op := func() error {
		var err error
		switch c.DBDriver {
		case "postgres":
			st, err = postgres.Bootstrap(ctx, c.PostgresDSN)
		case "sqlite":
			st, err = sqlite.OpenAndMigrate(ctx, c.SQLitePath)
		default:
			return backoff.Permanent(fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver))
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("db_driver", c.DBDriver).Dur("retry_in", wait).Msg("database not ready")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify); err != nil {
		return nil, fmt.Errorf("open %s store: %w", c.DBDriver, err)
	}
	log.Info().Str("db_driver", c.DBDriver).Msg("store ready")
	return st, nil
}
