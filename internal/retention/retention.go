// Package retention removes users that can no longer be synced, together
// with everything they own.
package retention

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/store"
)

// SweepReport lists the users removed by one sweep.
type SweepReport struct {
	Scanned int
	Deleted []string
}

// Sweeper deletes incomplete users.
type Sweeper struct {
	store store.Store
	log   zerolog.Logger
}

func New(s store.Store, log zerolog.Logger) *Sweeper {
	return &Sweeper{store: s, log: log.With().Str("component", "retention").Logger()}
}

// Sweep deletes every user missing a username, WEconnect id, WEconnect token
// or Fitbit token. Children go before parents and the whole sweep is one
// transaction: any failure leaves every user in place.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		rep = SweepReport{}
		users, err := tx.Users().List(ctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		rep.Scanned = len(users)
		for _, u := range users {
			if u.HasCredentials() {
				continue
			}
			if err := deleteUser(ctx, tx, u); err != nil {
				return fmt.Errorf("delete user %d: %w", u.ID, err)
			}
			rep.Deleted = append(rep.Deleted, u.Username)
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Msg("retention sweep rolled back")
		return SweepReport{}, err
	}
	if len(rep.Deleted) > 0 {
		s.log.Info().Int("scanned", rep.Scanned).Strs("deleted", rep.Deleted).Msg("retention sweep removed users")
	} else {
		s.log.Debug().Int("scanned", rep.Scanned).Msg("retention sweep found nothing to remove")
	}
	return rep, nil
}

// Purge removes every row of every table.
func (s *Sweeper) Purge(ctx context.Context) error {
	if err := s.store.Purge(ctx); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	s.log.Warn().Msg("all content purged")
	return nil
}

func deleteUser(ctx context.Context, tx store.Store, u *model.User) error {
	steps := []struct {
		what string
		fn   func(context.Context, int64) error
	}{
		{"events", tx.Events().DeleteByUser},
		{"days", tx.Days().DeleteByUser},
		{"activities", tx.Activities().DeleteByUser},
		{"logs", tx.Logs().DeleteByUser},
		{"sync errors", tx.SyncErrors().DeleteByUser},
		{"user", tx.Users().Delete},
	}
	for _, st := range steps {
		if err := st.fn(ctx, u.ID); err != nil {
			return fmt.Errorf("%s: %w", st.what, err)
		}
	}
	return nil
}
