package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/store"
	"github.com/willtech3/powertoken/internal/store/storetest"
)

func seedUser(t *testing.T, s store.Store, u *model.User) *model.User {
	t.Helper()
	ctx := context.Background()
	u, err := s.Users().Create(ctx, u)
	require.NoError(t, err)

	a, err := s.Activities().Create(ctx, &model.Activity{WCActID: "act-" + u.Username, Name: "a", Expiration: model.NeverExpires, UserID: u.ID})
	require.NoError(t, err)
	today := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	d, err := s.Days().Create(ctx, &model.Day{Date: today, UserID: u.ID})
	require.NoError(t, err)
	_, err = s.Events().Create(ctx, &model.Event{EID: "ev-" + u.Username, StartTime: today, EndTime: today.Add(time.Hour), DayID: d.ID, ActivityID: a.ID})
	require.NoError(t, err)
	_, err = s.Logs().Append(ctx, &model.Log{WCProgress: 0.5, FBStepCount: 500000, UserID: u.ID})
	require.NoError(t, err)
	return u
}

func TestSweep_RemovesIncompleteUsersWithoutOrphans(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewSQLite(t)

	complete := seedUser(t, s, &model.User{Username: "complete", WCID: "1", WCToken: "w", FBToken: "f"})
	noFitbit := seedUser(t, s, &model.User{Username: "nofitbit", WCID: "2", WCToken: "w"})

	rep, err := New(s, zerolog.Nop()).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Scanned)
	assert.Equal(t, []string{"nofitbit"}, rep.Deleted)

	_, err = s.Users().Get(ctx, noFitbit.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	for _, table := range []string{"activities", "days", "events", "logs", "sync_errors"} {
		var n int
		require.NoError(t, s.DB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+table+` WHERE `+ownerClause(table), noFitbit.ID).Scan(&n))
		assert.Zero(t, n, "orphans in %s", table)
	}

	_, err = s.Users().Get(ctx, complete.ID)
	assert.NoError(t, err)
	_, err = s.Events().GetByEID(ctx, "ev-complete")
	assert.NoError(t, err)
}

func ownerClause(table string) string {
	if table == "events" {
		return `day_id IN (SELECT id FROM days WHERE user_id=?)`
	}
	return `user_id=?`
}

func TestSweep_NothingToDo(t *testing.T) {
	s := storetest.NewSQLite(t)
	seedUser(t, s, &model.User{Username: "ok", WCID: "1", WCToken: "w", FBToken: "f"})

	rep, err := New(s, zerolog.Nop()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Deleted)
}

// failingStore fails the user delete so the sweep must roll back.
type failingStore struct {
	store.Store
}

func (f failingStore) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.WithTx(ctx, func(tx store.Store) error { return fn(failingStore{tx}) })
}

func (f failingStore) Users() store.Users { return failingUsers{f.Store.Users()} }

type failingUsers struct{ store.Users }

func (failingUsers) Delete(context.Context, int64) error { return errors.New("disk full") }

func TestSweep_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewSQLite(t)
	u := seedUser(t, s, &model.User{Username: "partial", WCID: "1"})

	_, err := New(failingStore{s}, zerolog.Nop()).Sweep(ctx)
	require.Error(t, err)

	_, err = s.Users().Get(ctx, u.ID)
	assert.NoError(t, err)
	_, err = s.Events().GetByEID(ctx, "ev-partial")
	assert.NoError(t, err, "child deletes must be rolled back too")
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s := storetest.NewSQLite(t)
	seedUser(t, s, &model.User{Username: "a", WCID: "1", WCToken: "w", FBToken: "f"})

	require.NoError(t, New(s, zerolog.Nop()).Purge(ctx))
	users, err := s.Users().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}
