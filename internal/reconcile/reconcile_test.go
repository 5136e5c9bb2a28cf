package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/store/sqlstore"
	"github.com/willtech3/powertoken/internal/store/storetest"
	"github.com/willtech3/powertoken/internal/syncerr"
)

var testNow = time.Date(2024, time.March, 15, 15, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*sqlstore.Store, *clock.Mock, *model.User) {
	t.Helper()
	s := storetest.NewSQLite(t)
	u, err := s.Users().Create(context.Background(), &model.User{
		Username: "alice", WCID: "wc-1", WCToken: "wc-tok", FBToken: "fb-tok",
	})
	require.NoError(t, err)
	return s, clock.NewMock(testNow), u
}

func TestExpiration(t *testing.T) {
	start := time.Date(2024, time.March, 1, 18, 0, 0, 0, time.UTC)
	repeatEnd := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ext  model.ExternalActivity
		want time.Time
	}{
		{"one-off ends after duration", model.ExternalActivity{DateStart: start, Duration: 90, Repeat: "never"}, start.Add(90 * time.Minute)},
		{"repeat end wins over keyword", model.ExternalActivity{DateStart: start, Duration: 90, Repeat: "daily", RepeatEnd: &repeatEnd}, repeatEnd},
		{"repeat end wins over never", model.ExternalActivity{DateStart: start, Duration: 90, Repeat: "never", RepeatEnd: &repeatEnd}, repeatEnd},
		{"open-ended recurrence", model.ExternalActivity{DateStart: start, Duration: 90, Repeat: "weekly"}, model.NeverExpires},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(Expiration(tt.ext)), "got %v", Expiration(tt.ext))
		})
	}
}

func TestActivityReconciler_InsertThenIdempotent(t *testing.T) {
	ctx := context.Background()
	s, clk, u := setup(t)
	r := NewActivityReconciler(s, clk)

	ext := model.ExternalActivity{
		ActivityID:   "101",
		Name:         "AA meeting",
		DateStart:    time.Date(2024, time.March, 1, 18, 0, 0, 0, time.UTC),
		Duration:     60,
		Repeat:       "never",
		DateModified: testNow.Add(-72 * time.Hour),
	}

	st, err := r.Reconcile(ctx, ext, u)
	require.NoError(t, err)
	assert.Equal(t, Inserted, st)

	stored, err := s.Activities().GetByWCActID(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Weight)
	assert.Equal(t, u.ID, stored.UserID)
	assert.True(t, stored.Expiration.Equal(ext.DateStart.Add(time.Hour)))

	for i := 0; i < 2; i++ {
		ext.Name = "renamed but stale"
		st, err = r.Reconcile(ctx, ext, u)
		require.NoError(t, err)
		assert.Equal(t, Unchanged, st)
	}
	again, err := s.Activities().GetByWCActID(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, stored, again)
}

func TestActivityReconciler_RecentEditUpdates(t *testing.T) {
	ctx := context.Background()
	s, clk, u := setup(t)
	r := NewActivityReconciler(s, clk)

	ext := model.ExternalActivity{
		ActivityID:   "202",
		Name:         "Therapy",
		DateStart:    testNow.Add(-48 * time.Hour),
		Duration:     45,
		Repeat:       "weekly",
		DateModified: testNow.Add(-30 * time.Hour),
	}
	_, err := r.Reconcile(ctx, ext, u)
	require.NoError(t, err)

	repeatEnd := testNow.Add(30 * 24 * time.Hour)
	ext.Name = "Group therapy"
	ext.RepeatEnd = &repeatEnd
	ext.DateModified = testNow.Add(-2 * time.Hour)

	st, err := r.Reconcile(ctx, ext, u)
	require.NoError(t, err)
	assert.Equal(t, Updated, st)

	stored, err := s.Activities().GetByWCActID(ctx, "202")
	require.NoError(t, err)
	assert.Equal(t, "Group therapy", stored.Name)
	assert.True(t, stored.Expiration.Equal(repeatEnd))

	// The gate is relative to the clock, so the same record goes stale a day later.
	clk.Add(23 * time.Hour)
	st, err = r.Reconcile(ctx, ext, u)
	require.NoError(t, err)
	assert.Equal(t, Unchanged, st)
}

func TestActivityReconciler_ReconcileAll(t *testing.T) {
	ctx := context.Background()
	s, clk, u := setup(t)
	r := NewActivityReconciler(s, clk)

	exts := []model.ExternalActivity{
		{ActivityID: "1", Name: "a", DateStart: testNow, Duration: 10, Repeat: "never", DateModified: testNow},
		{ActivityID: "2", Name: "b", DateStart: testNow, Duration: 10, Repeat: "daily", DateModified: testNow.Add(-100 * time.Hour)},
	}
	rep, err := r.ReconcileAll(ctx, exts, u)
	require.NoError(t, err)
	assert.Equal(t, ActivityReport{Inserted: 2}, rep)

	rep, err = r.ReconcileAll(ctx, exts, u)
	require.NoError(t, err)
	assert.Equal(t, ActivityReport{Updated: 1, Unchanged: 1}, rep)

	_, err = r.Reconcile(ctx, model.ExternalActivity{}, u)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestActivityReconciler_ForeignOwnerIsConflict(t *testing.T) {
	ctx := context.Background()
	s, clk, alice := setup(t)
	bob, err := s.Users().Create(ctx, &model.User{Username: "bob", WCID: "wc-2", WCToken: "wc-tok2", FBToken: "fb-tok2"})
	require.NoError(t, err)
	r := NewActivityReconciler(s, clk)

	ext := model.ExternalActivity{ActivityID: "101", Name: "AA meeting", DateStart: testNow, Duration: 60, Repeat: "never", DateModified: testNow}
	st, err := r.Reconcile(ctx, ext, alice)
	require.NoError(t, err)
	require.Equal(t, Inserted, st)

	renamed := ext
	renamed.Name = "Renamed by bob"
	_, err = r.Reconcile(ctx, renamed, bob)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOwnedByOtherUser)
	assert.True(t, syncerr.Is(err, syncerr.DataConsistency))

	got, err := s.Activities().GetByWCActID(ctx, "101")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.UserID)
	assert.Equal(t, "AA meeting", got.Name)

	other := model.ExternalActivity{ActivityID: "102", Name: "Therapy", DateStart: testNow, Duration: 45, Repeat: "weekly", DateModified: testNow}
	rep, err := r.ReconcileAll(ctx, []model.ExternalActivity{renamed, other}, bob)
	require.NoError(t, err)
	assert.Equal(t, ActivityReport{Inserted: 1, Conflicts: []string{"101"}}, rep)
}

func TestEventReconciler_CreatesDayAndEvents(t *testing.T) {
	ctx := context.Background()
	s, clk, u := setup(t)
	_, err := NewActivityReconciler(s, clk).Reconcile(ctx, model.ExternalActivity{
		ActivityID: "101", Name: "Walk", DateStart: testNow, Duration: 30, Repeat: "daily", DateModified: testNow.Add(-72 * time.Hour),
	}, u)
	require.NoError(t, err)

	start := time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC)
	groups := []model.ExternalActivityEvents{{
		ActivityID:   "101",
		DateModified: testNow.Add(-72 * time.Hour),
		Events: []model.ExternalEvent{
			{EID: "e-1", DateStart: start, Duration: 30, DidCheckin: true},
			{EID: "e-2", DateStart: start.Add(6 * time.Hour), Duration: 30},
		},
	}}

	r := NewEventReconciler(s, clk)
	rep, err := r.ReconcileToday(ctx, u, groups)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Inserted)
	assert.Empty(t, rep.Missing)
	require.NotNil(t, rep.Day)
	assert.True(t, rep.Day.Date.Equal(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)))

	e1, err := s.Events().GetByEID(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, e1.Completed)
	assert.True(t, e1.EndTime.Equal(start.Add(30*time.Minute)))
	assert.Equal(t, rep.Day.ID, e1.DayID)

	// Second run with the same data writes nothing.
	rep2, err := r.ReconcileToday(ctx, u, groups)
	require.NoError(t, err)
	assert.Equal(t, 0, rep2.Inserted)
	assert.Equal(t, 0, rep2.Updated)
	assert.Equal(t, 2, rep2.Unchanged)
	assert.Equal(t, rep.Day.ID, rep2.Day.ID)

	days, err := s.Days().ListByUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, days, 1)
	evs, err := s.Events().ListByDay(ctx, rep.Day.ID)
	require.NoError(t, err)
	assert.Len(t, evs, 2)
}

func TestEventReconciler_RefreshOnlyWhenActivityRecent(t *testing.T) {
	ctx := context.Background()
	s, clk, u := setup(t)
	_, err := NewActivityReconciler(s, clk).Reconcile(ctx, model.ExternalActivity{
		ActivityID: "101", Name: "Walk", DateStart: testNow, Duration: 30, Repeat: "daily", DateModified: testNow,
	}, u)
	require.NoError(t, err)

	start := time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC)
	stale := []model.ExternalActivityEvents{{
		ActivityID:   "101",
		DateModified: testNow.Add(-48 * time.Hour),
		Events:       []model.ExternalEvent{{EID: "e-1", DateStart: start, Duration: 30}},
	}}
	r := NewEventReconciler(s, clk)
	_, err = r.ReconcileToday(ctx, u, stale)
	require.NoError(t, err)

	// Checked in, but the activity record is old: left untouched.
	stale[0].Events[0].DidCheckin = true
	rep, err := r.ReconcileToday(ctx, u, stale)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Unchanged)
	e, err := s.Events().GetByEID(ctx, "e-1")
	require.NoError(t, err)
	assert.False(t, e.Completed)

	recent := stale
	recent[0].DateModified = testNow.Add(-time.Hour)
	rep, err = r.ReconcileToday(ctx, u, recent)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	e, err = s.Events().GetByEID(ctx, "e-1")
	require.NoError(t, err)
	assert.True(t, e.Completed)
}

func TestEventReconciler_MissingActivityIsSkipped(t *testing.T) {
	ctx := context.Background()
	s, clk, u := setup(t)

	rep, err := NewEventReconciler(s, clk).ReconcileToday(ctx, u, []model.ExternalActivityEvents{{
		ActivityID: "ghost",
		Events:     []model.ExternalEvent{{EID: "e-x", DateStart: testNow, Duration: 10}},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, rep.Missing)
	assert.Zero(t, rep.Inserted)
	_, err = s.Events().GetByEID(ctx, "e-x")
	assert.ErrorIs(t, err, model.ErrNotFound)

	// The day is still created so the scorer has a bucket.
	_, err = s.Days().GetByDate(ctx, u.ID, testNow)
	assert.NoError(t, err)
}
