package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/store"
)

// Run exercises a compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	s := makeStore(t)
	ctx := context.Background()

	suffix := uuid.New().String()[:8]
	now := time.Now().UTC().Truncate(time.Second)
	today := model.Midnight(now)

	// Users
	u, err := s.Users().Create(ctx, &model.User{Username: "alice-" + suffix})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == 0 || u.GoalPeriod != "daily" {
		t.Fatalf("CreateUser: got=%+v", u)
	}
	if got, err := s.Users().GetByUsername(ctx, u.Username); err != nil || got.ID != u.ID || got.HasCredentials() {
		t.Fatalf("GetUserByUsername: got=%+v err=%v", got, err)
	}
	if err := s.Users().UpdateWEconnect(ctx, u.ID, "wc-"+suffix, "tok-"+suffix, ""); err != nil {
		t.Fatalf("UpdateWEconnect: %v", err)
	}
	if err := s.Users().UpdateFitbit(ctx, u.ID, "fb-"+suffix); err != nil {
		t.Fatalf("UpdateFitbit: %v", err)
	}
	if got, err := s.Users().Get(ctx, u.ID); err != nil || !got.HasCredentials() || got.WCID != "wc-"+suffix {
		t.Fatalf("GetUser after onboarding: got=%+v err=%v", got, err)
	}
	if _, err := s.Users().Get(ctx, u.ID+1_000_000); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetUser missing: want ErrNotFound, got %v", err)
	}
	if lst, err := s.Users().List(ctx); err != nil || len(lst) == 0 {
		t.Fatalf("ListUsers: n=%d err=%v", len(lst), err)
	}

	// Activities
	a, err := s.Activities().Create(ctx, &model.Activity{WCActID: "act-" + suffix, Name: "Meeting", Expiration: model.NeverExpires, UserID: u.ID})
	if err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	if a.Weight != 1 {
		t.Fatalf("CreateActivity: default weight=%d", a.Weight)
	}
	got, err := s.Activities().GetByWCActID(ctx, a.WCActID)
	if err != nil || got.ID != a.ID || !got.Expiration.Equal(model.NeverExpires) {
		t.Fatalf("GetActivityByWCActID: got=%+v err=%v", got, err)
	}
	if _, err := s.Activities().GetForUser(ctx, u.ID+1_000_000, a.WCActID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetForUser other user: want ErrNotFound, got %v", err)
	}
	got.Name = "Group meeting"
	got.Weight = 3
	got.Expiration = now.Add(48 * time.Hour)
	if err := s.Activities().Update(ctx, got); err != nil {
		t.Fatalf("UpdateActivity: %v", err)
	}
	if upd, err := s.Activities().Get(ctx, a.ID); err != nil || upd.Name != "Group meeting" || upd.Weight != 3 || !upd.Expiration.Equal(now.Add(48*time.Hour)) {
		t.Fatalf("GetActivity after update: got=%+v err=%v", upd, err)
	}

	// Days
	d, err := s.Days().Create(ctx, &model.Day{Date: now, UserID: u.ID})
	if err != nil {
		t.Fatalf("CreateDay: %v", err)
	}
	if !d.Date.Equal(today) {
		t.Fatalf("CreateDay: date not truncated: %v", d.Date)
	}
	if _, err := s.Days().Create(ctx, &model.Day{Date: today, UserID: u.ID}); err == nil {
		t.Fatalf("CreateDay duplicate: expected unique violation")
	}
	if got, err := s.Days().GetByDate(ctx, u.ID, today.Add(13*time.Hour)); err != nil || got.ID != d.ID {
		t.Fatalf("GetDayByDate: got=%+v err=%v", got, err)
	}
	if _, err := s.Days().GetByDate(ctx, u.ID, today.AddDate(0, 0, -1)); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetDayByDate yesterday: want ErrNotFound, got %v", err)
	}
	if err := s.Days().UpdateProgress(ctx, d.ID, 0.5); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if lst, err := s.Days().ListByUser(ctx, u.ID); err != nil || len(lst) != 1 || lst[0].ComputedProgress != 0.5 {
		t.Fatalf("ListDays: got=%+v err=%v", lst, err)
	}

	// Events
	start := today.Add(9 * time.Hour)
	e1, err := s.Events().Create(ctx, &model.Event{EID: "e1-" + suffix, StartTime: start, EndTime: start.Add(time.Hour), DayID: d.ID, ActivityID: a.ID})
	if err != nil {
		t.Fatalf("CreateEvent e1: %v", err)
	}
	if _, err := s.Events().Create(ctx, &model.Event{EID: "e0-" + suffix, StartTime: start.Add(-2 * time.Hour), EndTime: start.Add(-time.Hour), Completed: true, DayID: d.ID, ActivityID: a.ID}); err != nil {
		t.Fatalf("CreateEvent e0: %v", err)
	}
	if _, err := s.Events().Create(ctx, &model.Event{EID: "bad-" + suffix, StartTime: start, EndTime: start.Add(-time.Minute), DayID: d.ID, ActivityID: a.ID}); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("CreateEvent end<start: want ErrValidation, got %v", err)
	}
	e1.Completed = true
	e1.EndTime = start.Add(90 * time.Minute)
	if err := s.Events().Update(ctx, e1); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}
	if got, err := s.Events().GetByEID(ctx, e1.EID); err != nil || !got.Completed || !got.EndTime.Equal(start.Add(90*time.Minute)) {
		t.Fatalf("GetEventByEID: got=%+v err=%v", got, err)
	}
	evs, err := s.Events().ListByDay(ctx, d.ID)
	if err != nil || len(evs) != 2 {
		t.Fatalf("ListEventsByDay: n=%d err=%v", len(evs), err)
	}
	if evs[0].EID != "e0-"+suffix || evs[0].Weight != 3 {
		t.Fatalf("ListEventsByDay: not ordered by start or missing weight: %+v", evs[0])
	}

	// Logs
	if _, err := s.Logs().Latest(ctx, u.ID, time.Time{}); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("LatestLog empty: want ErrNotFound, got %v", err)
	}
	if _, err := s.Logs().Append(ctx, &model.Log{Timestamp: today.Add(-time.Hour), WCProgress: 0.2, FBStepCount: 200000, UserID: u.ID}); err != nil {
		t.Fatalf("AppendLog yesterday: %v", err)
	}
	if _, err := s.Logs().Latest(ctx, u.ID, today); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("LatestLog since today: want ErrNotFound, got %v", err)
	}
	if _, err := s.Logs().Append(ctx, &model.Log{Timestamp: now, WCProgress: 0.5, FBStepCount: 500000, FBLogID: 9001, UserID: u.ID}); err != nil {
		t.Fatalf("AppendLog today: %v", err)
	}
	if l, err := s.Logs().Latest(ctx, u.ID, today); err != nil || l.WCProgress != 0.5 || l.FBStepCount != 500000 || l.FBLogID != 9001 {
		t.Fatalf("LatestLog: got=%+v err=%v", l, err)
	}
	if lst, err := s.Logs().ListByUser(ctx, u.ID, 0); err != nil || len(lst) != 2 || lst[0].WCProgress != 0.5 {
		t.Fatalf("ListLogs: got=%+v err=%v", lst, err)
	}

	// SyncErrors
	if _, err := s.SyncErrors().Append(ctx, &model.SyncError{Summary: "TransientFetch", Origin: "weconnect.activities", Message: "boom", UserID: u.ID}); err != nil {
		t.Fatalf("AppendSyncError: %v", err)
	}
	if lst, err := s.SyncErrors().ListByUser(ctx, u.ID, 10); err != nil || len(lst) != 1 || lst[0].Origin != "weconnect.activities" {
		t.Fatalf("ListSyncErrors: got=%+v err=%v", lst, err)
	}

	// WithTx rolls back on error
	sentinel := errors.New("abort")
	err = s.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Days().UpdateProgress(ctx, d.ID, 0.9); err != nil {
			return err
		}
		if _, err := tx.Users().Create(ctx, &model.User{Username: "ghost-" + suffix}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("WithTx: want sentinel, got %v", err)
	}
	if got, err := s.Days().GetByDate(ctx, u.ID, today); err != nil || got.ComputedProgress != 0.5 {
		t.Fatalf("WithTx rollback: day=%+v err=%v", got, err)
	}
	if _, err := s.Users().GetByUsername(ctx, "ghost-"+suffix); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("WithTx rollback: ghost user persisted: %v", err)
	}

	// WithTx commits on success
	err = s.WithTx(ctx, func(tx store.Store) error {
		return tx.Days().UpdateProgress(ctx, d.ID, 0.75)
	})
	if err != nil {
		t.Fatalf("WithTx commit: %v", err)
	}
	if got, err := s.Days().GetByDate(ctx, u.ID, today); err != nil || got.ComputedProgress != 0.75 {
		t.Fatalf("WithTx commit: day=%+v err=%v", got, err)
	}

	// Child-before-parent deletion leaves no orphans
	err = s.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Events().DeleteByUser(ctx, u.ID); err != nil {
			return err
		}
		if err := tx.Days().DeleteByUser(ctx, u.ID); err != nil {
			return err
		}
		if err := tx.Activities().DeleteByUser(ctx, u.ID); err != nil {
			return err
		}
		if err := tx.Logs().DeleteByUser(ctx, u.ID); err != nil {
			return err
		}
		if err := tx.SyncErrors().DeleteByUser(ctx, u.ID); err != nil {
			return err
		}
		return tx.Users().Delete(ctx, u.ID)
	})
	if err != nil {
		t.Fatalf("delete user tree: %v", err)
	}
	if _, err := s.Events().GetByEID(ctx, e1.EID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("event survived user deletion: %v", err)
	}
	if _, err := s.Activities().GetByWCActID(ctx, a.WCActID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("activity survived user deletion: %v", err)
	}

	// Purge empties everything
	v, err := s.Users().Create(ctx, &model.User{Username: "bob-" + suffix})
	if err != nil {
		t.Fatalf("CreateUser bob: %v", err)
	}
	if _, err := s.Days().Create(ctx, &model.Day{Date: today, UserID: v.ID}); err != nil {
		t.Fatalf("CreateDay bob: %v", err)
	}
	if err := s.Purge(ctx); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if lst, err := s.Users().List(ctx); err != nil || len(lst) != 0 {
		t.Fatalf("Purge left users: n=%d err=%v", len(lst), err)
	}
}
