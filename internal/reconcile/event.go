package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/store"
)

// EventReport summarizes one ReconcileToday call.
type EventReport struct {
	Day       *model.Day
	Inserted  int
	Updated   int
	Unchanged int
	// Missing lists external activity ids whose events were skipped because
	// the activity is not stored for the user.
	Missing []string
}

// EventReconciler mirrors today's occurrences into storage.
type EventReconciler struct {
	store store.Store
	clock clock.Clock
}

func NewEventReconciler(s store.Store, c clock.Clock) *EventReconciler {
	return &EventReconciler{store: s, clock: c}
}

// EnsureDay returns user's Day for date, creating it when absent.
func EnsureDay(ctx context.Context, s store.Store, userID int64, date time.Time) (*model.Day, error) {
	day, err := s.Days().GetByDate(ctx, userID, date)
	if err == nil {
		return day, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("lookup day: %w", err)
	}
	day, err = s.Days().Create(ctx, &model.Day{Date: model.Midnight(date), UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("create day: %w", err)
	}
	return day, nil
}

// ReconcileToday attaches the given occurrences to the user's Day for the
// clock's current date.
func (r *EventReconciler) ReconcileToday(ctx context.Context, user *model.User, groups []model.ExternalActivityEvents) (EventReport, error) {
	now := r.clock.Now()
	day, err := EnsureDay(ctx, r.store, user.ID, clock.Today(r.clock))
	if err != nil {
		return EventReport{}, err
	}
	rep := EventReport{Day: day}

	for _, g := range groups {
		act, err := r.store.Activities().GetForUser(ctx, user.ID, g.ActivityID)
		if errors.Is(err, model.ErrNotFound) {
			rep.Missing = append(rep.Missing, g.ActivityID)
			continue
		}
		if err != nil {
			return rep, fmt.Errorf("lookup activity %s: %w", g.ActivityID, err)
		}
		recent := ModifiedRecently(g.DateModified, now)

		for _, occ := range g.Events {
			st, err := r.reconcileEvent(ctx, occ, day, act, recent)
			if err != nil {
				return rep, err
			}
			switch st {
			case Inserted:
				rep.Inserted++
			case Updated:
				rep.Updated++
			default:
				rep.Unchanged++
			}
		}
	}
	return rep, nil
}

func (r *EventReconciler) reconcileEvent(ctx context.Context, occ model.ExternalEvent, day *model.Day, act *model.Activity, recent bool) (Status, error) {
	start := occ.DateStart
	end := start.Add(time.Duration(occ.Duration) * time.Minute)

	existing, err := r.store.Events().GetByEID(ctx, occ.EID)
	if errors.Is(err, model.ErrNotFound) {
		_, err := r.store.Events().Create(ctx, &model.Event{
			EID:        occ.EID,
			StartTime:  start,
			EndTime:    end,
			Completed:  occ.DidCheckin,
			DayID:      day.ID,
			ActivityID: act.ID,
		})
		if err != nil {
			return Unchanged, fmt.Errorf("insert event %s: %w", occ.EID, err)
		}
		return Inserted, nil
	}
	if err != nil {
		return Unchanged, fmt.Errorf("lookup event %s: %w", occ.EID, err)
	}
	if !recent {
		return Unchanged, nil
	}
	if existing.StartTime.Equal(start) && existing.EndTime.Equal(end) && existing.Completed == occ.DidCheckin {
		return Unchanged, nil
	}
	existing.StartTime = start
	existing.EndTime = end
	existing.Completed = occ.DidCheckin
	if err := r.store.Events().Update(ctx, existing); err != nil {
		return Unchanged, fmt.Errorf("update event %s: %w", occ.EID, err)
	}
	return Updated, nil
}
