// Package reconcile upserts WEconnect activities and their daily events into
// local storage. Reconcilers are cheap to build and are normally constructed
// per user on a transaction-bound store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/store"
	"github.com/willtech3/powertoken/internal/syncerr"
)

// RecentWindow bounds how old an external modification may be and still
// trigger an in-place refresh.
const RecentWindow = 24 * time.Hour

// RepeatNever is the recurrence keyword of a one-off activity.
const RepeatNever = "never"

// ErrOwnedByOtherUser marks an external activity already stored for another user.
var ErrOwnedByOtherUser = errors.New("activity owned by another user")

// Status is the outcome of reconciling one record.
type Status int

const (
	Unchanged Status = iota
	Inserted
	Updated
)

func (s Status) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// ActivityReconciler mirrors external activity definitions into storage.
type ActivityReconciler struct {
	store store.Store
	clock clock.Clock
}

func NewActivityReconciler(s store.Store, c clock.Clock) *ActivityReconciler {
	return &ActivityReconciler{store: s, clock: c}
}

// Expiration derives when an activity stops recurring. An explicit repeat
// end wins over the recurrence keyword.
func Expiration(ext model.ExternalActivity) time.Time {
	end := ext.DateStart.Add(time.Duration(ext.Duration) * time.Minute)
	switch {
	case ext.RepeatEnd != nil:
		return *ext.RepeatEnd
	case ext.Repeat == RepeatNever:
		return end
	default:
		return model.NeverExpires
	}
}

// ModifiedRecently reports whether modified falls within RecentWindow of now.
func ModifiedRecently(modified, now time.Time) bool {
	return !modified.Before(now.Add(-RecentWindow))
}

// Reconcile inserts ext for user when unknown and refreshes its name and
// expiration when it was modified recently. An activity stored for another
// user is left untouched and reported as a DataConsistency error.
func (r *ActivityReconciler) Reconcile(ctx context.Context, ext model.ExternalActivity, user *model.User) (Status, error) {
	if ext.ActivityID == "" {
		return Unchanged, fmt.Errorf("activity without id: %w", model.ErrValidation)
	}
	expiration := Expiration(ext)

	existing, err := r.store.Activities().GetByWCActID(ctx, ext.ActivityID)
	if errors.Is(err, model.ErrNotFound) {
		_, err := r.store.Activities().Create(ctx, &model.Activity{
			WCActID:    ext.ActivityID,
			Name:       ext.Name,
			Expiration: expiration,
			Weight:     1,
			UserID:     user.ID,
		})
		if err != nil {
			return Unchanged, fmt.Errorf("insert activity %s: %w", ext.ActivityID, err)
		}
		return Inserted, nil
	}
	if err != nil {
		return Unchanged, fmt.Errorf("lookup activity %s: %w", ext.ActivityID, err)
	}
	if existing.UserID != user.ID {
		return Unchanged, &syncerr.Error{
			Kind: syncerr.DataConsistency,
			Op:   "reconcile.activity",
			User: user.Username,
			Err:  fmt.Errorf("activity %s held by user %d: %w", ext.ActivityID, existing.UserID, ErrOwnedByOtherUser),
		}
	}

	if !ModifiedRecently(ext.DateModified, r.clock.Now()) {
		return Unchanged, nil
	}
	existing.Name = ext.Name
	existing.Expiration = expiration
	if err := r.store.Activities().Update(ctx, existing); err != nil {
		return Unchanged, fmt.Errorf("update activity %s: %w", ext.ActivityID, err)
	}
	return Updated, nil
}

// ActivityReport counts the outcomes of ReconcileAll.
type ActivityReport struct {
	Inserted  int
	Updated   int
	Unchanged int
	// Conflicts lists external ids skipped because another user owns them.
	Conflicts []string
}

// ReconcileAll reconciles every record, skipping ownership conflicts and
// stopping at the first other failure.
func (r *ActivityReconciler) ReconcileAll(ctx context.Context, exts []model.ExternalActivity, user *model.User) (ActivityReport, error) {
	var rep ActivityReport
	for _, ext := range exts {
		st, err := r.Reconcile(ctx, ext, user)
		if errors.Is(err, ErrOwnedByOtherUser) {
			rep.Conflicts = append(rep.Conflicts, ext.ActivityID)
			continue
		}
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
	return rep, nil
}
