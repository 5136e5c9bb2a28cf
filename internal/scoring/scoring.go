// Package scoring computes a Day's progress from its events and the
// completions carried over from the four preceding days.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/store"
)

// WindowDays is the length of the decay window, the scored day included.
const WindowDays = 5

// WindowScore sums the decayed contributions of completed weights.
// completed[k] holds the weights of events completed k days before the
// scored day. A weight w contributes fully at k=0 and w-k afterwards while
// w > k. Offsets beyond the window are ignored.
func WindowScore(completed [][]int) float64 {
	score := 0
	for k, weights := range completed {
		if k >= WindowDays {
			break
		}
		for _, w := range weights {
			switch {
			case k == 0:
				score += w
			case w > k:
				score += w - k
			}
		}
	}
	return float64(score)
}

// Progress turns a score into a fraction of possible, clamped to 1.0.
// A day with nothing scheduled has no progress.
func Progress(score float64, possible int) float64 {
	if possible == 0 {
		return 0
	}
	if score < float64(possible) {
		return score / float64(possible)
	}
	return 1.0
}

// Scorer reads events from a store.
type Scorer struct {
	store store.Store
	clock clock.Clock
}

func New(s store.Store, c clock.Clock) *Scorer {
	return &Scorer{store: s, clock: c}
}

// Possible is the total weight scheduled on day, completed or not.
func (s *Scorer) Possible(ctx context.Context, day *model.Day) (int, error) {
	evs, err := s.store.Events().ListByDay(ctx, day.ID)
	if err != nil {
		return 0, fmt.Errorf("list events of day %d: %w", day.ID, err)
	}
	total := 0
	for _, e := range evs {
		total += e.Weight
	}
	return total, nil
}

// Score returns the decay-window score of day together with its possible total.
func (s *Scorer) Score(ctx context.Context, day *model.Day) (float64, int, error) {
	completed := make([][]int, WindowDays)
	possible := 0
	for k := 0; k < WindowDays; k++ {
		d := day
		if k > 0 {
			prior, err := s.store.Days().GetByDate(ctx, day.UserID, day.Date.AddDate(0, 0, -k))
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			if err != nil {
				return 0, 0, fmt.Errorf("lookup day -%d: %w", k, err)
			}
			d = prior
		}
		evs, err := s.store.Events().ListByDay(ctx, d.ID)
		if err != nil {
			return 0, 0, fmt.Errorf("list events of day %d: %w", d.ID, err)
		}
		for _, e := range evs {
			if k == 0 {
				possible += e.Weight
			}
			if e.Completed {
				completed[k] = append(completed[k], e.Weight)
			}
		}
	}
	return WindowScore(completed), possible, nil
}

// DecayedProgress is the day's score as a fraction of its possible total.
func (s *Scorer) DecayedProgress(ctx context.Context, day *model.Day) (float64, error) {
	score, possible, err := s.Score(ctx, day)
	if err != nil {
		return 0, err
	}
	return Progress(score, possible), nil
}

// ProgressToday scores the user's Day for the clock's current date. A user
// with no Day yet has no progress.
func (s *Scorer) ProgressToday(ctx context.Context, user *model.User) (float64, error) {
	return s.ProgressOn(ctx, user, clock.Today(s.clock))
}

// ProgressOn scores the user's Day for the calendar date of date.
func (s *Scorer) ProgressOn(ctx context.Context, user *model.User, date time.Time) (float64, error) {
	day, err := s.store.Days().GetByDate(ctx, user.ID, date)
	if errors.Is(err, model.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.DecayedProgress(ctx, day)
}
