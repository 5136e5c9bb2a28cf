// Package syncloop drives the reconcile, score and push cycle for every user.
//
// The loop alternates between two states. While Polling it processes users
// one at a time, each inside its own transaction; while Idle it waits one
// poll interval on the injected clock. Cancellation is observed only
// between passes so no user is left half reconciled.
package syncloop

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/willtech3/powertoken/internal/clock"
	"github.com/willtech3/powertoken/internal/metrics"
	"github.com/willtech3/powertoken/internal/model"
	"github.com/willtech3/powertoken/internal/reconcile"
	"github.com/willtech3/powertoken/internal/retention"
	"github.com/willtech3/powertoken/internal/scoring"
	"github.com/willtech3/powertoken/internal/store"
	"github.com/willtech3/powertoken/internal/syncerr"
)

// ActivitySource reads a user's activities and daily occurrences.
type ActivitySource interface {
	Activities(ctx context.Context, user *model.User) ([]model.ExternalActivity, error)
	EventsOn(ctx context.Context, user *model.User, day time.Time) ([]model.ExternalActivityEvents, error)
}

// RewardSink receives progress for a user.
type RewardSink interface {
	SetGoal(ctx context.Context, user *model.User) error
	// Update posts progress in [0,1], replacing the entry previously logged
	// as replace (0 for none), and returns the step count and new entry id.
	Update(ctx context.Context, user *model.User, progress float64, replace int64) (int, int64, error)
}

// Sweeper removes users that cannot be synced.
type Sweeper interface {
	Sweep(ctx context.Context) (retention.SweepReport, error)
}

// State is the loop's position in its Idle/Polling cycle.
type State int32

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Config controls the loop cadence.
type Config struct {
	PollInterval  time.Duration
	SweepInterval time.Duration // 0 disables sweeping
}

// ErrMissingCredentials marks a user that has not finished onboarding.
var ErrMissingCredentials = errors.New("missing WEconnect or Fitbit credentials")

// UserResult is the outcome of syncing one user.
type UserResult struct {
	Username string
	Outcome  string // one of the metrics.Outcome* values
	Progress float64
	Steps    int
	Err      error
}

// CycleReport describes one pass.
type CycleReport struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	Users    []UserResult
	Swept    []string
	Err      error
}

// Loop is the sync worker.
type Loop struct {
	store   store.Store
	source  ActivitySource
	sink    RewardSink
	sweeper Sweeper
	clock   clock.Clock
	cfg     Config
	log     zerolog.Logger

	state     atomic.Int32
	lastPass  atomic.Int64 // unix nanos of the last finished pass
	lastSweep time.Time
}

// New constructs a Loop from dependencies.
func New(s store.Store, src ActivitySource, sink RewardSink, c clock.Clock, cfg Config, log zerolog.Logger) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	return &Loop{
		store:  s,
		source: src,
		sink:   sink,
		clock:  c,
		cfg:    cfg,
		log:    log.With().Str("component", "syncloop").Logger(),
	}
}

// WithSweeper schedules sw every SweepInterval at a pass boundary.
func (l *Loop) WithSweeper(sw Sweeper) *Loop {
	l.sweeper = sw
	return l
}

// State reports whether a pass is in progress.
func (l *Loop) State() State { return State(l.state.Load()) }

// Run polls until ctx is canceled. A pass already under way always finishes.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info().Dur("interval", l.cfg.PollInterval).Dur("sweep_interval", l.cfg.SweepInterval).Msg("sync loop starting")
	for {
		if err := ctx.Err(); err != nil {
			l.log.Info().Msg("sync loop stopping")
			return err
		}

		rep := l.RunOnce(context.WithoutCancel(ctx))
		l.logCycle(rep)

		select {
		case <-ctx.Done():
			l.log.Info().Msg("sync loop stopping")
			return ctx.Err()
		case <-l.clock.After(l.cfg.PollInterval):
		}
	}
}

// RunOnce performs one pass over every user and, when due, a retention sweep.
func (l *Loop) RunOnce(ctx context.Context) CycleReport {
	l.state.Store(int32(Polling))
	defer l.state.Store(int32(Idle))

	rep := CycleReport{ID: uuid.NewString(), Started: l.clock.Now()}
	log := l.log.With().Str("cycle", rep.ID).Logger()

	users, err := l.store.Users().List(ctx)
	if err != nil {
		rep.Err = fmt.Errorf("list users: %w", err)
		log.Error().Err(err).Msg("cannot list users")
	}
	for _, u := range users {
		res := l.syncUser(ctx, log, u)
		metrics.UserOutcomesTotal.WithLabelValues(res.Outcome).Inc()
		rep.Users = append(rep.Users, res)
	}

	if swept, ok := l.maybeSweep(ctx, log); ok {
		rep.Swept = swept
	}

	rep.Duration = l.clock.Now().Sub(rep.Started)
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(rep.Duration.Seconds())
	l.lastPass.Store(l.clock.Now().UnixNano())
	return rep
}

func (l *Loop) syncUser(ctx context.Context, log zerolog.Logger, u *model.User) UserResult {
	res := UserResult{Username: u.Username}
	ulog := log.With().Str("user", u.Username).Logger()

	if !u.HasCredentials() {
		res.Outcome = metrics.OutcomeSkipped
		res.Err = &syncerr.Error{Kind: syncerr.Configuration, Op: "syncloop.credentials", User: u.Username, Err: ErrMissingCredentials}
		metrics.SyncErrorsTotal.WithLabelValues(syncerr.Configuration.String()).Inc()
		ulog.Debug().Err(res.Err).Msg("user skipped")
		return res
	}

	today := clock.Today(l.clock)
	acts, err := l.source.Activities(ctx, u)
	if err != nil {
		return l.fail(ctx, ulog, u, res, err)
	}
	groups, err := l.source.EventsOn(ctx, u, today)
	if err != nil {
		return l.fail(ctx, ulog, u, res, err)
	}

	pushed := false
	err = l.store.WithTx(ctx, func(tx store.Store) error {
		actRep, err := reconcile.NewActivityReconciler(tx, l.clock).ReconcileAll(ctx, acts, u)
		if err != nil {
			return err
		}
		for _, id := range actRep.Conflicts {
			metrics.SyncErrorsTotal.WithLabelValues(syncerr.DataConsistency.String()).Inc()
			ulog.Warn().Str("activity", id).Msg("activity skipped: owned by another user")
		}
		evRep, err := reconcile.NewEventReconciler(tx, l.clock).ReconcileToday(ctx, u, groups)
		if err != nil {
			return err
		}
		for _, id := range evRep.Missing {
			metrics.SyncErrorsTotal.WithLabelValues(syncerr.DataConsistency.String()).Inc()
			ulog.Warn().Str("activity", id).Msg("events skipped: activity not reconciled")
		}

		progress, err := scoring.New(tx, l.clock).DecayedProgress(ctx, evRep.Day)
		if err != nil {
			return err
		}
		res.Progress = progress
		if err := tx.Days().UpdateProgress(ctx, evRep.Day.ID, progress); err != nil {
			return err
		}

		var replace int64
		last, err := tx.Logs().Latest(ctx, u.ID, today)
		switch {
		case errors.Is(err, model.ErrNotFound):
		case err != nil:
			return err
		case last.WCProgress == progress:
			return nil
		default:
			replace = last.FBLogID
		}

		if _, err := tx.Logs().Latest(ctx, u.ID, time.Time{}); errors.Is(err, model.ErrNotFound) {
			if err := l.sink.SetGoal(ctx, u); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		steps, logID, err := l.sink.Update(ctx, u, progress, replace)
		if err != nil {
			return err
		}
		res.Steps = steps
		if _, err := tx.Logs().Append(ctx, &model.Log{
			Timestamp:   l.clock.Now(),
			WCProgress:  progress,
			FBStepCount: steps,
			FBLogID:     logID,
			UserID:      u.ID,
		}); err != nil {
			return err
		}
		pushed = true
		return nil
	})
	if err != nil {
		return l.fail(ctx, ulog, u, res, err)
	}

	if pushed {
		metrics.RewardPushesTotal.Inc()
		res.Outcome = metrics.OutcomeSynced
		ulog.Info().Float64("progress", res.Progress).Int("steps", res.Steps).Msg("progress pushed")
	} else {
		res.Outcome = metrics.OutcomeUnchanged
		ulog.Debug().Float64("progress", res.Progress).Msg("progress unchanged")
	}
	return res
}

// fail classifies err, records it for u and returns the failed result.
func (l *Loop) fail(ctx context.Context, log zerolog.Logger, u *model.User, res UserResult, err error) UserResult {
	var se *syncerr.Error
	if !errors.As(err, &se) {
		se = &syncerr.Error{Kind: syncerr.Persistence, Op: "store.tx", Err: err}
		err = se
	}
	if se.User == "" {
		se.User = u.Username
	}
	res.Outcome = metrics.OutcomeFailed
	res.Err = err
	metrics.SyncErrorsTotal.WithLabelValues(se.Kind.String()).Inc()
	log.Error().Err(err).Str("kind", se.Kind.String()).Msg("user sync failed")

	if _, rerr := l.store.SyncErrors().Append(ctx, &model.SyncError{
		Timestamp: l.clock.Now(),
		Summary:   se.Kind.String(),
		Origin:    se.Op,
		Message:   err.Error(),
		UserID:    u.ID,
	}); rerr != nil {
		log.Error().Err(rerr).Msg("cannot record sync error")
	}
	return res
}

func (l *Loop) maybeSweep(ctx context.Context, log zerolog.Logger) ([]string, bool) {
	if l.sweeper == nil || l.cfg.SweepInterval <= 0 {
		return nil, false
	}
	now := l.clock.Now()
	if l.lastSweep.IsZero() {
		l.lastSweep = now
		return nil, false
	}
	if now.Sub(l.lastSweep) < l.cfg.SweepInterval {
		return nil, false
	}
	l.lastSweep = now
	rep, err := l.sweeper.Sweep(ctx)
	if err != nil {
		log.Error().Err(err).Msg("retention sweep failed")
		return nil, false
	}
	metrics.SweptUsersTotal.Add(float64(len(rep.Deleted)))
	return rep.Deleted, true
}

func (l *Loop) logCycle(rep CycleReport) {
	counts := map[string]int{}
	for _, u := range rep.Users {
		counts[u.Outcome]++
	}
	ev := l.log.Info()
	if rep.Err != nil {
		ev = l.log.Error().Err(rep.Err)
	}
	ev.Str("cycle", rep.ID).
		Int("users", len(rep.Users)).
		Int(metrics.OutcomeSynced, counts[metrics.OutcomeSynced]).
		Int(metrics.OutcomeUnchanged, counts[metrics.OutcomeUnchanged]).
		Int(metrics.OutcomeSkipped, counts[metrics.OutcomeSkipped]).
		Int(metrics.OutcomeFailed, counts[metrics.OutcomeFailed]).
		Strs("swept", rep.Swept).
		Dur("duration", rep.Duration).
		Msg("sync pass finished")
}

// Name implements health.Checker.
func (l *Loop) Name() string { return "syncloop" }

// IsHealthy reports whether a pass finished within the last three poll intervals.
func (l *Loop) IsHealthy() bool {
	last := l.lastPass.Load()
	if last == 0 {
		return false
	}
	return l.clock.Now().Sub(time.Unix(0, last)) <= 3*l.cfg.PollInterval
}
