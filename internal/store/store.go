package store

import (
	"context"
	"time"

	"github.com/willtech3/powertoken/internal/model"
)

// Store exposes persistence operations required by the sync engine.
// Implementations live under internal/store/<driver>/ (postgres, sqlite),
// both backed by internal/store/sqlstore.
type Store interface {
	Users() Users
	Activities() Activities
	Days() Days
	Events() Events
	Logs() Logs
	SyncErrors() SyncErrors

	// WithTx runs fn in a single transaction. The Store handed to fn is bound
	// to that transaction; fn must not use the outer Store. The transaction
	// commits when fn returns nil and rolls back otherwise. Calling WithTx on
	// a transaction-bound Store runs fn in the existing transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// Purge removes every row from every table.
	Purge(ctx context.Context) error
}

type Users interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
	UpdateWEconnect(ctx context.Context, id int64, wcID, wcToken, goalPeriod string) error
	UpdateFitbit(ctx context.Context, id int64, fbToken string) error
	Delete(ctx context.Context, id int64) error
}

type Activities interface {
	Create(ctx context.Context, a *model.Activity) (*model.Activity, error)
	Get(ctx context.Context, id int64) (*model.Activity, error)
	GetByWCActID(ctx context.Context, wcActID string) (*model.Activity, error)
	// GetForUser resolves an external activity id within one user's activities.
	GetForUser(ctx context.Context, userID int64, wcActID string) (*model.Activity, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.Activity, error)
	// Update rewrites name, expiration and weight.
	Update(ctx context.Context, a *model.Activity) error
	DeleteByUser(ctx context.Context, userID int64) error
}

type Days interface {
	Create(ctx context.Context, d *model.Day) (*model.Day, error)
	// GetByDate matches on the calendar date of date only.
	GetByDate(ctx context.Context, userID int64, date time.Time) (*model.Day, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.Day, error)
	UpdateProgress(ctx context.Context, id int64, progress float64) error
	DeleteByUser(ctx context.Context, userID int64) error
}

type Events interface {
	Create(ctx context.Context, e *model.Event) (*model.Event, error)
	GetByEID(ctx context.Context, eid string) (*model.Event, error)
	// Update rewrites start, end and completed.
	Update(ctx context.Context, e *model.Event) error
	// ListByDay returns the day's events with their activity weight, ordered by start time.
	ListByDay(ctx context.Context, dayID int64) ([]*model.WeightedEvent, error)
	// DeleteByUser removes events attached to the user's days or activities.
	DeleteByUser(ctx context.Context, userID int64) error
}

type Logs interface {
	Append(ctx context.Context, l *model.Log) (*model.Log, error)
	// Latest returns the newest log at or after since; model.ErrNotFound when none.
	// A zero since matches every log.
	Latest(ctx context.Context, userID int64, since time.Time) (*model.Log, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Log, error)
	DeleteByUser(ctx context.Context, userID int64) error
}

type SyncErrors interface {
	Append(ctx context.Context, e *model.SyncError) (*model.SyncError, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*model.SyncError, error)
	DeleteByUser(ctx context.Context, userID int64) error
}
