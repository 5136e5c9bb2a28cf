package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/willtech3/powertoken/internal/model"
)

type logs struct{ s *Store }

func (l *logs) Append(ctx context.Context, m *model.Log) (*model.Log, error) {
	out := *m
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	out.Timestamp = ts(out.Timestamp)
	id, err := l.s.insert(ctx, `
        INSERT INTO logs (logged_at, wc_progress, fb_step_count, fb_log_id, user_id)
        VALUES (?,?,?,?,?)`, out.Timestamp, out.WCProgress, out.FBStepCount, out.FBLogID, out.UserID)
	if err != nil {
		return nil, err
	}
	out.ID = id
	return &out, nil
}

func (l *logs) Latest(ctx context.Context, userID int64, since time.Time) (*model.Log, error) {
	row := l.s.queryRow(ctx, `
        SELECT id, logged_at, wc_progress, fb_step_count, fb_log_id, user_id
        FROM logs WHERE user_id=? AND logged_at>=?
        ORDER BY logged_at DESC, id DESC LIMIT 1`, userID, ts(since))
	var out model.Log
	if err := row.Scan(&out.ID, &out.Timestamp, &out.WCProgress, &out.FBStepCount, &out.FBLogID, &out.UserID); err != nil {
		return nil, notFound(err, fmt.Sprintf("log of user %d", userID))
	}
	return &out, nil
}

func (l *logs) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Log, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.s.query(ctx, `
        SELECT id, logged_at, wc_progress, fb_step_count, fb_log_id, user_id
        FROM logs WHERE user_id=? ORDER BY logged_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Log
	for rows.Next() {
		var out model.Log
		if err := rows.Scan(&out.ID, &out.Timestamp, &out.WCProgress, &out.FBStepCount, &out.FBLogID, &out.UserID); err != nil {
			return nil, err
		}
		res = append(res, &out)
	}
	return res, rows.Err()
}

func (l *logs) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := l.s.exec(ctx, `DELETE FROM logs WHERE user_id=?`, userID)
	return err
}

type syncErrors struct{ s *Store }

func (e *syncErrors) Append(ctx context.Context, m *model.SyncError) (*model.SyncError, error) {
	out := *m
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now()
	}
	out.Timestamp = ts(out.Timestamp)
	id, err := e.s.insert(ctx, `
        INSERT INTO sync_errors (occurred_at, summary, origin, message, user_id)
        VALUES (?,?,?,?,?)`, out.Timestamp, out.Summary, out.Origin, out.Message, out.UserID)
	if err != nil {
		return nil, err
	}
	out.ID = id
	return &out, nil
}

func (e *syncErrors) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.SyncError, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := e.s.query(ctx, `
        SELECT id, occurred_at, summary, origin, message, user_id
        FROM sync_errors WHERE user_id=? ORDER BY occurred_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.SyncError
	for rows.Next() {
		var out model.SyncError
		if err := rows.Scan(&out.ID, &out.Timestamp, &out.Summary, &out.Origin, &out.Message, &out.UserID); err != nil {
			return nil, err
		}
		res = append(res, &out)
	}
	return res, rows.Err()
}

func (e *syncErrors) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := e.s.exec(ctx, `DELETE FROM sync_errors WHERE user_id=?`, userID)
	return err
}
