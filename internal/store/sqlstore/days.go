package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/willtech3/powertoken/internal/model"
)

type days struct{ s *Store }

func (d *days) Create(ctx context.Context, m *model.Day) (*model.Day, error) {
	key := dateKey(m.Date)
	id, err := d.s.insert(ctx, `
        INSERT INTO days (day_date, computed_progress, user_id)
        VALUES (?,?,?)`, key, m.ComputedProgress, m.UserID)
	if err != nil {
		return nil, err
	}
	date, _ := parseDateKey(key)
	return &model.Day{ID: id, Date: date, ComputedProgress: m.ComputedProgress, UserID: m.UserID}, nil
}

func (d *days) GetByDate(ctx context.Context, userID int64, date time.Time) (*model.Day, error) {
	key := dateKey(date)
	row := d.s.queryRow(ctx, `SELECT id, day_date, computed_progress, user_id FROM days WHERE user_id=? AND day_date=?`, userID, key)
	out, err := scanDay(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("day %s of user %d", key, userID))
	}
	return out, nil
}

func (d *days) ListByUser(ctx context.Context, userID int64) ([]*model.Day, error) {
	rows, err := d.s.query(ctx, `SELECT id, day_date, computed_progress, user_id FROM days WHERE user_id=? ORDER BY day_date`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Day
	for rows.Next() {
		out, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, out)
	}
	return res, rows.Err()
}

func (d *days) UpdateProgress(ctx context.Context, id int64, progress float64) error {
	res, err := d.s.exec(ctx, `UPDATE days SET computed_progress=? WHERE id=?`, progress, id)
	if err != nil {
		return err
	}
	return expectOne(res, fmt.Sprintf("day %d", id))
}

func (d *days) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := d.s.exec(ctx, `DELETE FROM days WHERE user_id=?`, userID)
	return err
}

func scanDay(row rowScanner) (*model.Day, error) {
	var out model.Day
	var key string
	if err := row.Scan(&out.ID, &key, &out.ComputedProgress, &out.UserID); err != nil {
		return nil, err
	}
	date, err := parseDateKey(key)
	if err != nil {
		return nil, fmt.Errorf("day %d has malformed date %q: %w", out.ID, key, err)
	}
	out.Date = date
	return &out, nil
}
