package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/willtech3/powertoken/internal/model"
)

type users struct{ s *Store }

const userColumns = `id, username, registered_on, goal_period, wc_id, wc_token, fb_token`

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	if m.Username == "" {
		return nil, fmt.Errorf("username: %w", model.ErrValidation)
	}
	out := *m
	if out.RegisteredOn.IsZero() {
		out.RegisteredOn = time.Now()
	}
	out.RegisteredOn = ts(out.RegisteredOn)
	if out.GoalPeriod == "" {
		out.GoalPeriod = "daily"
	}
	id, err := u.s.insert(ctx, `
        INSERT INTO users (username, registered_on, goal_period, wc_id, wc_token, fb_token)
        VALUES (?,?,?,?,?,?)`,
		out.Username, out.RegisteredOn, out.GoalPeriod,
		nullIfEmpty(out.WCID), nullIfEmpty(out.WCToken), nullIfEmpty(out.FBToken))
	if err != nil {
		return nil, err
	}
	out.ID = id
	return &out, nil
}

func (u *users) Get(ctx context.Context, id int64) (*model.User, error) {
	row := u.s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	out, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("user %d", id))
	}
	return out, nil
}

func (u *users) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	row := u.s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username)
	out, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("user %q", username))
	}
	return out, nil
}

func (u *users) List(ctx context.Context) ([]*model.User, error) {
	rows, err := u.s.query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.User
	for rows.Next() {
		out, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, out)
	}
	return res, rows.Err()
}

func (u *users) UpdateWEconnect(ctx context.Context, id int64, wcID, wcToken, goalPeriod string) error {
	if goalPeriod == "" {
		goalPeriod = "daily"
	}
	res, err := u.s.exec(ctx, `UPDATE users SET wc_id=?, wc_token=?, goal_period=? WHERE id=?`,
		nullIfEmpty(wcID), nullIfEmpty(wcToken), goalPeriod, id)
	if err != nil {
		return err
	}
	return expectOne(res, fmt.Sprintf("user %d", id))
}

func (u *users) UpdateFitbit(ctx context.Context, id int64, fbToken string) error {
	res, err := u.s.exec(ctx, `UPDATE users SET fb_token=? WHERE id=?`, nullIfEmpty(fbToken), id)
	if err != nil {
		return err
	}
	return expectOne(res, fmt.Sprintf("user %d", id))
}

func (u *users) Delete(ctx context.Context, id int64) error {
	res, err := u.s.exec(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectOne(res, fmt.Sprintf("user %d", id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var out model.User
	var wcID, wcToken, fbToken *string
	if err := row.Scan(&out.ID, &out.Username, &out.RegisteredOn, &out.GoalPeriod, &wcID, &wcToken, &fbToken); err != nil {
		return nil, err
	}
	out.WCID = deref(wcID)
	out.WCToken = deref(wcToken)
	out.FBToken = deref(fbToken)
	return &out, nil
}

var _ rowScanner = (*sql.Row)(nil)
