package sqlstore

import (
	"context"
	"fmt"

	"github.com/willtech3/powertoken/internal/model"
)

type activities struct{ s *Store }

const activityColumns = `id, wc_act_id, name, expiration, weight, user_id`

func (a *activities) Create(ctx context.Context, m *model.Activity) (*model.Activity, error) {
	out := *m
	if out.Weight < 1 {
		out.Weight = 1
	}
	out.Expiration = ts(out.Expiration)
	id, err := a.s.insert(ctx, `
        INSERT INTO activities (wc_act_id, name, expiration, weight, user_id)
        VALUES (?,?,?,?,?)`,
		out.WCActID, out.Name, out.Expiration, out.Weight, out.UserID)
	if err != nil {
		return nil, err
	}
	out.ID = id
	return &out, nil
}

func (a *activities) Get(ctx context.Context, id int64) (*model.Activity, error) {
	row := a.s.queryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id)
	out, err := scanActivity(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("activity %d", id))
	}
	return out, nil
}

func (a *activities) GetByWCActID(ctx context.Context, wcActID string) (*model.Activity, error) {
	row := a.s.queryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE wc_act_id=?`, wcActID)
	out, err := scanActivity(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("activity %q", wcActID))
	}
	return out, nil
}

func (a *activities) GetForUser(ctx context.Context, userID int64, wcActID string) (*model.Activity, error) {
	row := a.s.queryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE user_id=? AND wc_act_id=?`, userID, wcActID)
	out, err := scanActivity(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("activity %q of user %d", wcActID, userID))
	}
	return out, nil
}

func (a *activities) ListByUser(ctx context.Context, userID int64) ([]*model.Activity, error) {
	rows, err := a.s.query(ctx, `SELECT `+activityColumns+` FROM activities WHERE user_id=? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.Activity
	for rows.Next() {
		out, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, out)
	}
	return res, rows.Err()
}

func (a *activities) Update(ctx context.Context, m *model.Activity) error {
	weight := m.Weight
	if weight < 1 {
		weight = 1
	}
	res, err := a.s.exec(ctx, `UPDATE activities SET name=?, expiration=?, weight=? WHERE id=?`,
		m.Name, ts(m.Expiration), weight, m.ID)
	if err != nil {
		return err
	}
	return expectOne(res, fmt.Sprintf("activity %d", m.ID))
}

func (a *activities) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := a.s.exec(ctx, `DELETE FROM activities WHERE user_id=?`, userID)
	return err
}

func scanActivity(row rowScanner) (*model.Activity, error) {
	var out model.Activity
	if err := row.Scan(&out.ID, &out.WCActID, &out.Name, &out.Expiration, &out.Weight, &out.UserID); err != nil {
		return nil, err
	}
	return &out, nil
}
