package sqlstore

import (
	"context"
	"fmt"

	"github.com/willtech3/powertoken/internal/model"
)

type events struct{ s *Store }

const eventColumns = `id, eid, start_time, end_time, completed, day_id, activity_id`

func (e *events) Create(ctx context.Context, m *model.Event) (*model.Event, error) {
	if m.EndTime.Before(m.StartTime) {
		return nil, fmt.Errorf("event %q ends before it starts: %w", m.EID, model.ErrValidation)
	}
	out := *m
	out.StartTime = ts(out.StartTime)
	out.EndTime = ts(out.EndTime)
	id, err := e.s.insert(ctx, `
        INSERT INTO events (eid, start_time, end_time, completed, day_id, activity_id)
        VALUES (?,?,?,?,?,?)`,
		out.EID, out.StartTime, out.EndTime, out.Completed, out.DayID, out.ActivityID)
	if err != nil {
		return nil, err
	}
	out.ID = id
	return &out, nil
}

func (e *events) GetByEID(ctx context.Context, eid string) (*model.Event, error) {
	row := e.s.queryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE eid=?`, eid)
	var out model.Event
	if err := row.Scan(&out.ID, &out.EID, &out.StartTime, &out.EndTime, &out.Completed, &out.DayID, &out.ActivityID); err != nil {
		return nil, notFound(err, fmt.Sprintf("event %q", eid))
	}
	return &out, nil
}

func (e *events) Update(ctx context.Context, m *model.Event) error {
	if m.EndTime.Before(m.StartTime) {
		return fmt.Errorf("event %q ends before it starts: %w", m.EID, model.ErrValidation)
	}
	res, err := e.s.exec(ctx, `UPDATE events SET start_time=?, end_time=?, completed=? WHERE id=?`,
		ts(m.StartTime), ts(m.EndTime), m.Completed, m.ID)
	if err != nil {
		return err
	}
	return expectOne(res, fmt.Sprintf("event %d", m.ID))
}

func (e *events) ListByDay(ctx context.Context, dayID int64) ([]*model.WeightedEvent, error) {
	rows, err := e.s.query(ctx, `
        SELECT e.id, e.eid, e.start_time, e.end_time, e.completed, e.day_id, e.activity_id, a.weight
        FROM events e JOIN activities a ON a.id = e.activity_id
        WHERE e.day_id=?
        ORDER BY e.start_time, e.id`, dayID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []*model.WeightedEvent
	for rows.Next() {
		var out model.WeightedEvent
		if err := rows.Scan(&out.ID, &out.EID, &out.StartTime, &out.EndTime, &out.Completed, &out.DayID, &out.ActivityID, &out.Weight); err != nil {
			return nil, err
		}
		res = append(res, &out)
	}
	return res, rows.Err()
}

func (e *events) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := e.s.exec(ctx, `
        DELETE FROM events
        WHERE day_id IN (SELECT id FROM days WHERE user_id=?)
           OR activity_id IN (SELECT id FROM activities WHERE user_id=?)`, userID, userID)
	return err
}
