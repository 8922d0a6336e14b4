package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/joshharrison/planloom/internal/model"
)

// InsertBaseline appends a new immutable baseline. There is deliberately
// no update path for the snapshot column.
func (s *Store) InsertBaseline(ctx context.Context, b model.ScheduleBaseline) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO baselines(id, schedule_id, name, captured_at, snapshot, approved)
		 VALUES(?,?,?,?,?,?)`,
		b.ID, b.ScheduleID, b.Name, b.CapturedAt.UTC().Format(time.RFC3339), b.Snapshot, boolInt(b.Approved),
	)
	return err
}

// GetBaseline loads one baseline by id.
func (s *Store) GetBaseline(ctx context.Context, id string) (model.ScheduleBaseline, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, schedule_id, name, captured_at, snapshot, approved FROM baselines WHERE id = ?`, id)
	return scanBaseline(row)
}

// BaselinesBySchedule returns a schedule's baselines, newest first.
func (s *Store) BaselinesBySchedule(ctx context.Context, scheduleID string) ([]model.ScheduleBaseline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, name, captured_at, snapshot, approved
		 FROM baselines WHERE schedule_id = ? ORDER BY captured_at DESC, id`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduleBaseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ApproveBaseline flips the approval flag. The snapshot itself stays
// frozen.
func (s *Store) ApproveBaseline(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE baselines SET approved = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func scanBaseline(r rowScanner) (model.ScheduleBaseline, error) {
	var b model.ScheduleBaseline
	var captured string
	var approved int
	err := r.Scan(&b.ID, &b.ScheduleID, &b.Name, &captured, &b.Snapshot, &approved)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduleBaseline{}, fmt.Errorf("baseline: %w", model.ErrNotFound)
	}
	if err != nil {
		return model.ScheduleBaseline{}, err
	}
	if t, perr := time.Parse(time.RFC3339, captured); perr == nil {
		b.CapturedAt = t
	}
	b.Approved = approved != 0
	return b, nil
}
