package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joshharrison/planloom/internal/model"
)

// CreateSchedule persists a new schedule. End before start is rejected.
func (s *Store) CreateSchedule(ctx context.Context, sched model.Schedule) error {
	if !sched.PlannedStart.IsZero() && !sched.PlannedEnd.IsZero() && sched.PlannedEnd.Before(sched.PlannedStart) {
		return &model.InvalidDateRangeError{
			Entity: "schedule", ID: sched.ID,
			Start: sched.PlannedStart, End: sched.PlannedEnd,
		}
	}
	if sched.Derived == "" {
		sched.Derived = model.DerivedStale
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(id, project_ref, name, planned_start, planned_end, status, derived_state, variance_days, performance_index)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		sched.ID, sched.ProjectRef, sched.Name,
		nullDate(sched.PlannedStart), nullDate(sched.PlannedEnd),
		sched.Status, string(sched.Derived), sched.VarianceDays, sched.PerformanceIndex,
	)
	return err
}

// DeleteScheduleCascade removes a schedule and every row belonging to it
// in one transaction. Used to roll back an aborted bulk import.
func (s *Store) DeleteScheduleCascade(ctx context.Context, id string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM assignments WHERE task_id IN (SELECT id FROM tasks WHERE schedule_id = ?)`, id); err != nil {
			return err
		}
		for _, table := range []string{"dependencies", "milestones", "wbs_elements", "baselines", "tasks"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE schedule_id = ?`, id); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
}

// GetSchedule loads one schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (model.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_ref, name, planned_start, planned_end, status, derived_state, variance_days, performance_index
		 FROM schedules WHERE id = ?`, id)
	return scanSchedule(row)
}

// ListSchedules returns all schedules ordered by name.
func (s *Store) ListSchedules(ctx context.Context) ([]model.Schedule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_ref, name, planned_start, planned_end, status, derived_state, variance_days, performance_index
		 FROM schedules ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

// SetDerivedState flips the schedule's derived-state marker. Used to mark
// CPM/rollup output stale before a recompute and invalid after a failed
// one.
func (s *Store) SetDerivedState(ctx context.Context, scheduleID string, state model.DerivedState) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET derived_state = ? WHERE id = ?`, string(state), scheduleID)
	if err != nil {
		return err
	}
	return requireRow(res, scheduleID)
}

// SetScheduleMetrics stores the latest baseline-variance metrics.
func (s *Store) SetScheduleMetrics(ctx context.Context, scheduleID string, varianceDays int, spi float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET variance_days = ?, performance_index = ? WHERE id = ?`,
		varianceDays, spi, scheduleID)
	if err != nil {
		return err
	}
	return requireRow(res, scheduleID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(r rowScanner) (model.Schedule, error) {
	var sched model.Schedule
	var start, end sql.NullString
	var derived string
	err := r.Scan(&sched.ID, &sched.ProjectRef, &sched.Name, &start, &end,
		&sched.Status, &derived, &sched.VarianceDays, &sched.PerformanceIndex)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schedule{}, fmt.Errorf("schedule: %w", model.ErrNotFound)
	}
	if err != nil {
		return model.Schedule{}, err
	}
	sched.PlannedStart = scanDate(start)
	sched.PlannedEnd = scanDate(end)
	sched.Derived = model.DerivedState(derived)
	return sched, nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, model.ErrNotFound)
	}
	return nil
}
