package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/joshharrison/planloom/internal/model"
)

const taskColumns = `id, schedule_id, parent_id, wbs_code, name, status,
	planned_start, planned_end, actual_start, actual_end, baseline_start, baseline_end,
	duration_days, progress, planned_effort, actual_effort, remaining_effort,
	early_start, early_finish, late_start, late_finish, total_float, free_float, is_critical`

// InsertTask persists a new task. The WBS code must be unique within the
// schedule; date ranges and progress bounds are enforced here so nothing
// invalid ever reaches a recompute.
func (s *Store) InsertTask(ctx context.Context, t model.Task) error {
	if err := validateTask(&t); err != nil {
		return err
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM tasks WHERE schedule_id = ? AND wbs_code = ?`,
			t.ScheduleID, t.WBSCode).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return &model.DuplicateWBSCodeError{ScheduleID: t.ScheduleID, Code: t.WBSCode}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tasks(`+taskColumns+`)
			 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			t.ID, t.ScheduleID, nullStr(t.ParentID), t.WBSCode, t.Name, string(t.Status),
			nullDate(t.PlannedStart), nullDate(t.PlannedEnd),
			nullDate(t.ActualStart), nullDate(t.ActualEnd),
			nullDate(t.BaselineStart), nullDate(t.BaselineEnd),
			t.DurationDays, t.Progress, t.PlannedEffortHours, t.ActualEffortHours, t.RemainingEffortHours,
			t.EarlyStart, t.EarlyFinish, t.LateStart, t.LateFinish, t.TotalFloat, t.FreeFloat, boolInt(t.IsCritical),
		)
		return err
	})
}

// GetTask loads one task by id.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// TasksBySchedule returns all tasks in a schedule ordered by WBS code.
func (s *Store) TasksBySchedule(ctx context.Context, scheduleID string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE schedule_id = ? ORDER BY wbs_code, id`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask rewrites a task's mutable authoring fields (dates, name,
// status, progress, efforts). Derived CPM fields are untouched; those go
// through SaveDerived.
func (s *Store) UpdateTask(ctx context.Context, t model.Task) error {
	if err := validateTask(&t); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET name = ?, status = ?,
			planned_start = ?, planned_end = ?, actual_start = ?, actual_end = ?,
			duration_days = ?, progress = ?,
			planned_effort = ?, actual_effort = ?, remaining_effort = ?
		 WHERE id = ?`,
		t.Name, string(t.Status),
		nullDate(t.PlannedStart), nullDate(t.PlannedEnd),
		nullDate(t.ActualStart), nullDate(t.ActualEnd),
		t.DurationDays, t.Progress,
		t.PlannedEffortHours, t.ActualEffortHours, t.RemainingEffortHours,
		t.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res, t.ID)
}

// DeleteTaskCascade removes a task, its whole subtree, and every
// dependency or assignment touching any task in the subtree, atomically.
func (s *Store) DeleteTaskCascade(ctx context.Context, id string) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		const subtree = `WITH RECURSIVE subtree(id) AS (
			SELECT id FROM tasks WHERE id = ?
			UNION ALL
			SELECT t.id FROM tasks t JOIN subtree s ON t.parent_id = s.id
		)`
		if _, err := tx.ExecContext(ctx, subtree+
			` DELETE FROM dependencies
			  WHERE predecessor_id IN (SELECT id FROM subtree)
			     OR successor_id IN (SELECT id FROM subtree)`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, subtree+
			` DELETE FROM assignments WHERE task_id IN (SELECT id FROM subtree)`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, subtree+
			` DELETE FROM tasks WHERE id IN (SELECT id FROM subtree)`, id)
		if err != nil {
			return err
		}
		return requireRow(res, id)
	})
}

// SaveDerived writes recomputed CPM fields, derived parent progress, and
// the schedule's derived-state marker in one transaction, so readers only
// ever observe a complete consistent snapshot.
func (s *Store) SaveDerived(ctx context.Context, scheduleID string, tasks []model.Task, state model.DerivedState) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE tasks SET early_start = ?, early_finish = ?, late_start = ?, late_finish = ?,
				total_float = ?, free_float = ?, is_critical = ?, progress = ?
			 WHERE id = ?`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i := range tasks {
			t := &tasks[i]
			if _, err := stmt.ExecContext(ctx,
				t.EarlyStart, t.EarlyFinish, t.LateStart, t.LateFinish,
				t.TotalFloat, t.FreeFloat, boolInt(t.IsCritical), t.Progress, t.ID); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE schedules SET derived_state = ? WHERE id = ?`, string(state), scheduleID)
		return err
	})
}

// StampTaskBaselines copies every task's planned window into its baseline
// columns. Called once per baseline capture so task rows carry the frozen
// dates alongside the snapshot JSON.
func (s *Store) StampTaskBaselines(ctx context.Context, scheduleID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET baseline_start = planned_start, baseline_end = planned_end
		 WHERE schedule_id = ?`, scheduleID)
	return err
}

func validateTask(t *model.Task) error {
	if !t.PlannedStart.IsZero() && !t.PlannedEnd.IsZero() && t.PlannedEnd.Before(t.PlannedStart) {
		return &model.InvalidDateRangeError{
			Entity: "task", ID: t.ID, Start: t.PlannedStart, End: t.PlannedEnd,
		}
	}
	if t.Progress < 0 || t.Progress > 100 {
		return fmt.Errorf("task %s: progress %d out of range [0,100]", t.ID, t.Progress)
	}
	return nil
}

func scanTask(r rowScanner) (model.Task, error) {
	var t model.Task
	var parent sql.NullString
	var status string
	var ps, pe, as, ae, bs, be sql.NullString
	var critical int
	err := r.Scan(&t.ID, &t.ScheduleID, &parent, &t.WBSCode, &t.Name, &status,
		&ps, &pe, &as, &ae, &bs, &be,
		&t.DurationDays, &t.Progress, &t.PlannedEffortHours, &t.ActualEffortHours, &t.RemainingEffortHours,
		&t.EarlyStart, &t.EarlyFinish, &t.LateStart, &t.LateFinish, &t.TotalFloat, &t.FreeFloat, &critical)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, fmt.Errorf("task: %w", model.ErrNotFound)
	}
	if err != nil {
		return model.Task{}, err
	}
	t.ParentID = parent.String
	t.Status = model.TaskStatus(status)
	t.PlannedStart, t.PlannedEnd = scanDate(ps), scanDate(pe)
	t.ActualStart, t.ActualEnd = scanDate(as), scanDate(ae)
	t.BaselineStart, t.BaselineEnd = scanDate(bs), scanDate(be)
	t.IsCritical = critical != 0
	return t, nil
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
