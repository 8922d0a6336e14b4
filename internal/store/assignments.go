package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joshharrison/planloom/internal/model"
)

// InsertAssignment persists a resource assignment. Allocation must be in
// (0,100]; the resource itself is owned by the external resource
// subsystem and only referenced here.
func (s *Store) InsertAssignment(ctx context.Context, a model.ResourceAssignment) error {
	if a.Allocation <= 0 || a.Allocation > 100 {
		return fmt.Errorf("assignment %s: allocation %d%% out of range (0,100]", a.ID, a.Allocation)
	}
	if !a.StartDate.IsZero() && !a.EndDate.IsZero() && a.EndDate.Before(a.StartDate) {
		return &model.InvalidDateRangeError{
			Entity: "assignment", ID: a.ID, Start: a.StartDate, End: a.EndDate,
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments(id, task_id, resource_id, allocation, planned_hours, actual_hours, start_date, end_date)
		 VALUES(?,?,?,?,?,?,?,?)`,
		a.ID, a.TaskID, a.ResourceID, a.Allocation, a.PlannedHours, a.ActualHours,
		nullDate(a.StartDate), nullDate(a.EndDate),
	)
	return err
}

// AssignmentsByTask returns a task's assignments.
func (s *Store) AssignmentsByTask(ctx context.Context, taskID string) ([]model.ResourceAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, resource_id, allocation, planned_hours, actual_hours, start_date, end_date
		 FROM assignments WHERE task_id = ? ORDER BY resource_id, id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ResourceAssignment
	for rows.Next() {
		var a model.ResourceAssignment
		var start, end sql.NullString
		if err := rows.Scan(&a.ID, &a.TaskID, &a.ResourceID, &a.Allocation,
			&a.PlannedHours, &a.ActualHours, &start, &end); err != nil {
			return nil, err
		}
		a.StartDate, a.EndDate = scanDate(start), scanDate(end)
		out = append(out, a)
	}
	return out, rows.Err()
}
