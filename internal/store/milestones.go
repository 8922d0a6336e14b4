package store

import (
	"context"
	"database/sql"

	"github.com/joshharrison/planloom/internal/model"
)

// InsertMilestone persists a milestone.
func (s *Store) InsertMilestone(ctx context.Context, m model.Milestone) error {
	if m.Status == "" {
		m.Status = model.MilestonePlanned
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO milestones(id, schedule_id, task_id, name, target_date, actual_date, status, responsible)
		 VALUES(?,?,?,?,?,?,?,?)`,
		m.ID, m.ScheduleID, nullStr(m.TaskID), m.Name,
		nullDate(m.TargetDate), nullDate(m.ActualDate), string(m.Status), m.Responsible,
	)
	return err
}

// MilestonesBySchedule returns a schedule's milestones ordered by target
// date.
func (s *Store) MilestonesBySchedule(ctx context.Context, scheduleID string) ([]model.Milestone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, task_id, name, target_date, actual_date, status, responsible
		 FROM milestones WHERE schedule_id = ? ORDER BY target_date, id`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetMilestoneStatus updates one milestone's derived status.
func (s *Store) SetMilestoneStatus(ctx context.Context, id string, status model.MilestoneStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE milestones SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

// SetMilestoneActual records the achieved date and status together.
func (s *Store) SetMilestoneActual(ctx context.Context, id string, m model.Milestone) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE milestones SET actual_date = ?, status = ? WHERE id = ?`,
		nullDate(m.ActualDate), string(m.Status), id)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func scanMilestone(r rowScanner) (model.Milestone, error) {
	var m model.Milestone
	var taskID sql.NullString
	var target, actual sql.NullString
	var status string
	err := r.Scan(&m.ID, &m.ScheduleID, &taskID, &m.Name, &target, &actual, &status, &m.Responsible)
	if err != nil {
		return model.Milestone{}, err
	}
	m.TaskID = taskID.String
	m.TargetDate, m.ActualDate = scanDate(target), scanDate(actual)
	m.Status = model.MilestoneStatus(status)
	return m, nil
}
