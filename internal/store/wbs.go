package store

import (
	"context"
	"database/sql"

	"github.com/joshharrison/planloom/internal/model"
)

// InsertWBSElement persists a WBS element. Codes are unique per schedule
// and level must be parent level + 1 (root = 1); both are checked here.
func (s *Store) InsertWBSElement(ctx context.Context, e model.WBSElement) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM wbs_elements WHERE schedule_id = ? AND code = ?`,
			e.ScheduleID, e.Code).Scan(&n)
		if err != nil {
			return err
		}
		if n > 0 {
			return &model.DuplicateWBSCodeError{ScheduleID: e.ScheduleID, Code: e.Code}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO wbs_elements(id, schedule_id, parent_id, task_id, code, name, level, sort_order, progress)
			 VALUES(?,?,?,?,?,?,?,?,?)`,
			e.ID, e.ScheduleID, nullStr(e.ParentID), nullStr(e.TaskID),
			e.Code, e.Name, e.Level, e.SortOrder, e.Progress,
		)
		return err
	})
}

// WBSCodes returns every code issued in a schedule: both dedicated WBS
// elements and codes carried directly on tasks. The assigner derives the
// next code from this set.
func (s *Store) WBSCodes(ctx context.Context, scheduleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code FROM wbs_elements WHERE schedule_id = ?
		 UNION
		 SELECT wbs_code FROM tasks WHERE schedule_id = ?
		 ORDER BY 1`, scheduleID, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, rows.Err()
}

// WBSBySchedule returns all WBS elements ordered by code.
func (s *Store) WBSBySchedule(ctx context.Context, scheduleID string) ([]model.WBSElement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, parent_id, task_id, code, name, level, sort_order, progress
		 FROM wbs_elements WHERE schedule_id = ? ORDER BY code`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WBSElement
	for rows.Next() {
		var e model.WBSElement
		var parent, taskID sql.NullString
		if err := rows.Scan(&e.ID, &e.ScheduleID, &parent, &taskID,
			&e.Code, &e.Name, &e.Level, &e.SortOrder, &e.Progress); err != nil {
			return nil, err
		}
		e.ParentID, e.TaskID = parent.String, taskID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetWBSProgress mirrors a linked task's rolled-up progress onto its WBS
// element.
func (s *Store) SetWBSProgress(ctx context.Context, elementID string, progress int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE wbs_elements SET progress = ? WHERE id = ?`, progress, elementID)
	if err != nil {
		return err
	}
	return requireRow(res, elementID)
}
