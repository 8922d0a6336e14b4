package store

import (
	"context"
	"fmt"

	"github.com/joshharrison/planloom/internal/model"
)

// InsertDependency persists a validated dependency edge. Graph-level
// validation (cycles, same-schedule) happens in the engine before this is
// called; the store only enforces shape.
func (s *Store) InsertDependency(ctx context.Context, d model.Dependency) error {
	if d.PredecessorID == d.SuccessorID {
		return &model.CycleError{
			PredecessorID: d.PredecessorID,
			SuccessorID:   d.SuccessorID,
			Path:          []string{d.PredecessorID, d.PredecessorID},
		}
	}
	if !model.ValidDependencyType(d.Type) {
		return fmt.Errorf("dependency %s -> %s: unknown type %q", d.PredecessorID, d.SuccessorID, d.Type)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dependencies(id, schedule_id, predecessor_id, successor_id, dep_type, lag_days)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(predecessor_id, successor_id) DO UPDATE SET dep_type = excluded.dep_type, lag_days = excluded.lag_days`,
		d.ID, d.ScheduleID, d.PredecessorID, d.SuccessorID, string(d.Type), d.LagDays,
	)
	return err
}

// DeleteDependency removes one edge by endpoints.
func (s *Store) DeleteDependency(ctx context.Context, predecessorID, successorID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dependencies WHERE predecessor_id = ? AND successor_id = ?`,
		predecessorID, successorID)
	if err != nil {
		return err
	}
	return requireRow(res, predecessorID+"->"+successorID)
}

// DependenciesBySchedule returns every edge in a schedule, ordered for
// deterministic graph builds.
func (s *Store) DependenciesBySchedule(ctx context.Context, scheduleID string) ([]model.Dependency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, predecessor_id, successor_id, dep_type, lag_days
		 FROM dependencies WHERE schedule_id = ?
		 ORDER BY predecessor_id, successor_id`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Dependency
	for rows.Next() {
		var d model.Dependency
		var typ string
		if err := rows.Scan(&d.ID, &d.ScheduleID, &d.PredecessorID, &d.SuccessorID, &typ, &d.LagDays); err != nil {
			return nil, err
		}
		d.Type = model.DependencyType(typ)
		out = append(out, d)
	}
	return out, rows.Err()
}
