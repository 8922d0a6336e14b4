package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/joshharrison/planloom/internal/model"
	"github.com/joshharrison/planloom/internal/rollup"
)

// CriticalPath returns the schedule's critical tasks ordered by early
// start. It reads the last committed derived snapshot without taking the
// schedule lock; an invalid derived state is refused rather than served.
func (e *Engine) CriticalPath(ctx context.Context, scheduleID string) ([]model.Task, error) {
	sched, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if sched.Derived == model.DerivedInvalid {
		return nil, fmt.Errorf("schedule %s: derived fields are invalid; recompute required", scheduleID)
	}
	if sched.Derived == model.DerivedStale {
		e.log.Warn().Str("schedule", scheduleID).Msg("serving stale critical path; recompute pending")
	}

	tasks, err := e.store.TasksBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	var critical []model.Task
	for i := range tasks {
		if tasks[i].IsCritical {
			critical = append(critical, tasks[i])
		}
	}
	sort.Slice(critical, func(i, j int) bool {
		if critical[i].EarlyStart != critical[j].EarlyStart {
			return critical[i].EarlyStart < critical[j].EarlyStart
		}
		return critical[i].ID < critical[j].ID
	})
	return critical, nil
}

// Rollup returns a task's derived progress percentage, recomputed on the
// fly from the current task tree.
func (e *Engine) Rollup(ctx context.Context, taskID string) (int, error) {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	tasks, err := e.store.TasksBySchedule(ctx, t.ScheduleID)
	if err != nil {
		return 0, err
	}
	tree, err := rollup.BuildTree(tasks)
	if err != nil {
		return 0, err
	}
	return tree.RollUp(taskID)
}

// Schedules returns every schedule.
func (e *Engine) Schedules(ctx context.Context) ([]model.Schedule, error) {
	return e.store.ListSchedules(ctx)
}

// Schedule returns one schedule record.
func (e *Engine) Schedule(ctx context.Context, scheduleID string) (model.Schedule, error) {
	return e.store.GetSchedule(ctx, scheduleID)
}

// Tasks returns a schedule's tasks ordered by WBS code.
func (e *Engine) Tasks(ctx context.Context, scheduleID string) ([]model.Task, error) {
	return e.store.TasksBySchedule(ctx, scheduleID)
}

// Dependencies returns a schedule's dependency edges.
func (e *Engine) Dependencies(ctx context.Context, scheduleID string) ([]model.Dependency, error) {
	return e.store.DependenciesBySchedule(ctx, scheduleID)
}
