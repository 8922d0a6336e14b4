package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joshharrison/planloom/internal/baseline"
	"github.com/joshharrison/planloom/internal/model"
)

// CreateBaseline captures an immutable snapshot of the schedule's planned
// dates and WBS structure as of now and returns the baseline id. It takes
// the schedule lock so a capture can never observe a half-committed
// recompute; edits started after the copy is taken are unaffected.
func (e *Engine) CreateBaseline(ctx context.Context, scheduleID, name string) (string, error) {
	defer e.lock(scheduleID)()

	sched, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return "", err
	}
	tasks, err := e.store.TasksBySchedule(ctx, scheduleID)
	if err != nil {
		return "", err
	}

	now := e.now()
	snap, err := baseline.Capture(sched, tasks, now)
	if err != nil {
		return "", err
	}
	b := model.ScheduleBaseline{
		ID:         uuid.NewString(),
		ScheduleID: scheduleID,
		Name:       name,
		CapturedAt: now,
		Snapshot:   snap,
	}
	if err := e.store.InsertBaseline(ctx, b); err != nil {
		return "", err
	}
	if err := e.store.StampTaskBaselines(ctx, scheduleID); err != nil {
		return "", err
	}
	e.log.Info().Str("schedule", scheduleID).Str("baseline", b.ID).Str("name", name).
		Int("tasks", len(tasks)).Msg("baseline captured")
	return b.ID, nil
}

// Variance compares the schedule's current projected window against a
// frozen baseline and stores the resulting metrics on the schedule.
func (e *Engine) Variance(ctx context.Context, scheduleID, baselineID string) (model.Variance, error) {
	b, err := e.store.GetBaseline(ctx, baselineID)
	if err != nil {
		return model.Variance{}, err
	}
	if b.ScheduleID != scheduleID {
		return model.Variance{}, &model.OrphanReferenceError{Kind: "baseline", TaskID: baselineID}
	}
	sched, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return model.Variance{}, err
	}
	tasks, err := e.store.TasksBySchedule(ctx, scheduleID)
	if err != nil {
		return model.Variance{}, err
	}

	start, end := projectedWindow(sched, tasks)
	v, err := baseline.ComputeVariance(b, start, end)
	if err != nil {
		return model.Variance{}, err
	}
	if err := e.store.SetScheduleMetrics(ctx, scheduleID, v.VarianceDays, v.PerformanceIndex); err != nil {
		return model.Variance{}, err
	}
	return v, nil
}

// LatestBaseline returns the most recent baseline for a schedule, or
// ErrNotFound when none exists.
func (e *Engine) LatestBaseline(ctx context.Context, scheduleID string) (model.ScheduleBaseline, error) {
	baselines, err := e.store.BaselinesBySchedule(ctx, scheduleID)
	if err != nil {
		return model.ScheduleBaseline{}, err
	}
	if len(baselines) == 0 {
		return model.ScheduleBaseline{}, model.ErrNotFound
	}
	return baselines[0], nil
}

// projectedWindow derives the current start/end from task planned dates,
// falling back to the schedule's own window.
func projectedWindow(sched model.Schedule, tasks []model.Task) (time.Time, time.Time) {
	start, end := sched.PlannedStart, sched.PlannedEnd
	for i := range tasks {
		t := &tasks[i]
		if !t.PlannedStart.IsZero() && (start.IsZero() || t.PlannedStart.Before(start)) {
			start = t.PlannedStart
		}
		if !t.PlannedEnd.IsZero() && t.PlannedEnd.After(end) {
			end = t.PlannedEnd
		}
	}
	return start, end
}
