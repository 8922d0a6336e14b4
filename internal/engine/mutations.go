package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joshharrison/planloom/internal/graph"
	"github.com/joshharrison/planloom/internal/model"
	"github.com/joshharrison/planloom/internal/wbs"
)

// CreateSchedule persists a new schedule and returns its id.
func (e *Engine) CreateSchedule(ctx context.Context, sched model.Schedule) (string, error) {
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	if sched.Status == "" {
		sched.Status = "active"
	}
	if err := e.store.CreateSchedule(ctx, sched); err != nil {
		return "", err
	}
	e.log.Info().Str("schedule", sched.ID).Str("name", sched.Name).Msg("schedule created")
	return sched.ID, nil
}

// AddTask validates and persists a task, assigns its WBS code when none
// was supplied, and recomputes the schedule's derived fields.
func (e *Engine) AddTask(ctx context.Context, t model.Task) (string, error) {
	defer e.lock(t.ScheduleID)()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.StatusNotStarted
	}
	if t.ParentID != "" {
		parent, err := e.store.GetTask(ctx, t.ParentID)
		if err != nil {
			return "", fmt.Errorf("parent task: %w", err)
		}
		if parent.ScheduleID != t.ScheduleID {
			return "", &model.OrphanReferenceError{Kind: "task parent", TaskID: t.ParentID}
		}
		if t.WBSCode == "" {
			code, err := e.nextWBSCodeLocked(ctx, t.ScheduleID, parent.WBSCode)
			if err != nil {
				return "", err
			}
			t.WBSCode = code
		}
	} else if t.WBSCode == "" {
		code, err := e.nextWBSCodeLocked(ctx, t.ScheduleID, "")
		if err != nil {
			return "", err
		}
		t.WBSCode = code
	}

	if err := e.store.InsertTask(ctx, t); err != nil {
		return "", err
	}
	if err := e.recomputeLocked(ctx, t.ScheduleID); err != nil {
		return "", err
	}
	return t.ID, nil
}

// scheduleOf resolves a task's schedule id, which is immutable. Callers
// use it only to pick the lock; every row read feeding a write happens
// after the lock is taken.
func (e *Engine) scheduleOf(ctx context.Context, taskID string) (string, error) {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return "", err
	}
	return t.ScheduleID, nil
}

// UpdateTask rewrites a task's authoring fields and recomputes the
// schedule. Progress on a task with children is derived and cannot be set
// directly.
func (e *Engine) UpdateTask(ctx context.Context, t model.Task) error {
	scheduleID, err := e.scheduleOf(ctx, t.ID)
	if err != nil {
		return err
	}
	defer e.lock(scheduleID)()

	current, err := e.store.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	tasks, err := e.store.TasksBySchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if t.Progress != current.Progress && hasChildren(tasks, t.ID) {
		return fmt.Errorf("task %s: progress is derived from children and cannot be set directly", t.ID)
	}

	t.ScheduleID = scheduleID
	t.ParentID = current.ParentID
	t.WBSCode = current.WBSCode // immutable once issued
	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	return e.recomputeLocked(ctx, scheduleID)
}

// UpdateTaskProgress sets a leaf task's progress (and optionally its
// remaining effort) and recomputes every ancestor's derived percentage.
func (e *Engine) UpdateTaskProgress(ctx context.Context, taskID string, progress int, remainingHours float64) error {
	if progress < 0 || progress > 100 {
		return fmt.Errorf("task %s: progress %d out of range [0,100]", taskID, progress)
	}
	scheduleID, err := e.scheduleOf(ctx, taskID)
	if err != nil {
		return err
	}
	defer e.lock(scheduleID)()

	// Fresh row under the lock: a concurrent edit may have committed
	// since the lookup, and the whole row goes back to the store.
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	tasks, err := e.store.TasksBySchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if hasChildren(tasks, taskID) {
		return fmt.Errorf("task %s: progress is derived from children and cannot be set directly", taskID)
	}

	t.Progress = progress
	if remainingHours >= 0 {
		t.RemainingEffortHours = remainingHours
	}
	if progress == 100 && t.Status == model.StatusInProgress {
		t.Status = model.StatusCompleted
	} else if progress > 0 && t.Status == model.StatusNotStarted {
		t.Status = model.StatusInProgress
	}
	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	return e.recomputeLocked(ctx, scheduleID)
}

// UpdateTaskDates rewrites a task's planned window (and optionally its
// stored duration) and recomputes. A zero date leaves the current value.
func (e *Engine) UpdateTaskDates(ctx context.Context, taskID string, start, end time.Time, durationDays int) error {
	scheduleID, err := e.scheduleOf(ctx, taskID)
	if err != nil {
		return err
	}
	defer e.lock(scheduleID)()

	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if !start.IsZero() {
		t.PlannedStart = start
	}
	if !end.IsZero() {
		t.PlannedEnd = end
	}
	if durationDays > 0 {
		t.DurationDays = durationDays
	}
	if !t.PlannedStart.IsZero() && !t.PlannedEnd.IsZero() && t.PlannedEnd.Before(t.PlannedStart) {
		return &model.InvalidDateRangeError{Entity: "task", ID: taskID, Start: t.PlannedStart, End: t.PlannedEnd}
	}

	if err := e.store.UpdateTask(ctx, t); err != nil {
		return err
	}
	return e.recomputeLocked(ctx, scheduleID)
}

// DeleteTask removes a task, its subtree, and all touching dependencies,
// then recomputes.
func (e *Engine) DeleteTask(ctx context.Context, taskID string) error {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	defer e.lock(t.ScheduleID)()

	if err := e.store.DeleteTaskCascade(ctx, taskID); err != nil {
		return err
	}
	return e.recomputeLocked(ctx, t.ScheduleID)
}

// AddDependency validates a new edge against the live graph inside the
// schedule lock — the traversal and the insert cannot interleave with
// another writer — then persists it and recomputes. Nothing is written
// when validation fails.
func (e *Engine) AddDependency(ctx context.Context, d model.Dependency) error {
	pred, err := e.store.GetTask(ctx, d.PredecessorID)
	if err != nil {
		return &model.OrphanReferenceError{Kind: "dependency", TaskID: d.PredecessorID}
	}
	succ, err := e.store.GetTask(ctx, d.SuccessorID)
	if err != nil {
		return &model.OrphanReferenceError{Kind: "dependency", TaskID: d.SuccessorID}
	}
	if pred.ScheduleID != succ.ScheduleID {
		return &model.CrossScheduleError{PredecessorID: d.PredecessorID, SuccessorID: d.SuccessorID}
	}
	d.ScheduleID = pred.ScheduleID
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Type == "" {
		d.Type = model.FinishToStart
	}

	defer e.lock(d.ScheduleID)()

	tasks, err := e.store.TasksBySchedule(ctx, d.ScheduleID)
	if err != nil {
		return err
	}
	deps, err := e.store.DependenciesBySchedule(ctx, d.ScheduleID)
	if err != nil {
		return err
	}
	g, err := graph.Build(d.ScheduleID, tasks, deps)
	if err != nil {
		return err
	}
	if err := g.ValidateEdge(d.PredecessorID, d.SuccessorID); err != nil {
		return err
	}

	if err := e.store.InsertDependency(ctx, d); err != nil {
		return err
	}
	return e.recomputeLocked(ctx, d.ScheduleID)
}

// RemoveDependency deletes one edge and recomputes.
func (e *Engine) RemoveDependency(ctx context.Context, predecessorID, successorID string) error {
	pred, err := e.store.GetTask(ctx, predecessorID)
	if err != nil {
		return err
	}
	defer e.lock(pred.ScheduleID)()

	if err := e.store.DeleteDependency(ctx, predecessorID, successorID); err != nil {
		return err
	}
	return e.recomputeLocked(ctx, pred.ScheduleID)
}

// AddWBSElement persists a WBS element, assigning the next code under its
// parent when none was supplied. Level is always derived from the code.
func (e *Engine) AddWBSElement(ctx context.Context, el model.WBSElement) (string, error) {
	defer e.lock(el.ScheduleID)()

	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	parentCode := ""
	if el.ParentID != "" {
		elements, err := e.store.WBSBySchedule(ctx, el.ScheduleID)
		if err != nil {
			return "", err
		}
		found := false
		for _, p := range elements {
			if p.ID == el.ParentID {
				parentCode = p.Code
				found = true
				break
			}
		}
		if !found {
			return "", &model.OrphanReferenceError{Kind: "wbs parent", TaskID: el.ParentID}
		}
	}
	if el.Code == "" {
		code, err := e.nextWBSCodeLocked(ctx, el.ScheduleID, parentCode)
		if err != nil {
			return "", err
		}
		el.Code = code
	}
	el.Level = wbs.Level(el.Code)

	if err := e.store.InsertWBSElement(ctx, el); err != nil {
		return "", err
	}
	return el.ID, nil
}

// NextWBSCode returns the next code that would be issued under parentCode
// (empty for root level).
func (e *Engine) NextWBSCode(ctx context.Context, scheduleID, parentCode string) (string, error) {
	defer e.lock(scheduleID)()
	return e.nextWBSCodeLocked(ctx, scheduleID, parentCode)
}

func (e *Engine) nextWBSCodeLocked(ctx context.Context, scheduleID, parentCode string) (string, error) {
	existing, err := e.store.WBSCodes(ctx, scheduleID)
	if err != nil {
		return "", err
	}
	return wbs.NextCode(existing, parentCode), nil
}

func hasChildren(tasks []model.Task, id string) bool {
	for i := range tasks {
		if tasks[i].ParentID == id {
			return true
		}
	}
	return false
}
