package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/joshharrison/planloom/internal/model"
)

// AssignResource attaches a resource to a task. When an availability
// lookup is configured the requested allocation is checked against the
// resource's remaining capacity over the assignment window.
func (e *Engine) AssignResource(ctx context.Context, a model.ResourceAssignment) (string, error) {
	task, err := e.store.GetTask(ctx, a.TaskID)
	if err != nil {
		return "", &model.OrphanReferenceError{Kind: "assignment", TaskID: a.TaskID}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.StartDate.IsZero() {
		a.StartDate = task.PlannedStart
	}
	if a.EndDate.IsZero() {
		a.EndDate = task.PlannedEnd
	}
	if e.avail != nil {
		free, err := e.avail.Available(ctx, a.ResourceID, a.StartDate, a.EndDate)
		if err != nil {
			return "", fmt.Errorf("availability lookup for %s: %w", a.ResourceID, err)
		}
		if free < a.Allocation {
			return "", fmt.Errorf("resource %s over-allocated: %d%% requested, %d%% available",
				a.ResourceID, a.Allocation, free)
		}
	}
	if err := e.store.InsertAssignment(ctx, a); err != nil {
		return "", err
	}
	e.log.Debug().Str("task", a.TaskID).Str("resource", a.ResourceID).
		Int("allocation", a.Allocation).Msg("resource assigned")
	return a.ID, nil
}

// Assignments returns a task's resource assignments.
func (e *Engine) Assignments(ctx context.Context, taskID string) ([]model.ResourceAssignment, error) {
	return e.store.AssignmentsByTask(ctx, taskID)
}
