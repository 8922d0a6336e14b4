package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by the store when a record does not exist.
var ErrNotFound = errors.New("not found")

// CycleError rejects a dependency insertion that would close a cycle.
// Path is the would-be cycle in forward order, ending where it started.
type CycleError struct {
	PredecessorID string
	SuccessorID   string
	Path          []string
}

func (e *CycleError) Error() string {
	if len(e.Path) > 0 {
		return fmt.Sprintf("dependency %s -> %s would create a cycle: %s",
			e.PredecessorID, e.SuccessorID, strings.Join(e.Path, " -> "))
	}
	return fmt.Sprintf("dependency %s -> %s would create a cycle", e.PredecessorID, e.SuccessorID)
}

// CrossScheduleError rejects a dependency whose endpoints live in
// different schedules.
type CrossScheduleError struct {
	PredecessorID string
	SuccessorID   string
}

func (e *CrossScheduleError) Error() string {
	return fmt.Sprintf("tasks %s and %s belong to different schedules", e.PredecessorID, e.SuccessorID)
}

// InvalidDateRangeError rejects a task or schedule whose end precedes its
// start.
type InvalidDateRangeError struct {
	Entity string // "task" or "schedule"
	ID     string
	Start  time.Time
	End    time.Time
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf("%s %s: end %s before start %s",
		e.Entity, e.ID, FormatDate(e.End), FormatDate(e.Start))
}

// DuplicateWBSCodeError rejects a WBS code already issued within the
// schedule.
type DuplicateWBSCodeError struct {
	ScheduleID string
	Code       string
}

func (e *DuplicateWBSCodeError) Error() string {
	return fmt.Sprintf("WBS code %q already exists in schedule %s", e.Code, e.ScheduleID)
}

// OrphanReferenceError rejects a dependency or assignment that references
// a task outside the schedule (or no task at all).
type OrphanReferenceError struct {
	Kind   string // "dependency", "assignment", "milestone"
	TaskID string
}

func (e *OrphanReferenceError) Error() string {
	return fmt.Sprintf("%s references unknown task %s", e.Kind, e.TaskID)
}

// GraphCycleError is the defensive failure raised when CPM recompute finds
// a cycle that validation should have prevented. It indicates a bug, not
// bad input; callers must not serve derived fields after seeing it.
type GraphCycleError struct {
	ScheduleID string
	Sorted     int
	Total      int
}

func (e *GraphCycleError) Error() string {
	return fmt.Sprintf("schedule %s: dependency graph has a cycle (%d of %d tasks sorted)",
		e.ScheduleID, e.Sorted, e.Total)
}
