package model

import "time"

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusOnHold     TaskStatus = "on_hold"
	StatusCancelled  TaskStatus = "cancelled"
)

// DependencyType is the constraint relation between two tasks.
type DependencyType string

const (
	FinishToStart  DependencyType = "finish_to_start"
	StartToStart   DependencyType = "start_to_start"
	FinishToFinish DependencyType = "finish_to_finish"
	StartToFinish  DependencyType = "start_to_finish"
)

// ValidDependencyType reports whether t is one of the four supported types.
func ValidDependencyType(t DependencyType) bool {
	switch t {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	}
	return false
}

// DerivedState tracks whether a schedule's computed CPM/rollup fields can
// be trusted. A failed recompute marks the schedule invalid rather than
// leaving stale-but-plausible values behind.
type DerivedState string

const (
	DerivedValid   DerivedState = "valid"
	DerivedStale   DerivedState = "stale"
	DerivedInvalid DerivedState = "invalid"
)

// Schedule is the root container for one project's task network.
type Schedule struct {
	ID           string
	ProjectRef   string
	Name         string
	PlannedStart time.Time
	PlannedEnd   time.Time
	Status       string
	Derived      DerivedState

	// Performance metrics refreshed against the active baseline.
	VarianceDays     int
	PerformanceIndex float64
}

// Task is a node in the schedule's task network. ParentID forms the work
// breakdown tree; Dependency rows form the scheduling DAG.
type Task struct {
	ID         string
	ScheduleID string
	ParentID   string // empty for root tasks
	WBSCode    string
	Name       string
	Status     TaskStatus

	PlannedStart  time.Time
	PlannedEnd    time.Time
	ActualStart   time.Time
	ActualEnd     time.Time
	BaselineStart time.Time
	BaselineEnd   time.Time

	DurationDays int
	Progress     int // 0..100; derived for parents, authoritative for leaves

	PlannedEffortHours   float64
	ActualEffortHours    float64
	RemainingEffortHours float64

	// Derived CPM fields, owned by the CPM engine. Day offsets from the
	// schedule's planned start.
	EarlyStart  int
	EarlyFinish int
	LateStart   int
	LateFinish  int
	TotalFloat  int
	FreeFloat   int
	IsCritical  bool
}

// Duration returns the task's duration in calendar days. When planned
// dates are set the duration is derived from them; the stored
// DurationDays column is only trusted when dates are absent.
func (t *Task) Duration() int {
	if !t.PlannedStart.IsZero() && !t.PlannedEnd.IsZero() {
		return DaysBetween(t.PlannedStart, t.PlannedEnd)
	}
	return t.DurationDays
}

// DurationMismatch reports whether the stored duration disagrees with the
// planned date range. Callers log this as a data-quality warning.
func (t *Task) DurationMismatch() bool {
	if t.PlannedStart.IsZero() || t.PlannedEnd.IsZero() || t.DurationDays == 0 {
		return false
	}
	return t.DurationDays != DaysBetween(t.PlannedStart, t.PlannedEnd)
}

// Dependency is one edge of the scheduling DAG.
type Dependency struct {
	ID            string
	ScheduleID    string
	PredecessorID string
	SuccessorID   string
	Type          DependencyType
	LagDays       int // signed; negative means lead
}

// WBSElement is a coded node of the work breakdown structure.
type WBSElement struct {
	ID         string
	ScheduleID string
	ParentID   string // empty for root elements
	TaskID     string // optional linked task
	Code       string
	Name       string
	Level      int // root = 1
	SortOrder  int
	Progress   int // mirrors linked task's rolled-up progress
}

// MilestoneStatus is the reporting state of a milestone.
type MilestoneStatus string

const (
	MilestonePlanned  MilestoneStatus = "planned"
	MilestoneAtRisk   MilestoneStatus = "at_risk"
	MilestoneAchieved MilestoneStatus = "achieved"
	MilestoneMissed   MilestoneStatus = "missed"
)

// Milestone marks a target date within a schedule.
type Milestone struct {
	ID          string
	ScheduleID  string
	TaskID      string // optional linked task
	Name        string
	TargetDate  time.Time
	ActualDate  time.Time
	Status      MilestoneStatus
	Responsible string
}

// DeriveStatus returns the status a milestone should carry as of now:
// achieved once an actual date is set, missed once the target date has
// passed without one. Otherwise the stored status is kept.
func (m *Milestone) DeriveStatus(now time.Time) MilestoneStatus {
	if !m.ActualDate.IsZero() {
		return MilestoneAchieved
	}
	if !m.TargetDate.IsZero() && m.TargetDate.Before(Day(now)) {
		return MilestoneMissed
	}
	return m.Status
}

// ScheduleBaseline is an immutable point-in-time copy of a schedule's
// planned dates. Snapshot holds the frozen task data as JSON and is never
// rewritten after capture.
type ScheduleBaseline struct {
	ID         string
	ScheduleID string
	Name       string
	CapturedAt time.Time
	Snapshot   string // JSON, append-only
	Approved   bool
}

// ResourceAssignment allocates an externally owned resource to a task.
type ResourceAssignment struct {
	ID           string
	TaskID       string
	ResourceID   string // external resource subsystem id
	Allocation   int    // percent, 0 < x <= 100
	PlannedHours float64
	ActualHours  float64
	StartDate    time.Time
	EndDate      time.Time
}

// Variance compares the current schedule against a frozen baseline.
type Variance struct {
	ScheduleID       string
	BaselineID       string
	VarianceDays     int     // current end - baseline end
	PerformanceIndex float64 // baseline planned duration / current projected duration
	BaselineEnd      time.Time
	CurrentEnd       time.Time
}
