package cpm

// Result holds the complete critical path analysis for one schedule.
// All values are calendar-day offsets from the schedule's planned start.
type Result struct {
	ScheduleID      string
	Tasks           map[string]*TaskSchedule
	CriticalPath    []string // critical task ids in topological order
	ProjectDuration int      // max early finish across all tasks
	Horizon         int      // backward-pass seed: max(ProjectDuration, schedule end offset)
	TopoOrder       []string
}

// TaskSchedule holds the derived scheduling facts for a single task.
type TaskSchedule struct {
	TaskID      string
	EarlyStart  int
	EarlyFinish int
	LateStart   int
	LateFinish  int
	TotalFloat  int
	FreeFloat   int
	IsCritical  bool
}
