package cpm

import (
	"github.com/joshharrison/planloom/internal/graph"
	"github.com/joshharrison/planloom/internal/model"
)

// Analyze performs critical path method analysis on a task graph.
// scheduleEndOffset is the schedule's planned end as a day offset from its
// planned start (0 when the schedule carries no end date); the backward
// pass is seeded from it or from the longest path, whichever is later.
//
// Durations are calendar days derived from each task's planned dates, with
// the stored duration column as fallback (see model.Task.Duration).
func Analyze(g *graph.TaskGraph, scheduleEndOffset int) (*Result, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}

	durations := make(map[string]int, len(g.Tasks))
	for id, t := range g.Tasks {
		d := t.Duration()
		if d < 0 {
			return nil, &model.InvalidDateRangeError{
				Entity: "task", ID: id, Start: t.PlannedStart, End: t.PlannedEnd,
			}
		}
		durations[id] = d
	}

	result := &Result{
		ScheduleID: g.ScheduleID,
		Tasks:      make(map[string]*TaskSchedule, len(order)),
		TopoOrder:  order,
	}
	for _, id := range order {
		result.Tasks[id] = &TaskSchedule{TaskID: id}
	}

	// Forward pass: ES is the maximum constraint imposed by each
	// predecessor given the dependency type and lag, floored at the
	// schedule start. Equal constraints need no tie-break; max wins.
	for _, id := range order {
		ts := result.Tasks[id]
		es := 0
		for _, e := range g.In[id] {
			pred := result.Tasks[e.PredecessorID]
			var c int
			switch e.Type {
			case model.StartToStart:
				c = pred.EarlyStart + e.LagDays
			case model.FinishToFinish:
				c = pred.EarlyFinish + e.LagDays - durations[id]
			case model.StartToFinish:
				c = pred.EarlyStart + e.LagDays - durations[id]
			default: // finish_to_start
				c = pred.EarlyFinish + e.LagDays
			}
			if c > es {
				es = c
			}
		}
		ts.EarlyStart = es
		ts.EarlyFinish = es + durations[id]
	}

	for _, ts := range result.Tasks {
		if ts.EarlyFinish > result.ProjectDuration {
			result.ProjectDuration = ts.EarlyFinish
		}
	}
	result.Horizon = result.ProjectDuration
	if scheduleEndOffset > result.Horizon {
		result.Horizon = scheduleEndOffset
	}

	// Backward pass in reverse topological order: LF is the minimum
	// constraint from each successor (mirrored formulas); terminal tasks
	// are seeded from the horizon.
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		ts := result.Tasks[id]

		lf := result.Horizon
		for _, e := range g.Out[id] {
			succ := result.Tasks[e.SuccessorID]
			var c int
			switch e.Type {
			case model.StartToStart:
				c = succ.LateStart - e.LagDays + durations[id]
			case model.FinishToFinish:
				c = succ.LateFinish - e.LagDays
			case model.StartToFinish:
				c = succ.LateFinish - e.LagDays + durations[id]
			default: // finish_to_start
				c = succ.LateStart - e.LagDays
			}
			if c < lf {
				lf = c
			}
		}
		ts.LateFinish = lf
		ts.LateStart = lf - durations[id]

		ts.TotalFloat = ts.LateStart - ts.EarlyStart
		ts.IsCritical = ts.TotalFloat == 0
	}

	// Free float: how far the task can slip without moving any successor's
	// early dates. Tasks with no successors fall back to total float.
	for _, id := range order {
		ts := result.Tasks[id]
		if len(g.Out[id]) == 0 {
			ts.FreeFloat = ts.TotalFloat
			continue
		}
		ff := ts.TotalFloat
		for _, e := range g.Out[id] {
			succ := result.Tasks[e.SuccessorID]
			var slack int
			switch e.Type {
			case model.StartToStart:
				slack = succ.EarlyStart - (ts.EarlyStart + e.LagDays)
			case model.FinishToFinish:
				slack = succ.EarlyFinish - (ts.EarlyFinish + e.LagDays)
			case model.StartToFinish:
				slack = succ.EarlyFinish - (ts.EarlyStart + e.LagDays)
			default: // finish_to_start
				slack = succ.EarlyStart - (ts.EarlyFinish + e.LagDays)
			}
			if slack < ff {
				ff = slack
			}
		}
		if ff < 0 {
			ff = 0
		}
		ts.FreeFloat = ff
	}

	// Critical path: critical tasks in topological order.
	for _, id := range order {
		if result.Tasks[id].IsCritical {
			result.CriticalPath = append(result.CriticalPath, id)
		}
	}

	return result, nil
}
