// Package baseline captures immutable schedule snapshots and computes
// variance against them. Snapshots are stored as JSON and are append-only:
// once captured they are read, never rewritten, so historical WBS codes
// and dates stay intact even after reparenting or re-planning.
package baseline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/joshharrison/planloom/internal/model"
)

// Snapshot is the frozen shape serialized into the baselines table.
type Snapshot struct {
	ScheduleID   string         `json:"schedule_id"`
	CapturedAt   time.Time      `json:"captured_at"`
	PlannedStart string         `json:"planned_start"`
	PlannedEnd   string         `json:"planned_end"`
	Tasks        []SnapshotTask `json:"tasks"`
}

// SnapshotTask is one task's planned window at capture time.
type SnapshotTask struct {
	ID           string `json:"id"`
	WBSCode      string `json:"wbs_code"`
	ParentID     string `json:"parent_id,omitempty"`
	PlannedStart string `json:"planned_start"`
	PlannedEnd   string `json:"planned_end"`
	DurationDays int    `json:"duration_days"`
}

// Capture serializes the schedule's current planned dates and WBS
// structure into a snapshot.
func Capture(sched model.Schedule, tasks []model.Task, now time.Time) (string, error) {
	snap := Snapshot{
		ScheduleID:   sched.ID,
		CapturedAt:   now.UTC(),
		PlannedStart: model.FormatDate(sched.PlannedStart),
		PlannedEnd:   model.FormatDate(sched.PlannedEnd),
	}
	for i := range tasks {
		t := &tasks[i]
		snap.Tasks = append(snap.Tasks, SnapshotTask{
			ID:           t.ID,
			WBSCode:      t.WBSCode,
			ParentID:     t.ParentID,
			PlannedStart: model.FormatDate(t.PlannedStart),
			PlannedEnd:   model.FormatDate(t.PlannedEnd),
			DurationDays: t.Duration(),
		})
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}

// End returns the baseline's projected end date: the latest task
// planned_end in the snapshot, or the schedule-level planned_end when no
// task carries dates. Reads straight off the stored JSON.
func End(snapshot string) time.Time {
	end := parseDate(gjson.Get(snapshot, "planned_end").String())
	for _, v := range gjson.Get(snapshot, "tasks.#.planned_end").Array() {
		if d := parseDate(v.String()); !d.IsZero() && d.After(end) {
			end = d
		}
	}
	return end
}

// Start returns the baseline's start date: the earliest task planned_start
// in the snapshot, or the schedule-level planned_start.
func Start(snapshot string) time.Time {
	start := parseDate(gjson.Get(snapshot, "planned_start").String())
	for _, v := range gjson.Get(snapshot, "tasks.#.planned_start").Array() {
		d := parseDate(v.String())
		if d.IsZero() {
			continue
		}
		if start.IsZero() || d.Before(start) {
			start = d
		}
	}
	return start
}

// TaskCount returns the number of tasks frozen in the snapshot.
func TaskCount(snapshot string) int {
	return int(gjson.Get(snapshot, "tasks.#").Int())
}

// ComputeVariance compares the current projected window against the
// frozen baseline. Variance days = current end - baseline end.
// Performance index = baseline planned duration / current projected
// duration (1.0 means on plan, below 1.0 means the schedule has grown).
func ComputeVariance(b model.ScheduleBaseline, currentStart, currentEnd time.Time) (model.Variance, error) {
	baseEnd := End(b.Snapshot)
	baseStart := Start(b.Snapshot)
	if baseEnd.IsZero() {
		return model.Variance{}, fmt.Errorf("baseline %s: snapshot has no end date", b.ID)
	}

	v := model.Variance{
		ScheduleID:  b.ScheduleID,
		BaselineID:  b.ID,
		BaselineEnd: baseEnd,
		CurrentEnd:  currentEnd,
	}
	if !currentEnd.IsZero() {
		v.VarianceDays = model.DaysBetween(baseEnd, currentEnd)
	}

	baseDur := model.DaysBetween(baseStart, baseEnd)
	curDur := 0
	if !currentStart.IsZero() && !currentEnd.IsZero() {
		curDur = model.DaysBetween(currentStart, currentEnd)
	}
	if curDur > 0 && baseDur > 0 {
		v.PerformanceIndex = float64(baseDur) / float64(curDur)
	}
	return v, nil
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return time.Time{}
	}
	return d
}
