package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshharrison/planloom/internal/model"
	"github.com/joshharrison/planloom/internal/store"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/planloom.db", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, zerolog.Nop(), opts...), s
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func newSchedule(t *testing.T, e *Engine, start, end string) string {
	t.Helper()
	id, err := e.CreateSchedule(context.Background(), model.Schedule{
		Name:         "rollout",
		PlannedStart: date(t, start),
		PlannedEnd:   date(t, end),
	})
	require.NoError(t, err)
	return id
}

func addTask(t *testing.T, e *Engine, scheduleID, name string, days int) string {
	t.Helper()
	id, err := e.AddTask(context.Background(), model.Task{
		ScheduleID:   scheduleID,
		Name:         name,
		DurationDays: days,
	})
	require.NoError(t, err)
	return id
}

func addDep(t *testing.T, e *Engine, pred, succ string) {
	t.Helper()
	require.NoError(t, e.AddDependency(context.Background(), model.Dependency{
		PredecessorID: pred,
		SuccessorID:   succ,
	}))
}

func taskByID(t *testing.T, e *Engine, scheduleID, id string) model.Task {
	t.Helper()
	tasks, err := e.Tasks(context.Background(), scheduleID)
	require.NoError(t, err)
	for _, tk := range tasks {
		if tk.ID == id {
			return tk
		}
	}
	t.Fatalf("task %s not found", id)
	return model.Task{}
}

func TestDiamondNetworkEndToEnd(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-01-12")

	a := addTask(t, e, sid, "design", 5)
	b := addTask(t, e, sid, "docs", 3)
	c := addTask(t, e, sid, "build", 4)
	d := addTask(t, e, sid, "ship", 2)
	addDep(t, e, a, b)
	addDep(t, e, a, c)
	addDep(t, e, b, d)
	addDep(t, e, c, d)

	ta := taskByID(t, e, sid, a)
	tb := taskByID(t, e, sid, b)
	tc := taskByID(t, e, sid, c)
	td := taskByID(t, e, sid, d)

	assert.Equal(t, 0, ta.EarlyStart)
	assert.Equal(t, 5, ta.EarlyFinish)
	assert.Equal(t, 11, td.EarlyFinish)
	assert.Equal(t, 1, tb.TotalFloat)
	assert.False(t, tb.IsCritical)
	assert.True(t, ta.IsCritical)
	assert.True(t, tc.IsCritical)
	assert.True(t, td.IsCritical)

	sched, err := e.Schedule(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, model.DerivedValid, sched.Derived)

	path, err := e.CriticalPath(ctx, sid)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, []string{a, c, d}, []string{path[0].ID, path[1].ID, path[2].ID})
}

func TestCycleRejectedWithoutStateChange(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")

	a := addTask(t, e, sid, "a", 2)
	b := addTask(t, e, sid, "b", 2)
	c := addTask(t, e, sid, "c", 2)
	addDep(t, e, a, b)
	addDep(t, e, b, c)

	err := e.AddDependency(ctx, model.Dependency{PredecessorID: c, SuccessorID: a})
	var cycle *model.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.NotEmpty(t, cycle.Path)

	deps, err := e.Dependencies(ctx, sid)
	require.NoError(t, err)
	assert.Len(t, deps, 2, "rejected edge must not be persisted")

	sched, err := e.Schedule(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, model.DerivedValid, sched.Derived)

	// The schedule is still fully usable afterwards.
	require.NoError(t, e.Recompute(ctx, sid))
}

func TestSelfDependencyRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")
	a := addTask(t, e, sid, "a", 2)

	err := e.AddDependency(context.Background(), model.Dependency{PredecessorID: a, SuccessorID: a})
	var cycle *model.CycleError
	require.ErrorAs(t, err, &cycle)
}

func TestCrossScheduleDependencyRejected(t *testing.T) {
	e, _ := newTestEngine(t)
	s1 := newSchedule(t, e, "2025-01-01", "2025-02-01")
	s2 := newSchedule(t, e, "2025-01-01", "2025-02-01")
	a := addTask(t, e, s1, "a", 2)
	b := addTask(t, e, s2, "b", 2)

	err := e.AddDependency(context.Background(), model.Dependency{PredecessorID: a, SuccessorID: b})
	var cross *model.CrossScheduleError
	require.ErrorAs(t, err, &cross)
}

func TestEffortWeightedRollup(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")

	parent := addTask(t, e, sid, "phase", 0)
	c1, err := e.AddTask(ctx, model.Task{
		ScheduleID: sid, ParentID: parent, Name: "small",
		DurationDays: 2, PlannedEffortHours: 10,
	})
	require.NoError(t, err)
	c2, err := e.AddTask(ctx, model.Task{
		ScheduleID: sid, ParentID: parent, Name: "large",
		DurationDays: 2, PlannedEffortHours: 30,
	})
	require.NoError(t, err)

	require.NoError(t, e.UpdateTaskProgress(ctx, c1, 50, -1))
	require.NoError(t, e.UpdateTaskProgress(ctx, c2, 100, -1))

	// (10*50 + 30*100) / 40 = 87.5, rounded half-up.
	assert.Equal(t, 88, taskByID(t, e, sid, parent).Progress)

	p, err := e.Rollup(ctx, parent)
	require.NoError(t, err)
	assert.Equal(t, 88, p)
}

func TestParentProgressIsDerivedOnly(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")

	parent := addTask(t, e, sid, "phase", 0)
	_, err := e.AddTask(ctx, model.Task{ScheduleID: sid, ParentID: parent, Name: "leaf", DurationDays: 1})
	require.NoError(t, err)

	err = e.UpdateTaskProgress(ctx, parent, 40, -1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "derived from children")
}

func TestWBSCodesNeverReused(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")

	root := addTask(t, e, sid, "root", 1)
	require.Equal(t, "1", taskByID(t, e, sid, root).WBSCode)

	c1, err := e.AddTask(ctx, model.Task{ScheduleID: sid, ParentID: root, Name: "one", DurationDays: 1})
	require.NoError(t, err)
	c2, err := e.AddTask(ctx, model.Task{ScheduleID: sid, ParentID: root, Name: "two", DurationDays: 1})
	require.NoError(t, err)
	assert.Equal(t, "1.1", taskByID(t, e, sid, c1).WBSCode)
	assert.Equal(t, "1.2", taskByID(t, e, sid, c2).WBSCode)

	require.NoError(t, e.DeleteTask(ctx, c1))

	next, err := e.NextWBSCode(ctx, sid, "1")
	require.NoError(t, err)
	assert.Equal(t, "1.3", next, "deleted codes are never reissued")
}

func TestWBSCodeImmutableOnUpdate(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")
	id := addTask(t, e, sid, "root", 1)

	got := taskByID(t, e, sid, id)
	got.WBSCode = "9.9"
	got.Name = "renamed"
	require.NoError(t, e.UpdateTask(ctx, got))

	after := taskByID(t, e, sid, id)
	assert.Equal(t, "renamed", after.Name)
	assert.Equal(t, "1", after.WBSCode)
}

func TestUpdateTaskDatesRecomputes(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-01-08")

	id, err := e.AddTask(ctx, model.Task{
		ScheduleID:   sid,
		Name:         "a",
		PlannedStart: date(t, "2025-01-01"),
		PlannedEnd:   date(t, "2025-01-04"),
	})
	require.NoError(t, err)
	require.Equal(t, 3, taskByID(t, e, sid, id).EarlyFinish)

	require.NoError(t, e.UpdateTaskDates(ctx, id, time.Time{}, date(t, "2025-01-08"), 0))
	got := taskByID(t, e, sid, id)
	assert.Equal(t, date(t, "2025-01-01"), got.PlannedStart)
	assert.Equal(t, 7, got.EarlyFinish)
	assert.True(t, got.IsCritical)

	err = e.UpdateTaskDates(ctx, id, date(t, "2025-02-01"), time.Time{}, 0)
	var bad *model.InvalidDateRangeError
	require.ErrorAs(t, err, &bad)
}

// Date and progress updates racing on the same task must both land:
// each path writes the full row back, so it has to re-read under the
// schedule lock or the slower writer reverts the faster one.
func TestConcurrentUpdatesKeepBothWrites(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-03-01")

	id, err := e.AddTask(ctx, model.Task{
		ScheduleID:   sid,
		Name:         "migrate",
		PlannedStart: date(t, "2025-01-01"),
		PlannedEnd:   date(t, "2025-01-06"),
	})
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		end := date(t, "2025-01-10").AddDate(0, 0, i%10)
		pct := (i*7)%99 + 1

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.UpdateTaskDates(ctx, id, time.Time{}, end, 0))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, e.UpdateTaskProgress(ctx, id, pct, -1))
		}()
		wg.Wait()

		got := taskByID(t, e, sid, id)
		assert.True(t, got.PlannedEnd.Equal(end),
			"iteration %d: planned_end %s, want %s", i, got.PlannedEnd, end)
		assert.Equal(t, pct, got.Progress, "iteration %d", i)
	}
}

func TestBaselineVariance(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-06-01")

	id, err := e.AddTask(ctx, model.Task{
		ScheduleID:   sid,
		Name:         "everything",
		PlannedStart: date(t, "2025-01-01"),
		PlannedEnd:   date(t, "2025-06-01"),
	})
	require.NoError(t, err)

	bid, err := e.CreateBaseline(ctx, sid, "approved plan")
	require.NoError(t, err)

	v, err := e.Variance(ctx, sid, bid)
	require.NoError(t, err)
	assert.Equal(t, 0, v.VarianceDays)
	assert.InDelta(t, 1.0, v.PerformanceIndex, 1e-9)

	// Slip the only task by nine days; the baseline must not move.
	tk := taskByID(t, e, sid, id)
	tk.PlannedEnd = date(t, "2025-06-10")
	require.NoError(t, e.UpdateTask(ctx, tk))

	v, err = e.Variance(ctx, sid, bid)
	require.NoError(t, err)
	assert.Equal(t, 9, v.VarianceDays)
	assert.Less(t, v.PerformanceIndex, 1.0)
	assert.Equal(t, date(t, "2025-06-01"), v.BaselineEnd)
	assert.Equal(t, date(t, "2025-06-10"), v.CurrentEnd)

	sched, err := e.Schedule(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 9, sched.VarianceDays)
}

func TestBaselineStampsTaskDates(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")
	id, err := e.AddTask(ctx, model.Task{
		ScheduleID:   sid,
		Name:         "a",
		PlannedStart: date(t, "2025-01-01"),
		PlannedEnd:   date(t, "2025-01-10"),
	})
	require.NoError(t, err)

	_, err = e.CreateBaseline(ctx, sid, "bl-1")
	require.NoError(t, err)

	tk := taskByID(t, e, sid, id)
	assert.Equal(t, tk.PlannedStart, tk.BaselineStart)
	assert.Equal(t, tk.PlannedEnd, tk.BaselineEnd)
}

func TestMilestoneRefresh(t *testing.T) {
	now := date(t, "2025-03-01")
	e, _ := newTestEngine(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-06-01")

	past, err := e.AddMilestone(ctx, model.Milestone{
		ScheduleID: sid, Name: "kickoff", TargetDate: date(t, "2025-02-01"),
	})
	require.NoError(t, err)
	future, err := e.AddMilestone(ctx, model.Milestone{
		ScheduleID: sid, Name: "handover", TargetDate: date(t, "2025-05-01"),
	})
	require.NoError(t, err)
	done, err := e.AddMilestone(ctx, model.Milestone{
		ScheduleID: sid, Name: "contract", TargetDate: date(t, "2025-01-15"),
	})
	require.NoError(t, err)
	require.NoError(t, e.AchieveMilestone(ctx, done, date(t, "2025-01-14")))

	changed, err := e.RefreshMilestones(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	byID := map[string]model.MilestoneStatus{}
	ms, err := e.Milestones(ctx, sid)
	require.NoError(t, err)
	for _, m := range ms {
		byID[m.ID] = m.Status
	}
	assert.Equal(t, model.MilestoneMissed, byID[past])
	assert.Equal(t, model.MilestonePlanned, byID[future])
	assert.Equal(t, model.MilestoneAchieved, byID[done])
}

type fixedAvailability int

func (f fixedAvailability) Available(context.Context, string, time.Time, time.Time) (int, error) {
	return int(f), nil
}

func TestAssignResourceChecksAvailability(t *testing.T) {
	e, _ := newTestEngine(t, WithAvailability(fixedAvailability(50)))
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")
	id, err := e.AddTask(ctx, model.Task{
		ScheduleID:   sid,
		Name:         "a",
		PlannedStart: date(t, "2025-01-01"),
		PlannedEnd:   date(t, "2025-01-10"),
	})
	require.NoError(t, err)

	_, err = e.AssignResource(ctx, model.ResourceAssignment{
		TaskID: id, ResourceID: "res-1", Allocation: 80,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "over-allocated")

	aid, err := e.AssignResource(ctx, model.ResourceAssignment{
		TaskID: id, ResourceID: "res-1", Allocation: 40,
	})
	require.NoError(t, err)

	got, err := e.Assignments(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, aid, got[0].ID)
	assert.Equal(t, date(t, "2025-01-01"), got[0].StartDate, "window defaults to the task's planned dates")
}

func TestCriticalPathRefusedWhenDerivedInvalid(t *testing.T) {
	e, s := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")
	addTask(t, e, sid, "a", 2)

	require.NoError(t, s.SetDerivedState(ctx, sid, model.DerivedInvalid))

	_, err := e.CriticalPath(ctx, sid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recompute required")
}

func TestDeleteTaskCascadesAndRecomputes(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	sid := newSchedule(t, e, "2025-01-01", "2025-01-03")

	a := addTask(t, e, sid, "a", 2)
	b := addTask(t, e, sid, "b", 3)
	addDep(t, e, a, b)

	require.NoError(t, e.DeleteTask(ctx, b))

	deps, err := e.Dependencies(ctx, sid)
	require.NoError(t, err)
	assert.Empty(t, deps)

	ta := taskByID(t, e, sid, a)
	assert.True(t, ta.IsCritical)
	assert.Equal(t, 2, ta.EarlyFinish)

	_, err = e.Rollup(ctx, b)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestDependencyOnMissingTask(t *testing.T) {
	e, _ := newTestEngine(t)
	sid := newSchedule(t, e, "2025-01-01", "2025-02-01")
	a := addTask(t, e, sid, "a", 2)

	err := e.AddDependency(context.Background(), model.Dependency{
		PredecessorID: a, SuccessorID: "ghost",
	})
	var orphan *model.OrphanReferenceError
	require.True(t, errors.As(err, &orphan))
	assert.Equal(t, "ghost", orphan.TaskID)
}
