package refresher

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshharrison/planloom/internal/engine"
	"github.com/joshharrison/planloom/internal/model"
	"github.com/joshharrison/planloom/internal/store"
)

func setup(t *testing.T, now time.Time) (*Service, *engine.Engine) {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/planloom.db", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	e := engine.New(s, zerolog.Nop(), engine.WithClock(func() time.Time { return now }))
	return New(e, zerolog.Nop(), Config{}), e
}

func mustDate(t *testing.T, v string) time.Time {
	t.Helper()
	d, err := model.ParseDate(v)
	require.NoError(t, err)
	return d
}

func TestSweepMilestonesAcrossSchedules(t *testing.T) {
	now := mustDate(t, "2025-03-01")
	svc, e := setup(t, now)
	ctx := context.Background()

	for _, target := range []string{"2025-02-01", "2025-02-15"} {
		sid, err := e.CreateSchedule(ctx, model.Schedule{
			Name:         "s-" + target,
			PlannedStart: mustDate(t, "2025-01-01"),
			PlannedEnd:   mustDate(t, "2025-06-01"),
		})
		require.NoError(t, err)
		_, err = e.AddMilestone(ctx, model.Milestone{
			ScheduleID: sid, Name: "m", TargetDate: mustDate(t, target),
		})
		require.NoError(t, err)
	}

	changed, err := svc.SweepMilestones(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	// A second sweep finds nothing left to do.
	changed, err = svc.SweepMilestones(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)
}

func TestRefreshVarianceSkipsUnbaselined(t *testing.T) {
	now := mustDate(t, "2025-03-01")
	svc, e := setup(t, now)
	ctx := context.Background()

	plain, err := e.CreateSchedule(ctx, model.Schedule{
		Name:         "no-baseline",
		PlannedStart: mustDate(t, "2025-01-01"),
		PlannedEnd:   mustDate(t, "2025-06-01"),
	})
	require.NoError(t, err)

	tracked, err := e.CreateSchedule(ctx, model.Schedule{
		Name:         "tracked",
		PlannedStart: mustDate(t, "2025-01-01"),
		PlannedEnd:   mustDate(t, "2025-06-01"),
	})
	require.NoError(t, err)
	id, err := e.AddTask(ctx, model.Task{
		ScheduleID:   tracked,
		Name:         "work",
		PlannedStart: mustDate(t, "2025-01-01"),
		PlannedEnd:   mustDate(t, "2025-06-01"),
	})
	require.NoError(t, err)
	_, err = e.CreateBaseline(ctx, tracked, "bl")
	require.NoError(t, err)

	tasks, err := e.Tasks(ctx, tracked)
	require.NoError(t, err)
	tk := tasks[0]
	require.Equal(t, id, tk.ID)
	tk.PlannedEnd = mustDate(t, "2025-06-04")
	require.NoError(t, e.UpdateTask(ctx, tk))

	refreshed, err := svc.RefreshVariance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)

	sched, err := e.Schedule(ctx, tracked)
	require.NoError(t, err)
	assert.Equal(t, 3, sched.VarianceDays)

	sched, err = e.Schedule(ctx, plain)
	require.NoError(t, err)
	assert.Equal(t, 0, sched.VarianceDays)
}

func TestStartRejectsBadSpec(t *testing.T) {
	svc, _ := setup(t, time.Now())
	svc.cfg = Config{MilestoneSpec: "not a cron spec"}
	err := svc.Start(context.Background())
	require.Error(t, err)
}

func TestStartStop(t *testing.T) {
	svc, _ := setup(t, time.Now())
	svc.cfg = Config{MilestoneSpec: "@hourly", VarianceSpec: "@daily"}
	require.NoError(t, svc.Start(context.Background()))
	require.Error(t, svc.Start(context.Background()), "second start must be rejected")
	svc.Stop()
	svc.Stop() // stop is idempotent
}
