package importer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshharrison/planloom/internal/engine"
	"github.com/joshharrison/planloom/internal/model"
	"github.com/joshharrison/planloom/internal/store"
)

const diamondDef = `
schedule:
  name: rollout
  project: PRJ-7
  start: 2025-01-01
  end: 2025-01-12
tasks:
  - ref: design
    name: Design
    duration: 5
  - ref: docs
    name: Documentation
    duration: 3
  - ref: build
    name: Build
    duration: 4
  - ref: ship
    name: Ship
    duration: 2
dependencies:
  - {from: design, to: docs}
  - {from: design, to: build}
  - {from: docs, to: ship}
  - {from: build, to: ship}
milestones:
  - name: go-live
    target: 2025-01-12
    task: ship
`

func newTestImporter(t *testing.T, opts ...Option) (*Importer, *engine.Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/planloom.db", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	e := engine.New(s, zerolog.Nop())
	return New(s, e, zerolog.Nop(), opts...), e, s
}

func TestImportDiamond(t *testing.T) {
	var phases []Phase
	im, e, _ := newTestImporter(t, WithProgress(func(p Progress) {
		if len(phases) == 0 || phases[len(phases)-1] != p.Phase {
			phases = append(phases, p.Phase)
		}
	}))
	ctx := context.Background()

	res, err := im.Run(ctx, []byte(diamondDef))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Tasks)
	assert.Equal(t, 4, res.Dependencies)
	assert.Equal(t, 1, res.Milestones)
	assert.Equal(t, []Phase{PhaseParse, PhaseValidate, PhasePersist, PhaseRecompute, PhaseDone}, phases)

	sched, err := e.Schedule(ctx, res.ScheduleID)
	require.NoError(t, err)
	assert.Equal(t, "rollout", sched.Name)
	assert.Equal(t, model.DerivedValid, sched.Derived)

	tasks, err := e.Tasks(ctx, res.ScheduleID)
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	byName := map[string]model.Task{}
	for _, tk := range tasks {
		byName[tk.Name] = tk
	}
	assert.Equal(t, 1, byName["Documentation"].TotalFloat)
	assert.True(t, byName["Ship"].IsCritical)
	assert.Equal(t, 11, byName["Ship"].EarlyFinish)

	ms, err := e.Milestones(ctx, res.ScheduleID)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, byName["Ship"].ID, ms[0].TaskID)
}

func TestImportAssignsWBSCodesTopDown(t *testing.T) {
	im, e, _ := newTestImporter(t)
	def := `
schedule: {name: plan, start: 2025-01-01, end: 2025-02-01}
tasks:
  - {ref: leaf, name: Leaf, parent: mid, duration: 1}
  - {ref: root, name: Root, duration: 1}
  - {ref: mid, name: Mid, parent: root, duration: 1}
`
	res, err := im.Run(context.Background(), []byte(def))
	require.NoError(t, err)

	tasks, err := e.Tasks(context.Background(), res.ScheduleID)
	require.NoError(t, err)
	codes := map[string]string{}
	for _, tk := range tasks {
		codes[tk.Name] = tk.WBSCode
	}
	assert.Equal(t, "1", codes["Root"])
	assert.Equal(t, "1.1", codes["Mid"])
	assert.Equal(t, "1.1.1", codes["Leaf"])
}

func TestImportRejectsCycleBeforeWriting(t *testing.T) {
	im, _, s := newTestImporter(t)
	def := `
schedule: {name: plan, start: 2025-01-01, end: 2025-02-01}
tasks:
  - {ref: a, name: A, duration: 1}
  - {ref: b, name: B, duration: 1}
dependencies:
  - {from: a, to: b}
  - {from: b, to: a}
`
	_, err := im.Run(context.Background(), []byte(def))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")

	schedules, err := s.ListSchedules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, schedules, "nothing may be persisted when validation fails")
}

func TestImportRejectsUnknownRefs(t *testing.T) {
	im, _, _ := newTestImporter(t)
	def := `
schedule: {name: plan, start: 2025-01-01, end: 2025-02-01}
tasks:
  - {ref: a, name: A, duration: 1}
dependencies:
  - {from: a, to: ghost}
`
	_, err := im.Run(context.Background(), []byte(def))
	var orphan *model.OrphanReferenceError
	require.ErrorAs(t, err, &orphan)
	assert.Equal(t, "ghost", orphan.TaskID)
}

func TestImportRejectsParentLoop(t *testing.T) {
	im, _, _ := newTestImporter(t)
	def := `
schedule: {name: plan, start: 2025-01-01, end: 2025-02-01}
tasks:
  - {ref: a, name: A, parent: b, duration: 1}
  - {ref: b, name: B, parent: a, duration: 1}
`
	_, err := im.Run(context.Background(), []byte(def))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent loop")
}

func TestImportRejectsUnknownFields(t *testing.T) {
	im, _, _ := newTestImporter(t)
	def := `
schedule: {name: plan, start: 2025-01-01, end: 2025-02-01}
tasks:
  - {ref: a, name: A, duratoin: 1}
`
	_, err := im.Run(context.Background(), []byte(def))
	require.Error(t, err)
}

func TestImportParsesJSON(t *testing.T) {
	im, e, _ := newTestImporter(t)
	def := `{
  "schedule": {"name": "plan", "start": "2025-01-01", "end": "2025-02-01"},
  "tasks": [{"ref": "a", "name": "A", "duration": 3}]
}`
	res, err := im.Run(context.Background(), []byte(def))
	require.NoError(t, err)

	tasks, err := e.Tasks(context.Background(), res.ScheduleID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 3, tasks[0].EarlyFinish)
}

func TestImportCancelledRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	im, _, s := newTestImporter(t, WithProgress(func(p Progress) {
		// Cancel after the first task row is written.
		if p.Phase == PhasePersist && p.Done == 1 {
			cancel()
		}
	}))
	def := `
schedule: {name: plan, start: 2025-01-01, end: 2025-02-01}
tasks:
  - {ref: a, name: A, duration: 1}
  - {ref: b, name: B, duration: 1}
  - {ref: c, name: C, duration: 1}
`
	_, err := im.Run(ctx, []byte(def))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")

	schedules, err := s.ListSchedules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, schedules, "partial import must be rolled back")
}
