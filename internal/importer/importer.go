// Package importer loads whole schedules from YAML or JSON definition
// files. The entire batch is validated, including a full cycle check over
// the declared dependencies, before a single row is written; a cancelled
// or failed import rolls the schedule back rather than leaving a partial
// network behind.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	yaml "go.yaml.in/yaml/v3"

	"github.com/joshharrison/planloom/internal/engine"
	"github.com/joshharrison/planloom/internal/graph"
	"github.com/joshharrison/planloom/internal/model"
	"github.com/joshharrison/planloom/internal/store"
	"github.com/joshharrison/planloom/internal/wbs"
)

// Importer runs bulk schedule imports against the store, delegating the
// final recompute to the engine so derived fields are refreshed exactly
// once per import.
type Importer struct {
	store  *store.Store
	eng    *engine.Engine
	log    zerolog.Logger
	report func(Progress)
}

// Option configures an Importer.
type Option func(*Importer)

// WithProgress registers a callback invoked as the import moves through
// its phases. The callback runs on the importing goroutine.
func WithProgress(fn func(Progress)) Option {
	return func(im *Importer) { im.report = fn }
}

// New creates an Importer.
func New(s *store.Store, e *engine.Engine, log zerolog.Logger, opts ...Option) *Importer {
	im := &Importer{store: s, eng: e, log: log, report: func(Progress) {}}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Parse decodes a definition document. YAML is a superset of JSON, so
// both formats go through the same strict decoder; unknown fields are
// rejected.
func Parse(data []byte) (Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var def Definition
	if err := dec.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("parse definition: %w", err)
	}
	return def, nil
}

// Run imports one definition document and returns the created schedule.
// Nothing is persisted unless the whole batch validates; a failure or
// cancellation after persisting began deletes the partial schedule.
func (im *Importer) Run(ctx context.Context, data []byte) (Result, error) {
	started := time.Now()

	im.report(Progress{Phase: PhaseParse})
	def, err := Parse(data)
	if err != nil {
		return Result{}, err
	}

	im.report(Progress{Phase: PhaseValidate, Total: len(def.Tasks)})
	batch, err := validate(def)
	if err != nil {
		return Result{}, err
	}

	im.report(Progress{Phase: PhasePersist, Total: len(batch.tasks)})
	scheduleID, err := im.persist(ctx, batch)
	if err != nil {
		return Result{}, err
	}

	im.report(Progress{Phase: PhaseRecompute})
	if err := im.eng.Recompute(ctx, scheduleID); err != nil {
		im.rollback(ctx, scheduleID)
		return Result{}, err
	}

	res := Result{
		ScheduleID:   scheduleID,
		Tasks:        len(batch.tasks),
		Dependencies: len(batch.deps),
		Milestones:   len(batch.milestones),
		Took:         time.Since(started),
	}
	im.report(Progress{Phase: PhaseDone, Done: res.Tasks, Total: res.Tasks})
	im.log.Info().Str("schedule", scheduleID).Int("tasks", res.Tasks).
		Int("deps", res.Dependencies).Dur("took", res.Took).Msg("import complete")
	return res, nil
}

// batch is a validated definition with dates parsed and tasks ordered
// parent-before-child.
type batch struct {
	schedule   model.Schedule
	tasks      []model.Task // IDs hold definition refs until persist
	deps       []model.Dependency
	milestones []model.Milestone
}

var depTypes = map[string]model.DependencyType{
	"":                            model.FinishToStart,
	"fs":                          model.FinishToStart,
	"ss":                          model.StartToStart,
	"ff":                          model.FinishToFinish,
	"sf":                          model.StartToFinish,
	string(model.FinishToStart):   model.FinishToStart,
	string(model.StartToStart):    model.StartToStart,
	string(model.FinishToFinish):  model.FinishToFinish,
	string(model.StartToFinish):   model.StartToFinish,
}

func validate(def Definition) (batch, error) {
	var b batch
	if def.Schedule.Name == "" {
		return b, fmt.Errorf("schedule: name is required")
	}
	if len(def.Tasks) == 0 {
		return b, fmt.Errorf("schedule %q: no tasks defined", def.Schedule.Name)
	}

	start, err := parseDate("schedule", "start", def.Schedule.Start)
	if err != nil {
		return b, err
	}
	end, err := parseDate("schedule", "end", def.Schedule.End)
	if err != nil {
		return b, err
	}
	b.schedule = model.Schedule{
		Name:         def.Schedule.Name,
		ProjectRef:   def.Schedule.Project,
		PlannedStart: start,
		PlannedEnd:   end,
	}

	byRef := make(map[string]TaskDef, len(def.Tasks))
	for _, td := range def.Tasks {
		if td.Ref == "" {
			return b, fmt.Errorf("task %q: ref is required", td.Name)
		}
		if _, dup := byRef[td.Ref]; dup {
			return b, fmt.Errorf("task ref %q: defined twice", td.Ref)
		}
		byRef[td.Ref] = td
	}

	depth := make(map[string]int, len(def.Tasks))
	for ref := range byRef {
		d, err := parentDepth(byRef, ref, depth)
		if err != nil {
			return b, err
		}
		depth[ref] = d
	}

	for _, td := range def.Tasks {
		ts, err := parseDate("task "+td.Ref, "start", td.Start)
		if err != nil {
			return b, err
		}
		te, err := parseDate("task "+td.Ref, "end", td.End)
		if err != nil {
			return b, err
		}
		if !ts.IsZero() && !te.IsZero() && te.Before(ts) {
			return b, &model.InvalidDateRangeError{Entity: "task", ID: td.Ref, Start: ts, End: te}
		}
		if td.Progress < 0 || td.Progress > 100 {
			return b, fmt.Errorf("task %s: progress %d out of range [0,100]", td.Ref, td.Progress)
		}
		b.tasks = append(b.tasks, model.Task{
			ID:                 td.Ref,
			ParentID:           td.Parent,
			WBSCode:            td.WBS,
			Name:               td.Name,
			PlannedStart:       ts,
			PlannedEnd:         te,
			DurationDays:       td.Duration,
			Progress:           td.Progress,
			PlannedEffortHours: td.Effort,
		})
	}
	// Parents must be persisted before their children so WBS codes can
	// be issued top-down. Stable sort keeps the file order inside each
	// level.
	sort.SliceStable(b.tasks, func(i, j int) bool {
		return depth[b.tasks[i].ID] < depth[b.tasks[j].ID]
	})

	for _, dd := range def.Dependencies {
		dt, ok := depTypes[dd.Type]
		if !ok {
			return b, fmt.Errorf("dependency %s -> %s: unknown type %q", dd.From, dd.To, dd.Type)
		}
		if _, ok := byRef[dd.From]; !ok {
			return b, &model.OrphanReferenceError{Kind: "dependency", TaskID: dd.From}
		}
		if _, ok := byRef[dd.To]; !ok {
			return b, &model.OrphanReferenceError{Kind: "dependency", TaskID: dd.To}
		}
		b.deps = append(b.deps, model.Dependency{
			PredecessorID: dd.From,
			SuccessorID:   dd.To,
			Type:          dt,
			LagDays:       dd.Lag,
		})
	}

	// Whole-batch cycle check before anything touches the database.
	g, err := graph.Build("import", b.tasks, b.deps)
	if err != nil {
		return b, err
	}
	if _, err := g.TopoOrder(); err != nil {
		if path := g.DetectCycle(); path != nil {
			return b, fmt.Errorf("definition contains a dependency cycle: %v", path)
		}
		return b, err
	}

	for _, md := range def.Milestones {
		target, err := parseDate("milestone "+md.Name, "target", md.Target)
		if err != nil {
			return b, err
		}
		if md.Task != "" {
			if _, ok := byRef[md.Task]; !ok {
				return b, &model.OrphanReferenceError{Kind: "milestone", TaskID: md.Task}
			}
		}
		b.milestones = append(b.milestones, model.Milestone{
			Name:        md.Name,
			TargetDate:  target,
			TaskID:      md.Task,
			Responsible: md.Responsible,
		})
	}
	return b, nil
}

// parentDepth resolves a ref's depth in the parent tree, rejecting
// unknown parents and parent loops.
func parentDepth(byRef map[string]TaskDef, ref string, memo map[string]int) (int, error) {
	seen := map[string]bool{}
	d := 0
	for cur := ref; ; {
		if done, ok := memo[cur]; ok {
			return d + done, nil
		}
		parent := byRef[cur].Parent
		if parent == "" {
			return d, nil
		}
		if _, ok := byRef[parent]; !ok {
			return 0, fmt.Errorf("task %s: unknown parent %q", cur, parent)
		}
		if seen[parent] {
			return 0, fmt.Errorf("task %s: parent loop through %q", ref, parent)
		}
		seen[parent] = true
		cur = parent
		d++
	}
}

func (im *Importer) persist(ctx context.Context, b batch) (string, error) {
	b.schedule.ID = uuid.NewString()
	b.schedule.Status = "active"
	if err := im.store.CreateSchedule(ctx, b.schedule); err != nil {
		return "", err
	}

	ids := make(map[string]string, len(b.tasks)) // ref -> db id
	var codes []string
	for i, t := range b.tasks {
		if err := ctx.Err(); err != nil {
			im.rollback(ctx, b.schedule.ID)
			return "", fmt.Errorf("import cancelled: %w", err)
		}
		ref := t.ID
		t.ID = uuid.NewString()
		t.ScheduleID = b.schedule.ID
		t.Status = model.StatusNotStarted
		if t.Progress > 0 {
			t.Status = model.StatusInProgress
		}
		if t.ParentID != "" {
			t.ParentID = ids[t.ParentID]
		}
		parentCode := ""
		if t.ParentID != "" {
			parentCode = codeOf(b.tasks, t.ParentID)
		}
		if t.WBSCode == "" {
			t.WBSCode = wbs.NextCode(codes, parentCode)
		}
		codes = append(codes, t.WBSCode)
		b.tasks[i] = t
		ids[ref] = t.ID

		if err := im.store.InsertTask(ctx, t); err != nil {
			im.rollback(ctx, b.schedule.ID)
			return "", fmt.Errorf("task %s: %w", ref, err)
		}
		im.report(Progress{Phase: PhasePersist, Done: i + 1, Total: len(b.tasks)})
	}

	for _, d := range b.deps {
		if err := ctx.Err(); err != nil {
			im.rollback(ctx, b.schedule.ID)
			return "", fmt.Errorf("import cancelled: %w", err)
		}
		d.ID = uuid.NewString()
		d.ScheduleID = b.schedule.ID
		d.PredecessorID = ids[d.PredecessorID]
		d.SuccessorID = ids[d.SuccessorID]
		if err := im.store.InsertDependency(ctx, d); err != nil {
			im.rollback(ctx, b.schedule.ID)
			return "", err
		}
	}

	for _, m := range b.milestones {
		if err := ctx.Err(); err != nil {
			im.rollback(ctx, b.schedule.ID)
			return "", fmt.Errorf("import cancelled: %w", err)
		}
		m.ID = uuid.NewString()
		m.ScheduleID = b.schedule.ID
		if m.TaskID != "" {
			m.TaskID = ids[m.TaskID]
		}
		if err := im.store.InsertMilestone(ctx, m); err != nil {
			im.rollback(ctx, b.schedule.ID)
			return "", err
		}
	}
	return b.schedule.ID, nil
}

func codeOf(tasks []model.Task, dbID string) string {
	for i := range tasks {
		if tasks[i].ID == dbID {
			return tasks[i].WBSCode
		}
	}
	return ""
}

// rollback removes a half-imported schedule. It ignores the caller's
// context: the usual reason we are here is that it was cancelled.
func (im *Importer) rollback(_ context.Context, scheduleID string) {
	if err := im.store.DeleteScheduleCascade(context.Background(), scheduleID); err != nil {
		im.log.Error().Str("schedule", scheduleID).Err(err).Msg("rollback of partial import failed")
	}
}

func parseDate(entity, field, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	d, err := model.ParseDate(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: bad %s date %q: %w", entity, field, v, err)
	}
	return d, nil
}
