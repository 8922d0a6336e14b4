// Package engine is the scheduling core: every task or dependency
// mutation passes through validation here, is persisted, and triggers a
// CPM and rollup recompute before the mutation returns. All writes to one
// schedule are serialized behind a per-schedule lock; reads of derived
// fields consume the last committed snapshot without the lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/joshharrison/planloom/internal/cpm"
	"github.com/joshharrison/planloom/internal/graph"
	"github.com/joshharrison/planloom/internal/model"
	"github.com/joshharrison/planloom/internal/rollup"
	"github.com/joshharrison/planloom/internal/store"
)

// AvailabilityLookup asks the external resource subsystem how much of a
// resource is free over a date range, as a percentage. Used only to
// validate allocations; availability never drives CPM.
type AvailabilityLookup interface {
	Available(ctx context.Context, resourceID string, from, to time.Time) (int, error)
}

// Engine owns derived schedule state. Derived CPM fields on task rows are
// recomputed wholesale by Recompute; nothing else writes them.
type Engine struct {
	store *store.Store
	log   zerolog.Logger
	avail AvailabilityLookup // nil disables availability validation
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithAvailability wires the external resource availability lookup.
func WithAvailability(a AvailabilityLookup) Option {
	return func(e *Engine) { e.avail = a }
}

// WithClock overrides the engine clock (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given store.
func New(s *store.Store, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		log:   log,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lock acquires the per-schedule exclusive lock. Held across
// validate -> persist -> CPM recompute -> rollup recompute so concurrent
// edits can neither interleave validation nor read a half-updated graph.
func (e *Engine) lock(scheduleID string) func() {
	e.mu.Lock()
	m, ok := e.locks[scheduleID]
	if !ok {
		m = &sync.Mutex{}
		e.locks[scheduleID] = m
	}
	e.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Recompute rebuilds the dependency graph for a schedule, re-runs the
// CPM forward/backward pass and the progress rollup, and commits all
// derived fields in one transaction.
func (e *Engine) Recompute(ctx context.Context, scheduleID string) error {
	defer e.lock(scheduleID)()
	return e.recomputeLocked(ctx, scheduleID)
}

// recomputeLocked does the actual work; callers hold the schedule lock.
func (e *Engine) recomputeLocked(ctx context.Context, scheduleID string) error {
	started := e.now()

	sched, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	tasks, err := e.store.TasksBySchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return e.store.SetDerivedState(ctx, scheduleID, model.DerivedValid)
	}
	deps, err := e.store.DependenciesBySchedule(ctx, scheduleID)
	if err != nil {
		return err
	}

	for i := range tasks {
		if tasks[i].DurationMismatch() {
			e.log.Warn().
				Str("schedule", scheduleID).
				Str("task", tasks[i].ID).
				Int("stored_days", tasks[i].DurationDays).
				Int("derived_days", tasks[i].Duration()).
				Msg("stored duration disagrees with planned dates; using derived value")
		}
	}

	g, err := graph.Build(scheduleID, tasks, deps)
	if err != nil {
		return err
	}

	endOffset := 0
	if !sched.PlannedStart.IsZero() && !sched.PlannedEnd.IsZero() {
		endOffset = model.DaysBetween(sched.PlannedStart, sched.PlannedEnd)
	}

	result, err := cpm.Analyze(g, endOffset)
	if err != nil {
		var gce *model.GraphCycleError
		if errors.As(err, &gce) {
			// Validator bug: never serve the stale derived fields.
			e.log.Error().Str("schedule", scheduleID).Err(err).
				Msg("cycle reached CPM recompute; marking derived state invalid")
			if stateErr := e.store.SetDerivedState(ctx, scheduleID, model.DerivedInvalid); stateErr != nil {
				return fmt.Errorf("mark invalid after %w: %v", err, stateErr)
			}
		}
		return err
	}

	tree, err := rollup.BuildTree(tasks)
	if err != nil {
		return err
	}
	derived := tree.Compute()

	for i := range tasks {
		t := &tasks[i]
		ts := result.Tasks[t.ID]
		t.EarlyStart, t.EarlyFinish = ts.EarlyStart, ts.EarlyFinish
		t.LateStart, t.LateFinish = ts.LateStart, ts.LateFinish
		t.TotalFloat, t.FreeFloat = ts.TotalFloat, ts.FreeFloat
		t.IsCritical = ts.IsCritical
		if p, ok := derived[t.ID]; ok {
			t.Progress = p
		}
	}

	if err := e.store.SaveDerived(ctx, scheduleID, tasks, model.DerivedValid); err != nil {
		return err
	}

	if err := e.mirrorWBSProgress(ctx, scheduleID, derived); err != nil {
		return err
	}

	e.log.Debug().
		Str("schedule", scheduleID).
		Int("tasks", g.TaskCount()).
		Int("deps", len(deps)).
		Int("project_days", result.ProjectDuration).
		Dur("took", e.now().Sub(started)).
		Msg("recompute committed")
	return nil
}

// mirrorWBSProgress copies each linked task's derived progress onto its
// WBS element.
func (e *Engine) mirrorWBSProgress(ctx context.Context, scheduleID string, derived map[string]int) error {
	elements, err := e.store.WBSBySchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	for _, el := range elements {
		if el.TaskID == "" {
			continue
		}
		p, ok := derived[el.TaskID]
		if !ok || p == el.Progress {
			continue
		}
		if err := e.store.SetWBSProgress(ctx, el.ID, p); err != nil {
			return err
		}
	}
	return nil
}
