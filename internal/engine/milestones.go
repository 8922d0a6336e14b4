package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joshharrison/planloom/internal/model"
)

// AddMilestone persists a milestone, checking any linked task belongs to
// the same schedule.
func (e *Engine) AddMilestone(ctx context.Context, m model.Milestone) (string, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = model.MilestonePlanned
	}
	if m.TaskID != "" {
		t, err := e.store.GetTask(ctx, m.TaskID)
		if err != nil || t.ScheduleID != m.ScheduleID {
			return "", &model.OrphanReferenceError{Kind: "milestone", TaskID: m.TaskID}
		}
	}
	if err := e.store.InsertMilestone(ctx, m); err != nil {
		return "", err
	}
	return m.ID, nil
}

// AchieveMilestone records the actual date and flips the status.
func (e *Engine) AchieveMilestone(ctx context.Context, milestoneID string, actual time.Time) error {
	m := model.Milestone{ActualDate: model.Day(actual), Status: model.MilestoneAchieved}
	return e.store.SetMilestoneActual(ctx, milestoneID, m)
}

// RefreshMilestones re-derives milestone statuses for one schedule:
// achieved when an actual date exists, missed when the target has passed
// without one. Returns how many rows changed.
func (e *Engine) RefreshMilestones(ctx context.Context, scheduleID string) (int, error) {
	milestones, err := e.store.MilestonesBySchedule(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	now := e.now()
	changed := 0
	for _, m := range milestones {
		next := m.DeriveStatus(now)
		if next == m.Status {
			continue
		}
		if err := e.store.SetMilestoneStatus(ctx, m.ID, next); err != nil {
			return changed, err
		}
		e.log.Info().Str("schedule", scheduleID).Str("milestone", m.ID).
			Str("from", string(m.Status)).Str("to", string(next)).Msg("milestone status changed")
		changed++
	}
	return changed, nil
}

// Milestones returns a schedule's milestones.
func (e *Engine) Milestones(ctx context.Context, scheduleID string) ([]model.Milestone, error) {
	return e.store.MilestonesBySchedule(ctx, scheduleID)
}
