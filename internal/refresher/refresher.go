// Package refresher runs the periodic maintenance jobs: sweeping
// milestone statuses past their target dates and refreshing baseline
// variance metrics. Both jobs are idempotent and safe to run while
// schedules are being edited.
package refresher

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/joshharrison/planloom/internal/engine"
	"github.com/joshharrison/planloom/internal/model"
)

// Config holds the cron specs for the two jobs. Empty specs disable the
// corresponding job.
type Config struct {
	MilestoneSpec string // e.g. "@hourly"
	VarianceSpec  string // e.g. "@daily"
}

// Service drives the periodic sweeps.
type Service struct {
	eng *engine.Engine
	log zerolog.Logger
	cfg Config

	mu sync.Mutex
	c  *cron.Cron
}

// New creates a stopped Service.
func New(e *engine.Engine, log zerolog.Logger, cfg Config) *Service {
	return &Service{eng: e, log: log, cfg: cfg}
}

// Start registers the configured jobs and starts the cron loop. Jobs run
// until Stop; the passed context bounds each individual sweep.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return errors.New("refresher already started")
	}
	c := cron.New()
	if s.cfg.MilestoneSpec != "" {
		if _, err := c.AddFunc(s.cfg.MilestoneSpec, func() { s.sweep(ctx, "milestones", s.SweepMilestones) }); err != nil {
			return err
		}
	}
	if s.cfg.VarianceSpec != "" {
		if _, err := c.AddFunc(s.cfg.VarianceSpec, func() { s.sweep(ctx, "variance", s.RefreshVariance) }); err != nil {
			return err
		}
	}
	s.c = c
	c.Start()
	s.log.Info().Str("milestones", s.cfg.MilestoneSpec).Str("variance", s.cfg.VarianceSpec).
		Msg("refresher started")
	return nil
}

// Stop halts the cron loop and waits for any running sweep to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info().Msg("refresher stopped")
}

func (s *Service) sweep(ctx context.Context, name string, fn func(context.Context) (int, error)) {
	n, err := fn(ctx)
	if err != nil {
		s.log.Error().Str("job", name).Err(err).Msg("sweep failed")
		return
	}
	s.log.Debug().Str("job", name).Int("changed", n).Msg("sweep complete")
}

// SweepMilestones re-derives milestone statuses across all schedules and
// returns how many changed.
func (s *Service) SweepMilestones(ctx context.Context) (int, error) {
	schedules, err := s.eng.Schedules(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, sched := range schedules {
		n, err := s.eng.RefreshMilestones(ctx, sched.ID)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// RefreshVariance recomputes variance metrics against each schedule's
// latest baseline. Schedules without a baseline are skipped.
func (s *Service) RefreshVariance(ctx context.Context) (int, error) {
	schedules, err := s.eng.Schedules(ctx)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, sched := range schedules {
		b, err := s.eng.LatestBaseline(ctx, sched.ID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return refreshed, err
		}
		if _, err := s.eng.Variance(ctx, sched.ID, b.ID); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	return refreshed, nil
}
