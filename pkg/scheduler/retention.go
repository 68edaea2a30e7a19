// Package scheduler runs periodic maintenance jobs, currently checkpoint
// retention sweeps.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tcmartin/agentflow/pkg/checkpoint"
	"github.com/tcmartin/agentflow/pkg/logging"
)

// RetentionScheduler periodically removes checkpoints that have not been
// updated within the retention window.
type RetentionScheduler struct {
	store  checkpoint.Store
	window time.Duration
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewRetentionScheduler creates a scheduler that sweeps the given store.
// A non-positive window falls back to the store's default retention.
func NewRetentionScheduler(store checkpoint.Store, window time.Duration) *RetentionScheduler {
	if window <= 0 {
		window = checkpoint.DefaultRetention
	}
	return &RetentionScheduler{
		store:  store,
		window: window,
		cron:   cron.New(cron.WithSeconds()),
		logger: logging.Component("scheduler"),
	}
}

// Start registers the sweep on the given cron schedule and begins running.
// The schedule uses a six-field cron expression with a leading seconds field.
func (s *RetentionScheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	s.cron.Start()
	s.logger.Info().Str("schedule", schedule).Dur("window", s.window).Msg("Retention scheduler started")
	return nil
}

// Sweep removes expired checkpoints once and returns the number removed
func (s *RetentionScheduler) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-s.window)
	removed, err := s.store.Cleanup(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("Retention sweep failed")
		return 0
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("Retention sweep removed stale checkpoints")
	}
	return removed
}

// Stop halts the scheduler, waiting for any running sweep to finish
func (s *RetentionScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Retention scheduler stopped")
}
