package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Pruner drops expired cache entries.
type Pruner interface {
	Prune() int
}

// SchedulerConfig holds configuration for the periodic scheduler.
type SchedulerConfig struct {
	RefreshJob *RefreshJob

	// Interval between refresh runs. Zero disables the refresh task.
	Interval time.Duration

	// Pruner, when set, is run every PruneInterval.
	Pruner        Pruner
	PruneInterval time.Duration

	Logger zerolog.Logger
}

// Scheduler runs the refresh job and cache pruning on fixed intervals.
type Scheduler struct {
	scheduler *gocron.Scheduler
	cfg       SchedulerConfig
	logger    zerolog.Logger
}

// NewScheduler creates a scheduler. Nothing runs until Start.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Minute
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	return &Scheduler{
		scheduler: s,
		cfg:       cfg,
		logger:    cfg.Logger,
	}
}

// Start registers the tasks and starts the scheduler in the background.
func (s *Scheduler) Start() error {
	if s.cfg.Interval > 0 && s.cfg.RefreshJob != nil {
		// Each run gets most of the interval; singleton mode skips overlapping ticks.
		budget := s.cfg.Interval - s.cfg.Interval/10
		_, err := s.scheduler.Every(s.cfg.Interval).Tag("live_refresh").Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), budget)
			defer cancel()
			s.cfg.RefreshJob.Run(ctx)
		})
		if err != nil {
			return fmt.Errorf("scheduling live refresh: %w", err)
		}
		s.logger.Info().Dur("interval", s.cfg.Interval).Msg("scheduled live refresh")
	}

	if s.cfg.Pruner != nil {
		_, err := s.scheduler.Every(s.cfg.PruneInterval).WaitForSchedule().Tag("cache_prune").Do(func() {
			s.cfg.Pruner.Prune()
		})
		if err != nil {
			return fmt.Errorf("scheduling cache prune: %w", err)
		}
	}

	if s.scheduler.Len() == 0 {
		s.logger.Info().Msg("scheduler: nothing to schedule")
		return nil
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler. Running tasks are not interrupted.
func (s *Scheduler) Stop() {
	if s.scheduler.IsRunning() {
		s.scheduler.Stop()
	}
}

// Jobs returns the number of scheduled tasks.
func (s *Scheduler) Jobs() int {
	return s.scheduler.Len()
}
