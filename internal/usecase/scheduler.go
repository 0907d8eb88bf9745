package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ArticlePipeline/internal/domain"
	"ArticlePipeline/internal/ports"
)

// Scheduler wires the ticker driver with the pipeline for a fixed owner list.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	owners   []string
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring pipeline passes.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, owners []string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, owners: owners, logger: logger}
}

// Start registers the pipeline pass with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil || len(s.owners) == 0 {
		return nil
	}
	return s.driver.Start(ctx, func(trigger time.Time) { s.RunOnce(ctx, trigger) })
}

// RunOnce processes every configured owner once. Owners are independent, so
// one failing owner does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context, trigger time.Time) {
	for _, owner := range s.owners {
		if ctx.Err() != nil {
			return
		}
		err := s.pipeline.ProcessOwner(ctx, owner)
		switch {
		case err == nil:
			s.logger.Debug("scheduled pass finished", "owner_id", owner, "trigger", trigger)
		case errors.Is(err, domain.ErrAlreadyRunning), errors.Is(err, context.Canceled):
			s.logger.Info("scheduled pass skipped", "owner_id", owner, "reason", err)
		default:
			s.logger.Error("scheduled pass failed", "owner_id", owner, "error", err)
		}
	}
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
