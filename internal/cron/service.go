package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/convtrack-backend/pkg/logger"
	"github.com/angelmondragon/convtrack-backend/pkg/metrics"
)

const (
	defaultInterval = time.Hour
	releaseTimeout  = 5 * time.Second
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// JobTimeout bounds a single job run. Zero means the job may run for the
	// whole interval.
	JobTimeout time.Duration
}

// Service ticks every interval and runs the registry on whichever worker
// instance wins the lock.
type Service struct {
	ServiceParams
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron: lock required")
	}
	if params.Registry == nil {
		params.Registry = &Registry{}
	}
	if params.Interval <= 0 {
		params.Interval = defaultInterval
	}
	if params.JobTimeout <= 0 || params.JobTimeout > params.Interval {
		params.JobTimeout = params.Interval
	}
	return &Service{ServiceParams: params}, nil
}

// Run fires one cycle right away, then one per tick, until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.Logger.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.Logger.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs every registered job under the lock. Job errors are logged
// and counted; only lock failures are returned.
func (s *Service) RunOnce(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	won, err := s.Lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !won {
		s.Logger.Info(ctx, "cron lock held elsewhere, skipping cycle")
		for _, job := range s.Registry.Jobs() {
			s.Metrics.IncSkipped(job.Name())
		}
		return nil
	}
	defer s.release(ctx)

	for _, job := range s.Registry.Jobs() {
		if ctx.Err() != nil {
			break
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) release(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.Lock.Release(ctx); err != nil {
		s.Logger.Error(ctx, "cron lock release failed", err)
	}
}

func (s *Service) runJob(ctx context.Context, job Job) {
	ctx = s.Logger.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	runCtx, cancel := context.WithTimeout(ctx, s.JobTimeout)
	defer cancel()

	started := time.Now()
	err := job.Run(runCtx)
	took := time.Since(started)
	s.Metrics.ObserveRun(job.Name(), took, err)

	ctx = s.Logger.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.Logger.Error(ctx, "cron job failed", err)
		return
	}
	s.Logger.Info(ctx, "cron job finished")
}
