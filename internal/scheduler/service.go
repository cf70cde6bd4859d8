package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const defaultInterval = time.Minute

// ServiceParams configure a Service.
type ServiceParams struct {
	Name     string
	Logger   *slog.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *Metrics
	Interval time.Duration
}

// Service runs every registered job once per interval. A cycle runs only
// while holding the lock, so cycles never overlap, in this process or, with
// RedisLock, across replicas.
type Service struct {
	name     string
	logger   *slog.Logger
	registry *Registry
	lock     Lock
	metrics  *Metrics
	interval time.Duration
}

// NewService builds a Service.
func NewService(p ServiceParams) (*Service, error) {
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	if p.Lock == nil {
		return nil, errors.New("lock required")
	}
	registry := p.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	name := p.Name
	if name == "" {
		name = "scheduler"
	}
	return &Service{
		name:     name,
		logger:   p.Logger.With(slog.String("scheduler", name)),
		registry: registry,
		lock:     p.Lock,
		metrics:  p.Metrics,
		interval: interval,
	}, nil
}

// Run runs a cycle immediately and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "scheduler started", slog.Duration("interval", s.interval))
	if err := s.RunCycle(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled run failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.logger.ErrorContext(ctx, "scheduled run failed", slog.Any("error", err))
			}
		}
	}
}

// RunCycle runs every job once if the lock can be taken. A failing job does
// not stop the ones after it.
func (s *Service) RunCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logger.InfoContext(ctx, "previous cycle still running, skipping")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.ErrorContext(ctx, "releasing scheduler lock failed", slog.Any("error", err))
		}
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	logger := s.logger.With(slog.String("job", job.Name()))
	logger.DebugContext(ctx, "job start")

	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)

	if err != nil {
		logger.ErrorContext(ctx, "job failed",
			slog.Duration("duration", duration),
			slog.Any("error", err),
		)
		s.metrics.IncFailure(job.Name())
		return
	}
	logger.DebugContext(ctx, "job completed", slog.Duration("duration", duration))
	s.metrics.IncSuccess(job.Name())
}
