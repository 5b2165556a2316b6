// Package scheduler runs the periodic reconciliation sweeps and other
// housekeeping jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs   []Job
	logger *zap.Logger
}

func New(logger *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:   jobs,
		logger: logger.With(zap.String("component", "scheduler")),
	}
}

// Run runs every job once at start and then on its own ticker, blocking until
// ctx is cancelled. A failing run is logged and the job keeps its schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("job %s: interval must be positive", job.Name)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, job := range s.jobs {
		g.Go(func() error {
			s.loop(ctx, job)
			return nil
		})
	}

	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))

	err := g.Wait()

	s.logger.Info("scheduler stopped")
	return err
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.runOnce(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job", job.Name), zap.Any("panic", r))
		}
	}()

	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed", zap.String("job", job.Name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return
	}

	s.logger.Debug("job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
}

// ExpiryJob runs the expiry sweep every interval.
func ExpiryJob(r *Reconciler, interval time.Duration) Job {
	return Job{
		Name:     expireSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := r.ExpireStale(ctx)
			return err
		},
	}
}

// CompletionJob runs the completion sweep every interval.
func CompletionJob(r *Reconciler, interval time.Duration) Job {
	return Job{
		Name:     completeSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := r.CompleteFinished(ctx)
			return err
		},
	}
}

type Pruner interface {
	Prune() int
}

// PruneJob drops ended rate-limit windows every interval.
func PruneJob(name string, p Pruner, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Run: func(ctx context.Context) error {
			if n := p.Prune(); n > 0 {
				logger.Debug("pruned rate limit windows", zap.String("job", name), zap.Int("removed", n))
			}
			return nil
		},
	}
}
