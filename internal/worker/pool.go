// Package worker runs fire-and-forget background tasks with bounded
// concurrency.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/metinatakli/cinex-booking/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	ErrPoolSaturated = errors.New("worker pool saturated")
	ErrPoolClosed    = errors.New("worker pool closed")
)

// SaturationPolicy decides what happens to a task submitted while every
// worker slot is busy.
type SaturationPolicy string

const (
	// Reject drops the task and reports ErrPoolSaturated.
	Reject SaturationPolicy = "reject"
	// CallerRuns executes the task synchronously on the submitting goroutine.
	CallerRuns SaturationPolicy = "caller-runs"
)

func ParsePolicy(s string) (SaturationPolicy, error) {
	switch SaturationPolicy(s) {
	case Reject, CallerRuns:
		return SaturationPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown saturation policy %q", s)
	}
}

type Task func(ctx context.Context) error

type Pool struct {
	sem    *semaphore.Weighted
	policy SaturationPolicy
	logger *zap.Logger

	// ctx outlives the requests that submit tasks and is cancelled on shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(size int, policy SaturationPolicy, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		policy: policy,
		logger: logger.With(zap.String("component", "worker")),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules task in the background. It never blocks waiting for a
// free slot: a saturated pool applies its SaturationPolicy instead.
func (p *Pool) Submit(name string, task Task) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}

	if !p.sem.TryAcquire(1) {
		p.mu.Unlock()
		return p.saturated(name, task)
	}

	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)

		p.run(name, task)
	}()

	return nil
}

func (p *Pool) saturated(name string, task Task) error {
	metrics.TasksRejected.Add(p.ctx, 1, metrics.Key("policy", string(p.policy)))

	if p.policy == CallerRuns {
		p.logger.Warn("worker pool saturated, running task on caller", zap.String("task", name))
		p.run(name, task)
		return nil
	}

	p.logger.Warn("worker pool saturated, task dropped", zap.String("task", name))
	return fmt.Errorf("%s: %w", name, ErrPoolSaturated)
}

func (p *Pool) run(name string, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("background task panicked", zap.String("task", name), zap.Any("panic", r))
		}
	}()

	if err := task(p.ctx); err != nil {
		p.logger.Error("background task failed", zap.String("task", name), zap.Error(err))
		return
	}

	p.logger.Debug("background task finished", zap.String("task", name))
}

// Shutdown stops accepting tasks and waits for running ones to finish. If ctx
// expires first, the task context is cancelled and ctx.Err is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
