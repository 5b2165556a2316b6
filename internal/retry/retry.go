// Package retry re-runs units of work that lost an optimistic concurrency race.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 50 * time.Millisecond
)

// Executor retries an operation that fails with domain.ErrVersionConflict,
// waiting BaseDelay*attempt between attempts.
type Executor struct {
	MaxAttempts int
	BaseDelay   time.Duration
	logger      *zap.Logger
}

func NewExecutor(logger *zap.Logger) *Executor {
	return &Executor{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		logger:      logger,
	}
}

// linearBackOff implements backoff.BackOff with a delay that grows by base
// on every attempt.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return l.base * time.Duration(l.attempt)
}

func (l *linearBackOff) Reset() {
	l.attempt = 0
}

// Do runs fn until it succeeds, fails with an error other than a version
// conflict, or the attempt budget is spent. fn must re-read the state it
// writes on every call. Exhausting the budget returns an error wrapping
// domain.ErrHighContention.
func Do[T any](ctx context.Context, e *Executor, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := 0

	result, err := backoff.Retry(ctx, func() (T, error) {
		attempts++

		res, err := fn(ctx)
		if err != nil && !errors.Is(err, domain.ErrVersionConflict) {
			return res, backoff.Permanent(err)
		}

		return res, err
	},
		backoff.WithBackOff(&linearBackOff{base: e.BaseDelay}),
		backoff.WithMaxTries(uint(e.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			metrics.VersionConflicts.Add(ctx, 1, metrics.Operation(operation))
			e.logger.Debug("optimistic write conflict, retrying",
				zap.String("operation", operation),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next))
		}),
	)

	if err != nil && errors.Is(err, domain.ErrVersionConflict) {
		metrics.VersionConflicts.Add(ctx, 1, metrics.Operation(operation))
		metrics.RetriesExhausted.Add(ctx, 1, metrics.Operation(operation))
		e.logger.Warn("optimistic write retries exhausted",
			zap.String("operation", operation),
			zap.Int("attempts", attempts))

		var zero T
		return zero, fmt.Errorf("unable to complete %s due to high concurrency: %w", operation, domain.ErrHighContention)
	}

	return result, err
}
