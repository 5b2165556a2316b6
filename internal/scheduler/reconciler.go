package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/lock"
	"github.com/metinatakli/cinex-booking/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize       = 500
	DefaultCompletionGrace = 2 * time.Hour

	expireSweep   = "expire_stale"
	completeSweep = "complete_finished"
)

// sweepLock lets a single instance run a sweep. Others skip it without
// waiting.
var sweepLock = lock.Options{
	Wait:   0,
	Lease:  time.Minute,
	OnBusy: lock.ReturnZero,
}

// Transitioner applies a single sweep transition to one booking, reporting
// whether anything changed.
type Transitioner interface {
	ExpireBooking(ctx context.Context, id int64) (bool, error)
	CompleteBooking(ctx context.Context, id int64) (bool, error)
}

type SweepResult struct {
	Processed int
	Skipped   int
	Failed    int
}

type Reconciler struct {
	bookings    domain.BookingRepository
	transitions Transitioner
	locks       *lock.Guard
	logger      *zap.Logger

	now       func() time.Time
	batchSize int
	grace     time.Duration
}

type ReconcilerOption func(*Reconciler)

func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

func WithBatchSize(n int) ReconcilerOption {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithCompletionGrace(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		r.grace = d
	}
}

func NewReconciler(
	bookings domain.BookingRepository,
	transitions Transitioner,
	locks *lock.Guard,
	logger *zap.Logger,
	opts ...ReconcilerOption,
) *Reconciler {
	r := &Reconciler{
		bookings:    bookings,
		transitions: transitions,
		locks:       locks,
		logger:      logger.With(zap.String("component", "reconciler")),
		now:         time.Now,
		batchSize:   DefaultBatchSize,
		grace:       DefaultCompletionGrace,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ExpireStale expires pending bookings whose hold elapsed and returns their
// seats to the show. Running it again over the same state changes nothing.
func (r *Reconciler) ExpireStale(ctx context.Context) (SweepResult, error) {
	return lock.WithLock(ctx, r.locks, lock.SweepKey(expireSweep), sweepLock, func(ctx context.Context) (SweepResult, error) {
		candidates, err := r.bookings.ListExpiredPending(ctx, r.now(), r.batchSize)
		if err != nil {
			return SweepResult{}, err
		}

		return r.sweep(ctx, expireSweep, candidates, r.transitions.ExpireBooking)
	})
}

// CompleteFinished completes confirmed bookings whose show ended more than the
// grace period ago.
func (r *Reconciler) CompleteFinished(ctx context.Context) (SweepResult, error) {
	return lock.WithLock(ctx, r.locks, lock.SweepKey(completeSweep), sweepLock, func(ctx context.Context) (SweepResult, error) {
		candidates, err := r.bookings.ListCompletable(ctx, r.now().Add(-r.grace), r.batchSize)
		if err != nil {
			return SweepResult{}, err
		}

		return r.sweep(ctx, completeSweep, candidates, r.transitions.CompleteBooking)
	})
}

func (r *Reconciler) sweep(
	ctx context.Context,
	name string,
	candidates []domain.Booking,
	transition func(ctx context.Context, id int64) (bool, error),
) (SweepResult, error) {
	var (
		res  SweepResult
		errs []error
	)

	for _, b := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		changed, err := transition(ctx, b.ID)
		switch {
		case err == nil && changed:
			res.Processed++
		case err == nil,
			errors.Is(err, domain.ErrHighContention),
			errors.Is(err, domain.ErrInvalidStateTransition):
			// Someone else moved the booking first.
			res.Skipped++
			r.logger.Debug("booking skipped", zap.String("sweep", name), zap.String("reference", b.Reference), zap.Error(err))
		default:
			res.Failed++
			errs = append(errs, err)
			r.logger.Error("booking transition failed", zap.String("sweep", name), zap.String("reference", b.Reference), zap.Error(err))
		}
	}

	metrics.SweepProcessed.Add(ctx, int64(res.Processed), metrics.Operation(name))
	metrics.SweepSkipped.Add(ctx, int64(res.Skipped), metrics.Operation(name))

	r.logger.Info("sweep finished",
		zap.String("sweep", name),
		zap.Int("candidates", len(candidates)),
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))

	return res, errors.Join(errs...)
}
