// Package lock provides lease based mutual exclusion across processes and a
// scoped wrapper for running code while holding a lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/metinatakli/cinex-booking/internal/metrics"
	"go.uber.org/zap"
)

const (
	DefaultWait  = 100 * time.Millisecond
	DefaultLease = 5 * time.Second

	releaseTimeout = 2 * time.Second
)

// ErrInvalidLease is returned by lease based lockers for a lease that would
// never expire.
var ErrInvalidLease = errors.New("lock lease must be positive")

// Handle identifies one acquisition of a lock. It is only valid for the
// locker that returned it.
type Handle struct {
	Key        string
	Token      string
	AcquiredAt time.Time
	Lease      time.Duration

	release func(ctx context.Context) error
}

// Locker grants at most one holder per key at a time.
//
// Acquire blocks for up to wait and reports ok=false when the key is still
// held by someone else. The lease bounds how long the lock survives a holder
// that never releases it. Releasing a handle whose lease has already expired
// is a no-op.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (h *Handle, ok bool, err error)
	Release(ctx context.Context, h *Handle) error
}

type BusyPolicy int

const (
	// FailFast returns an error when the lock cannot be acquired in time.
	FailFast BusyPolicy = iota
	// ReturnZero skips the protected call and returns the zero value without error.
	ReturnZero
)

type Options struct {
	Wait   time.Duration
	Lease  time.Duration
	OnBusy BusyPolicy
	// BusyErr is returned under FailFast. Defaults to domain.ErrResourceBusy.
	BusyErr error
}

func DefaultOptions() Options {
	return Options{
		Wait:  DefaultWait,
		Lease: DefaultLease,
	}
}

// Guard runs functions while holding a lock from its Locker.
type Guard struct {
	locker Locker
	logger *zap.Logger
}

func NewGuard(locker Locker, logger *zap.Logger) *Guard {
	return &Guard{
		locker: locker,
		logger: logger,
	}
}

// WithLock acquires key, runs fn and releases the lock on every exit path,
// including panics. When the lock is busy the result depends on opts.OnBusy.
func WithLock[T any](ctx context.Context, g *Guard, key string, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	h, ok, err := g.locker.Acquire(ctx, key, opts.Wait, opts.Lease)
	if err != nil {
		return zero, fmt.Errorf("acquire lock %s: %w", key, err)
	}

	if !ok {
		metrics.LockBusy.Add(ctx, 1, metrics.Key("key", keyPrefix(key)))

		if opts.OnBusy == ReturnZero {
			g.logger.Info("lock busy, skipping", zap.String("key", key))
			return zero, nil
		}

		g.logger.Warn("lock busy", zap.String("key", key), zap.Duration("wait", opts.Wait))

		busyErr := opts.BusyErr
		if busyErr == nil {
			busyErr = domain.ErrResourceBusy
		}

		return zero, fmt.Errorf("lock %s: %w", key, busyErr)
	}

	metrics.LockAcquired.Add(ctx, 1, metrics.Key("key", keyPrefix(key)))
	g.logger.Debug("lock acquired", zap.String("key", key), zap.Duration("lease", opts.Lease))

	defer func() {
		// The caller's context may already be cancelled; the lock still has to go.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		if err := g.locker.Release(releaseCtx, h); err != nil {
			g.logger.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
			return
		}

		g.logger.Debug("lock released", zap.String("key", key))
	}()

	return fn(ctx)
}

func BookingKey(showID int64) string {
	return "booking:" + strconv.FormatInt(showID, 10)
}

func RegistrationKey(email string) string {
	return "user_registration:" + domain.NormalizeEmail(email)
}

func SweepKey(name string) string {
	return "sweep:" + name
}

func keyPrefix(key string) string {
	prefix, _, _ := strings.Cut(key, ":")
	return prefix
}

// sleepUntilRetry waits for the next polling round. It returns false when
// the deadline has passed.
func sleepUntilRetry(ctx context.Context, deadline time.Time, interval time.Duration) (bool, error) {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return false, nil
	}

	timer := time.NewTimer(min(interval, remaining))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return true, nil
	}
}
