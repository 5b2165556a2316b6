package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type GuardSuite struct {
	suite.Suite
	locker *LocalLocker
	guard  *Guard
	ctx    context.Context
}

func (s *GuardSuite) SetupTest() {
	s.locker = NewLocalLocker()
	s.guard = NewGuard(s.locker, zap.NewNop())
	s.ctx = context.Background()
}

func TestGuardSuite(t *testing.T) {
	suite.Run(t, new(GuardSuite))
}

func (s *GuardSuite) holdKey(key string) *Handle {
	h, ok, err := s.locker.Acquire(s.ctx, key, 0, time.Minute)
	s.Require().NoError(err)
	s.Require().True(ok)
	return h
}

func (s *GuardSuite) TestRunsAndReleases() {
	got, err := WithLock(s.ctx, s.guard, "booking:1", DefaultOptions(), func(ctx context.Context) (int, error) {
		s.True(s.locker.IsLocked("booking:1"))
		return 7, nil
	})

	s.NoError(err)
	s.Equal(7, got)
	s.False(s.locker.IsLocked("booking:1"))
}

func (s *GuardSuite) TestReleasesOnError() {
	_, err := WithLock(s.ctx, s.guard, "booking:1", DefaultOptions(), func(ctx context.Context) (int, error) {
		return 0, domain.ErrInsufficientSeats
	})

	s.ErrorIs(err, domain.ErrInsufficientSeats)
	s.False(s.locker.IsLocked("booking:1"))
}

func (s *GuardSuite) TestReleasesOnPanic() {
	s.Panics(func() {
		_, _ = WithLock(s.ctx, s.guard, "booking:1", DefaultOptions(), func(ctx context.Context) (int, error) {
			panic("boom")
		})
	})

	s.False(s.locker.IsLocked("booking:1"))
}

func (s *GuardSuite) TestReleasesWhenContextCancelled() {
	ctx, cancel := context.WithCancel(s.ctx)

	_, err := WithLock(ctx, s.guard, "booking:1", DefaultOptions(), func(ctx context.Context) (int, error) {
		cancel()
		return 0, ctx.Err()
	})

	s.ErrorIs(err, context.Canceled)
	s.False(s.locker.IsLocked("booking:1"))
}

func (s *GuardSuite) TestBusyFailFast() {
	s.holdKey("booking:1")
	called := false

	_, err := WithLock(s.ctx, s.guard, "booking:1", Options{Wait: 10 * time.Millisecond, Lease: time.Second}, func(ctx context.Context) (int, error) {
		called = true
		return 1, nil
	})

	s.ErrorIs(err, domain.ErrResourceBusy)
	s.False(called)
}

func (s *GuardSuite) TestBusyCustomError() {
	s.holdKey(RegistrationKey("a@b.c"))

	opts := Options{Lease: time.Second, BusyErr: domain.ErrRegistrationInProgress}
	_, err := WithLock(s.ctx, s.guard, RegistrationKey("A@B.C"), opts, func(ctx context.Context) (int, error) {
		return 1, nil
	})

	s.ErrorIs(err, domain.ErrRegistrationInProgress)
}

func (s *GuardSuite) TestBusyReturnZero() {
	s.holdKey("sweep:expiry")

	opts := Options{Lease: time.Second, OnBusy: ReturnZero}
	got, err := WithLock(s.ctx, s.guard, "sweep:expiry", opts, func(ctx context.Context) ([]int, error) {
		return []int{1}, nil
	})

	s.NoError(err)
	s.Nil(got)
}

type failingLocker struct{}

func (failingLocker) Acquire(context.Context, string, time.Duration, time.Duration) (*Handle, bool, error) {
	return nil, false, errors.New("connection refused")
}

func (failingLocker) Release(context.Context, *Handle) error { return nil }

func (s *GuardSuite) TestAcquireError() {
	g := NewGuard(failingLocker{}, zap.NewNop())

	_, err := WithLock(s.ctx, g, "booking:1", DefaultOptions(), func(ctx context.Context) (int, error) {
		return 1, nil
	})

	s.EqualError(err, "acquire lock booking:1: connection refused")
}

func TestWithLockMutualExclusion(t *testing.T) {
	guard := NewGuard(NewLocalLocker(), zap.NewNop())
	opts := Options{Wait: 5 * time.Second, Lease: time.Minute}

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := WithLock(context.Background(), guard, "booking:1", opts, func(ctx context.Context) (struct{}, error) {
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	require.Equal(t, int32(1), maxInside.Load())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "booking:42", BookingKey(42))
	assert.Equal(t, "user_registration:jane@example.com", RegistrationKey("  Jane@Example.COM "))
	assert.Equal(t, "sweep:expiry", SweepKey("expiry"))
	assert.Equal(t, "booking", keyPrefix("booking:42"))
}
