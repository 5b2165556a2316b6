package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const localRetryInterval = 5 * time.Millisecond

type localLease struct {
	token     string
	expiresAt time.Time
}

// LocalLocker is a process-local Locker with the same lease semantics as the
// Redis implementation. It is meant for single instance deployments and tests.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]localLease
	now    func() time.Time
}

type LocalOption func(*LocalLocker)

// WithClock sets the clock used for lease expiry. Waiting for a busy lock
// still uses wall time.
func WithClock(now func() time.Time) LocalOption {
	return func(l *LocalLocker) {
		l.now = now
	}
}

func NewLocalLocker(opts ...LocalOption) *LocalLocker {
	l := &LocalLocker{
		leases: make(map[string]localLease),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, bool, error) {
	if lease <= 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidLease, lease)
	}

	deadline := time.Now().Add(wait)

	for {
		if h, ok := l.tryAcquire(key, lease); ok {
			return h, true, nil
		}

		retry, err := sleepUntilRetry(ctx, deadline, localRetryInterval)
		if err != nil || !retry {
			return nil, false, err
		}
	}
}

func (l *LocalLocker) tryAcquire(key string, lease time.Duration) (*Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if current, held := l.leases[key]; held && now.Before(current.expiresAt) {
		return nil, false
	}

	token := uuid.NewString()
	l.leases[key] = localLease{token: token, expiresAt: now.Add(lease)}

	h := &Handle{
		Key:        key,
		Token:      token,
		AcquiredAt: now,
		Lease:      lease,
	}
	h.release = func(context.Context) error {
		l.releaseToken(key, token)
		return nil
	}

	return h, true
}

func (l *LocalLocker) Release(ctx context.Context, h *Handle) error {
	if h == nil || h.release == nil {
		return nil
	}
	return h.release(ctx)
}

func (l *LocalLocker) releaseToken(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, held := l.leases[key]; held && current.token == token {
		delete(l.leases, key)
	}
}

func (l *LocalLocker) IsLocked(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, held := l.leases[key]
	return held && l.now().Before(current.expiresAt)
}
