package lock

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const advisoryRetryInterval = 25 * time.Millisecond

// AdvisoryLocker uses PostgreSQL session level advisory locks. Each held lock
// pins one pooled connection until it is released; if that connection dies
// the server drops the lock. The lease argument is not used.
type AdvisoryLocker struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAdvisoryLocker(db *pgxpool.Pool, logger *zap.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{
		db:     db,
		logger: logger,
	}
}

func (l *AdvisoryLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, bool, error) {
	conn, err := l.db.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}

	deadline := time.Now().Add(wait)

	for {
		var locked bool
		err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", key).Scan(&locked)
		if err != nil {
			conn.Release()
			return nil, false, err
		}

		if locked {
			h := &Handle{
				Key:        key,
				AcquiredAt: time.Now(),
				Lease:      lease,
			}
			h.release = func(ctx context.Context) error {
				l.unlock(ctx, conn, key)
				return nil
			}

			return h, true, nil
		}

		retry, err := sleepUntilRetry(ctx, deadline, advisoryRetryInterval)
		if err != nil || !retry {
			conn.Release()
			return nil, false, err
		}
	}
}

func (l *AdvisoryLocker) Release(ctx context.Context, h *Handle) error {
	if h == nil || h.release == nil {
		return nil
	}

	release := h.release
	h.release = nil

	return release(ctx)
}

// unlock is best effort. When the unlock statement fails the connection is
// closed instead of going back to the pool, which makes the server drop the lock.
func (l *AdvisoryLocker) unlock(ctx context.Context, conn *pgxpool.Conn, key string) {
	var unlocked bool
	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock(hashtext($1))", key).Scan(&unlocked)
	if err != nil {
		l.logger.Warn("failed to release advisory lock, closing connection",
			zap.String("key", key), zap.Error(err))

		pgConn := conn.Hijack()
		_ = pgConn.Close(context.WithoutCancel(ctx))
		return
	}

	if !unlocked {
		l.logger.Debug("advisory lock was not held", zap.String("key", key))
	}

	conn.Release()
}
