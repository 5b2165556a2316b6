package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisKeyPrefix     = "lock:"
	redisRetryInterval = 20 * time.Millisecond
)

// Deletes the key only if it still holds the caller's token, so a holder
// whose lease expired cannot remove a lock that was granted to someone else.
var releaseScript = redis.NewScript(`
    -- KEYS[1] = lock key
    -- ARGV[1] = token of the releasing holder

    if redis.call("GET", KEYS[1]) == ARGV[1] then
        return redis.call("DEL", KEYS[1])
    end

    return 0
`)

type RedisLocker struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewRedisLocker(client redis.UniversalClient, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{
		client: client,
		logger: logger,
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, bool, error) {
	if lease <= 0 {
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidLease, lease)
	}

	token := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKeyPrefix+key, token, lease).Result()
		if err != nil {
			return nil, false, err
		}

		if ok {
			h := &Handle{
				Key:        key,
				Token:      token,
				AcquiredAt: time.Now(),
				Lease:      lease,
			}
			h.release = func(ctx context.Context) error {
				return l.releaseToken(ctx, key, token)
			}

			return h, true, nil
		}

		retry, err := sleepUntilRetry(ctx, deadline, redisRetryInterval)
		if err != nil || !retry {
			return nil, false, err
		}
	}
}

func (l *RedisLocker) Release(ctx context.Context, h *Handle) error {
	if h == nil || h.release == nil {
		return nil
	}
	return h.release(ctx)
}

func (l *RedisLocker) releaseToken(ctx context.Context, key, token string) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{redisKeyPrefix + key}, token).Int()
	if err != nil {
		return err
	}

	if deleted == 0 {
		l.logger.Debug("lock lease already expired or reassigned", zap.String("key", key))
	}

	return nil
}

// IsLocked reports whether anyone currently holds key.
func (l *RedisLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RemainingLease returns how long the current holder of key keeps the lock,
// or zero when the key is free.
func (l *RedisLocker) RemainingLease(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := l.client.PTTL(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	if ttl < 0 {
		return 0, nil
	}

	return ttl, nil
}
