// Package lock provides the distributed lock that keeps scheduler sweeps to one
// replica at a time.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mAmineChniti/Forklore/internal/metrics"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotAcquired is returned when another holder owns the lock
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrNotHeld is returned when releasing a lock that expired or changed hands
	ErrNotHeld = errors.New("lock not held")
)

type Locker interface {
	// WithLock runs fn while holding key. It returns ErrNotAcquired without running fn
	// when the lock is taken.
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

type RedisLocker struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

func NewRedisLocker(rdb redis.UniversalClient, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "forklore:lock:"
	}
	return &RedisLocker{rdb: rdb, keyPrefix: keyPrefix}
}

type held struct {
	key   string
	value string
}

func (l *RedisLocker) acquire(ctx context.Context, key string, ttl time.Duration) (*held, error) {
	h := &held{key: l.keyPrefix + key, value: uuid.NewString()}
	ok, err := l.rdb.SetNX(ctx, h.key, h.value, ttl).Result()
	if err != nil {
		metrics.LockAcquisitionsTotal.WithLabelValues(key, "error").Inc()
		return nil, err
	}
	if !ok {
		metrics.LockAcquisitionsTotal.WithLabelValues(key, "busy").Inc()
		return nil, ErrNotAcquired
	}
	metrics.LockAcquisitionsTotal.WithLabelValues(key, "acquired").Inc()
	return h, nil
}

func (l *RedisLocker) release(ctx context.Context, h *held) error {
	n, err := releaseScript.Run(ctx, l.rdb, []string{h.key}, h.value).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	h, err := l.acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	fnErr := fn(ctx)
	// Release on a fresh context so a cancelled run still frees the key.
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := l.release(relCtx, h); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}

// Local runs fn directly. Used when no Redis is configured and only one replica runs.
type Local struct{}

func (Local) WithLock(ctx context.Context, _ string, _ time.Duration, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
