package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultLockKey is the Redis key guarding sweep runs.
const DefaultLockKey = "speechcoach:sweep"

// ErrLockHeld means another process holds the sweep lease.
var ErrLockHeld = errors.New("sweep lease held")

// ReleaseFunc gives a lease back.
type ReleaseFunc func(ctx context.Context) error

// Locker hands out a lease so only one process sweeps at a time.
type Locker interface {
	// Acquire takes the lease for ttl or returns ErrLockHeld.
	Acquire(ctx context.Context, ttl time.Duration) (ReleaseFunc, error)
}

// NopLocker always grants the lease. Used for single-instance deployments.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, time.Duration) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lease taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a lease on a single Redis key.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
}

// NewRedisLocker creates a RedisLocker. An empty key means DefaultLockKey.
func NewRedisLocker(client redis.UniversalClient, key string) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}
	return &RedisLocker{client: client, key: key}
}

func (l *RedisLocker) Acquire(ctx context.Context, ttl time.Duration) (ReleaseFunc, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis set %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("redis release %s: %w", l.key, err)
		}
		return nil
	}, nil
}
