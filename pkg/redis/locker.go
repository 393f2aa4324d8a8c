package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a single-instance Redis lock. It implements experiment.Locker.
type Locker struct {
	client   redis.UniversalClient
	prefix   string
	wait     time.Duration
	interval time.Duration
}

// NewLocker creates a locker using the key prefix and wait settings of cfg.
func NewLocker(client redis.UniversalClient, cfg Config) *Locker {
	interval := cfg.LockInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &Locker{
		client:   client,
		prefix:   cfg.KeyPrefix + "lock:",
		wait:     cfg.LockWait,
		interval: interval,
	}
}

// Lock acquires key for ttl, polling until the configured wait elapses.
// The returned release is a no-op once the lock expired or was taken over.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	key = l.prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error {
				return releaseScript.Run(ctx, l.client, []string{key}, token).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockHeld
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockHeld, ctx.Err())
		case <-time.After(l.interval):
		}
	}
}
