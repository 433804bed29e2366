// File: internal/infra/redis/lock.go
package redis

import (
	"context"
	"time"

	"trulyinvoice/internal/domain"
	"trulyinvoice/internal/domain/ports/adapter"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ adapter.Locker = (*RedisLocker)(nil)

// RedisLocker is a single-instance SET NX lock with token-checked release.
type RedisLocker struct {
	cli      *redis.Client
	tries    int
	interval time.Duration
}

func NewLocker(c *Client) *RedisLocker {
	return &RedisLocker{cli: c.cli, tries: 5, interval: 50 * time.Millisecond}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	for i := 0; i < l.tries; i++ {
		ok, err := l.cli.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(l.interval):
		}
	}
	return "", domain.ErrLocked
}

var luaUnlock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	_, err := luaUnlock.Run(ctx, l.cli, []string{key}, token).Result()
	return err
}

// Lock implements adapter.Locker. The returned release uses a fresh context
// so it still runs after the caller's request was cancelled.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := l.TryLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Unlock(rctx, key, token)
	}, nil
}
