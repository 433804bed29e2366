//go:build !integration

package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trulyinvoice/internal/config"
	"trulyinvoice/internal/domain"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return Wrap(cli), mr
}

func TestNewClient_ParsesURL(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewClient(context.Background(), &config.RedisConfig{URL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	got, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = c.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, Nil))
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	rl := NewRateLimiter(c)
	key := UserActionKey("user-1", "create_order")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i+1)
	}
	ok, err := rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "fourth request in the window must be limited")

	mr.FastForward(time.Minute + time.Second)

	ok, err = rl.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window should reset after expiry")
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)
	l := NewLocker(c)
	l.tries = 2
	l.interval = time.Millisecond

	release, err := l.Lock(ctx, "lock:verify:order_1", time.Minute)
	require.NoError(t, err)

	_, err = l.Lock(ctx, "lock:verify:order_1", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLocked)

	release()

	release2, err := l.Lock(ctx, "lock:verify:order_1", time.Minute)
	require.NoError(t, err)
	release2()
}

func TestRedisLocker_UnlockRequiresToken(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestClient(t)
	l := NewLocker(c)

	token, err := l.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)

	require.NoError(t, l.Unlock(ctx, "k", "someone-else"))
	assert.True(t, mr.Exists("k"), "foreign token must not release the lock")

	require.NoError(t, l.Unlock(ctx, "k", token))
	assert.False(t, mr.Exists("k"))
}
