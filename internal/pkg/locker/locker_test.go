package locker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLocker(rdb), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	ctx := context.Background()
	l, _ := newRedisLocker(t)

	release, err := l.Acquire(ctx, "subscription:1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "subscription:1", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	other, err := l.Acquire(ctx, "subscription:2", time.Minute)
	require.NoError(t, err)
	other()

	release()
	again, err := l.Acquire(ctx, "subscription:1", time.Minute)
	require.NoError(t, err)
	again()
}

func TestRedisLockerExpires(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	_, err := l.Acquire(ctx, "subscription:1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	release, err := l.Acquire(ctx, "subscription:1", time.Second)
	require.NoError(t, err)
	release()
}

func TestRedisLockerReleaseDoesNotDropForeignLock(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t)

	staleRelease, err := l.Acquire(ctx, "subscription:1", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = l.Acquire(ctx, "subscription:1", time.Minute)
	require.NoError(t, err)

	staleRelease()
	assert.True(t, mr.Exists("billing:lock:subscription:1"))
}

func TestMemoryLocker(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLocker()

	release, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	release2, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	release2()
}
