package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	l := NewRedisLocker(client)
	l.ttl = ttl
	return l, mr
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	l, mr := newTestRedisLocker(t, time.Minute)
	ctx := context.Background()

	release, err := l.Acquire(ctx, november.String())
	require.NoError(t, err)
	assert.True(t, mr.Exists(reportLockPrefix+november.String()))

	waitCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(waitCtx, november.String())
	assert.ErrorIs(t, err, ErrLockTimeout)

	release()
	release()
	assert.False(t, mr.Exists(reportLockPrefix+november.String()))

	again, err := l.Acquire(ctx, november.String())
	require.NoError(t, err)
	again()
}

func TestRedisLockerRefreshesLeaseWhileHeld(t *testing.T) {
	ttl := 300 * time.Millisecond
	l, mr := newTestRedisLocker(t, ttl)
	key := reportLockPrefix + november.String()

	release, err := l.Acquire(context.Background(), november.String())
	require.NoError(t, err)
	defer release()

	mr.FastForward(200 * time.Millisecond)
	assert.Eventually(t, func() bool { return mr.TTL(key) > 250*time.Millisecond }, 2*time.Second, 10*time.Millisecond)

	mr.FastForward(250 * time.Millisecond)
	assert.True(t, mr.Exists(key), "a refreshed lease outlives the original TTL")
}

func TestRedisLockerDoesNotRefreshForeignLease(t *testing.T) {
	ttl := 300 * time.Millisecond
	l, mr := newTestRedisLocker(t, ttl)
	key := reportLockPrefix + november.String()

	release, err := l.Acquire(context.Background(), november.String())
	require.NoError(t, err)
	defer release()

	require.NoError(t, mr.Set(key, "someone-else"))
	mr.SetTTL(key, 50*time.Millisecond)
	time.Sleep(250 * time.Millisecond)
	assert.LessOrEqual(t, mr.TTL(key), 50*time.Millisecond)

	release()
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got, "release leaves a lease it no longer owns")
}
