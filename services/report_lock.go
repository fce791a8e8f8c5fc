package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a lock could not be acquired before the context ended.
var ErrLockTimeout = errors.New("lock: timed out waiting for report lock")

const (
	reportLockPrefix = "lock:payment_report:"
	// reportLockTTL is the lease length. The holder refreshes it every third of
	// the TTL, so a crashed holder frees the key within one TTL.
	reportLockTTL      = 30 * time.Second
	reportLockInterval = 200 * time.Millisecond
)

// Locker serialises work on one key across generate and regenerate calls.
type Locker interface {
	// Acquire blocks until the key is held or ctx is done. The returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string) (func(), error)
}

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the lease only if the key still carries our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is an advisory lock shared by every engine instance using the same redis.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, ttl: reportLockTTL}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := reportLockPrefix + key
	token := uuid.NewString()

	ticker := time.NewTicker(reportLockInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			stop := make(chan struct{})
			go l.keepAlive(redisKey, token, stop)
			var once sync.Once
			return func() {
				once.Do(func() {
					close(stop)
					// Release must not depend on the caller's context still being live.
					releaseScript.Run(context.Background(), l.client, []string{redisKey}, token)
				})
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}

// keepAlive refreshes the lease until stop is closed or the key is no longer ours.
func (l *RedisLocker) keepAlive(key, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := refreshScript.Run(context.Background(), l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			if err == nil && n == 0 {
				return
			}
		}
	}
}

// LocalLocker serialises within one process. Used when redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}
}

// NewReportLocker picks the redis lock when a client is available.
func NewReportLocker(client *redis.Client) Locker {
	if client != nil {
		return NewRedisLocker(client)
	}
	return NewLocalLocker()
}
