package controllers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	MaxFailedLogins = 5
	LockoutWindow   = 15 * time.Minute
)

// LoginLockout counts failed logins per account and blocks the account once
// the limit is reached within the window.
type LoginLockout interface {
	Locked(ctx context.Context, email string) (bool, error)
	Fail(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

type RedisLockout struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLockout(client *redis.Client, prefix string) *RedisLockout {
	return &RedisLockout{client: client, prefix: prefix, limit: MaxFailedLogins, window: LockoutWindow}
}

func (l *RedisLockout) key(email string) string {
	return l.prefix + ":lockout:" + strings.ToLower(email)
}

func (l *RedisLockout) Locked(ctx context.Context, email string) (bool, error) {
	n, err := l.client.Get(ctx, l.key(email)).Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return n >= l.limit, nil
}

func (l *RedisLockout) Fail(ctx context.Context, email string) error {
	key := l.key(email)
	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if n == 1 {
		return l.client.Expire(ctx, key, l.window).Err()
	}
	return nil
}

func (l *RedisLockout) Reset(ctx context.Context, email string) error {
	return l.client.Del(ctx, l.key(email)).Err()
}

type failures struct {
	count int
	since time.Time
}

// MemoryLockout is used when no Redis is configured
type MemoryLockout struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	seen   map[string]failures
}

func NewMemoryLockout() *MemoryLockout {
	return &MemoryLockout{
		limit:  MaxFailedLogins,
		window: LockoutWindow,
		now:    time.Now,
		seen:   make(map[string]failures),
	}
}

// current drops an expired entry. Caller holds mu.
func (l *MemoryLockout) current(email string) failures {
	f, ok := l.seen[email]
	if ok && l.now().Sub(f.since) >= l.window {
		delete(l.seen, email)
		return failures{}
	}
	return f
}

func (l *MemoryLockout) Locked(_ context.Context, email string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current(strings.ToLower(email)).count >= l.limit, nil
}

func (l *MemoryLockout) Fail(_ context.Context, email string) error {
	email = strings.ToLower(email)
	l.mu.Lock()
	defer l.mu.Unlock()
	f := l.current(email)
	if f.count == 0 {
		f.since = l.now()
	}
	f.count++
	l.seen[email] = f
	return nil
}

func (l *MemoryLockout) Reset(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.seen, strings.ToLower(email))
	return nil
}
