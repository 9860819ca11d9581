package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker keeps replicas from sweeping the same interval twice.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// releaseScript deletes the key only if we still own it.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

// RedisLock is a single-key SET NX PX lock. The TTL should be shorter than the
// sweep interval so a crashed holder does not block the next run.
type RedisLock struct {
	Client *redis.Client
	Key    string
	TTL    time.Duration
	Token  func() string

	mu    sync.Mutex
	owned string
}

func NewRedisLock(c *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{Client: c, Key: key, TTL: ttl, Token: uuid.NewString}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token := l.Token()
	ok, err := l.Client.SetNX(ctx, l.Key, token, l.TTL).Result()
	if err != nil {
		return false, err
	}
	if ok {
		l.owned = token
	}
	return ok, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owned == "" {
		return nil
	}
	token := l.owned
	l.owned = ""
	return l.Client.Eval(ctx, releaseScript, []string{l.Key}, token).Err()
}
