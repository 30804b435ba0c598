package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trustcompute/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	// 默认参数
	DefaultTTL         = 30 * time.Second // 锁的 TTL，进程崩溃后自动过期
	acquireTimeout     = 5 * time.Second
	renewInterval      = 10 * time.Second
	maxHoldDuration    = 2 * time.Minute // 超过后续期协程放弃续期
	registrySyncLockID = "tcs:lock:registry-sync"
)

// RegistrySyncKey lock key guarding the chain registry sync job
const RegistrySyncKey = registrySyncLockID

// 只删除/续期自己持有的锁
var (
	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker cross-replica mutual exclusion
type Locker interface {
	// TryLock 尝试获取锁，不阻塞
	TryLock(ctx context.Context) (bool, error)

	// Unlock 释放锁
	Unlock(ctx context.Context) error

	// IsHeld 检查是否持有锁
	IsHeld() bool
}

// RedisLock Redis SET NX 锁；client 为 nil 时退化为单实例模式，总是获取成功
type RedisLock struct {
	client *redis.Client
	key    string
	value  string // 每个实例唯一，防止释放其他实例的锁
	ttl    time.Duration

	mu         sync.Mutex
	held       bool
	acquiredAt time.Time
	stopRenew  chan struct{}
}

var _ Locker = (*RedisLock)(nil)

// NewRedisLock creates a lock on key with DefaultTTL
func NewRedisLock(client *redis.Client, key string) *RedisLock {
	return NewRedisLockWithTTL(client, key, DefaultTTL)
}

// NewRedisLockWithTTL creates a lock on key with a custom TTL
func NewRedisLockWithTTL(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLock{
		client: client,
		key:    key,
		value:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryLock acquires the lock if no other instance holds it
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return true, nil
	}

	if l.client == nil {
		l.held = true
		return true, nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		logger.DebugCtx(ctx, "lock %s held by another instance", l.key)
		return false, nil
	}

	// 每次获取都新建 channel，支持多轮 TryLock/Unlock
	l.held = true
	l.acquiredAt = time.Now()
	l.stopRenew = make(chan struct{})
	go l.renew(l.stopRenew)

	logger.DebugCtx(ctx, "lock %s acquired", l.key)
	return true, nil
}

// Unlock releases the lock if this instance holds it
func (l *RedisLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return nil
	}
	l.held = false
	if l.stopRenew != nil {
		close(l.stopRenew)
		l.stopRenew = nil
	}
	l.mu.Unlock()

	if l.client == nil {
		return nil
	}

	released, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if released == 0 {
		logger.WarnCtx(ctx, "lock %s expired or taken over before release", l.key)
	}
	return nil
}

// IsHeld reports whether this instance believes it holds the lock
func (l *RedisLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// renew 后台续期，直到 Unlock、续期失败或持有过久
func (l *RedisLock) renew(stop <-chan struct{}) {
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			holdDuration := time.Since(l.acquiredAt)
			l.mu.Unlock()

			if holdDuration > maxHoldDuration {
				logger.Warnf("lock %s held for %.0fs, stop renewing", l.key, holdDuration.Seconds())
				l.markLost()
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
			renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int64()
			cancel()
			if err != nil || renewed == 0 {
				logger.Warnf("lock %s renewal failed, lock lost: %v", l.key, err)
				l.markLost()
				return
			}
		}
	}
}

func (l *RedisLock) markLost() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
}

// ErrNotAcquired returned by WithLock when another instance holds the lock
var ErrNotAcquired = errors.New("lock held by another instance")

// WithLock runs fn while holding l
func WithLock(ctx context.Context, l Locker, fn func(ctx context.Context) error) error {
	acquired, err := l.TryLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrNotAcquired
	}
	defer func() {
		if err := l.Unlock(ctx); err != nil {
			logger.WarnCtx(ctx, "unlock failed: %v", err)
		}
	}()
	return fn(ctx)
}
