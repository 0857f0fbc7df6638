package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/bankledger/internal/ledger/domain"
	"github.com/wyfcoding/bankledger/pkg/cache"
	"github.com/wyfcoding/bankledger/pkg/logger"
)

var errLockHeld = errors.New("lock held by another holder")

// 只删除自己持有的锁
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的分布式锁，多实例共享同一账户集合时使用
type RedisLocker struct {
	cache  *cache.RedisCache
	prefix string
	ttl    time.Duration
}

// NewRedisLocker 创建分布式锁，ttl 应大于单笔交易的最长处理时间
func NewRedisLocker(c *cache.RedisCache, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{cache: c, prefix: "ledger:lock:", ttl: ttl}
}

// Lock 实现 domain.Locker
func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = sortedKeys(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))

	for _, key := range keys {
		if err := l.acquire(ctx, l.prefix+key, token); err != nil {
			l.releaseAll(held, token)
			return nil, err
		}
		held = append(held, l.prefix+key)
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.releaseAll(held, token) })
	}, nil
}

func (l *RedisLocker) acquire(ctx context.Context, key, token string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (bool, error) {
		ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
		if err != nil {
			return false, backoff.Permanent(err)
		}
		if !ok {
			return false, errLockHeld
		}
		return true, nil
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0))
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: waiting for lock %s: %v", domain.ErrTimeout, key, err)
	}
	return fmt.Errorf("failed to acquire lock %s: %w", key, err)
}

func (l *RedisLocker) releaseAll(keys []string, token string) {
	// 调用方的 ctx 可能已过期，释放使用独立的短超时
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := len(keys) - 1; i >= 0; i-- {
		if err := unlockScript.Run(ctx, l.cache.GetClient(), []string{keys[i]}, token).Err(); err != nil {
			logger.Warn(ctx, "failed to release lock", "key", keys[i], "error", err)
		}
	}
}

var _ domain.Locker = (*RedisLocker)(nil)
