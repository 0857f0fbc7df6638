// Package cache 分析结果的 Redis 缓存
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wyfcoding/bankledger/pkg/cache"
	"github.com/wyfcoding/bankledger/pkg/logger"
	"golang.org/x/sync/singleflight"
)

// ProjectionCache 缓存可由交易日志重算的统计结果，同一 key 的并发未命中只计算一次
type ProjectionCache struct {
	redis *cache.RedisCache
	ttl   time.Duration
	group singleflight.Group
}

// NewProjectionCache 创建缓存
func NewProjectionCache(redis *cache.RedisCache, ttl time.Duration) *ProjectionCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ProjectionCache{redis: redis, ttl: ttl}
}

// Fetch 实现 application.ProjectionCache
func (c *ProjectionCache) Fetch(ctx context.Context, key string, dest any, load func(ctx context.Context) (any, error)) error {
	hit, err := c.redis.GetJSON(ctx, key, dest)
	if err != nil {
		logger.Warn(ctx, "projection cache read failed", "key", key, "error", err)
	}
	if hit {
		return nil
	}

	data, err, _ := c.group.Do(key, func() (any, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if err := c.redis.Set(ctx, key, string(raw), c.ttl); err != nil {
			logger.Warn(ctx, "projection cache write failed", "key", key, "error", err)
		}
		return raw, nil
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data.([]byte), dest); err != nil {
		return fmt.Errorf("failed to decode projection %s: %w", key, err)
	}
	return nil
}

// Invalidate 删除缓存
func (c *ProjectionCache) Invalidate(ctx context.Context, keys ...string) error {
	return c.redis.Delete(ctx, keys...)
}
