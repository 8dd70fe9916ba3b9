// 包 cache：接口响应缓存；配置 Redis 时使用 Redis，否则回退到进程内 LRU
package cache

import (
	"context"
	"encoding/json"
	"pmtiles-api/internal/logger"
	"pmtiles-api/internal/metrics"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache：值为序列化后的字节；实现需并发安全，失败静默降级为未命中
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// New：rc 为 nil 时返回容量为 lruCap 的进程内缓存
func New(rc *redis.Client, lruCap int) Cache {
	if rc != nil {
		return &Redis{rc: rc, prefix: "pmtiles:"}
	}
	return NewLRU(lruCap)
}

func GetJSON(ctx context.Context, c Cache, key string, dst any) bool {
	b, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		logger.L().Debug("cache_decode_error", "key", key, "err", err)
		return false
	}
	return true
}

func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.Set(ctx, key, b, ttl)
}

// Redis：键统一加前缀，避免与同库其他业务冲突
type Redis struct {
	rc     *redis.Client
	prefix string
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.rc.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.L().Debug("redis_get_error", "key", key, "err", err)
		}
		metrics.CacheMissesTotal.WithLabelValues("redis").Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.WithLabelValues("redis").Inc()
	return b, true
}

func (r *Redis) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if err := r.rc.Set(ctx, r.prefix+key, val, ttl).Err(); err != nil {
		logger.L().Debug("redis_set_error", "key", key, "err", err)
	}
}
