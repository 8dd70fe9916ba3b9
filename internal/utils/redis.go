// 包 utils：Redis 连接工具，统一环境变量读取与可选 DB 选择
package utils

import (
	"net"
	"os"
	"pmtiles-api/internal/logger"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptionsFromEnv：REDIS_HOST/PORT/PASS/DB；未配置 REDIS_HOST 时返回 nil
// 约束：缓存只是加速层，超时取短值，Redis 抖动时请求回落到数据库而不是排队
func RedisOptionsFromEnv() *redis.Options {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	db, err := strconv.Atoi(os.Getenv("REDIS_DB"))
	if err != nil || db < 0 {
		db = 0
	}
	return &redis.Options{
		Addr:         net.JoinHostPort(host, port),
		Password:     os.Getenv("REDIS_PASS"),
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

// OpenRedisFromEnv：返回 nil 表示未启用 Redis，调用方回退到进程内缓存
func OpenRedisFromEnv() *redis.Client {
	opt := RedisOptionsFromEnv()
	if opt == nil {
		return nil
	}
	logger.L().Debug("redis_env", "addr", opt.Addr, "db", opt.DB)
	return redis.NewClient(opt)
}
