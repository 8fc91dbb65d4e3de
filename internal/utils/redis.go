// 包 utils：Redis 与 PostgreSQL 连接工具，统一环境变量读取
package utils

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"gbfs-sync/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：使用地址与密码打开 Redis 客户端，用于测试与手工注入场景
func OpenRedis(addr, pass string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass})
}

// OpenRedisFromEnv：从环境变量打开 Redis 客户端
// 约束：REDIS_DB 解析失败时回退到 0；REDIS_TIMEOUT_MS 控制读写超时，默认 5000
func OpenRedisFromEnv() *redis.Client {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	addr := host + ":" + port
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, _ := strconv.Atoi(v); n >= 0 {
			db = n
		}
	}
	timeout := EnvDuration("REDIS_TIMEOUT_MS", 5000*time.Millisecond)
	logger.L().Debug("redis_env", "addr", addr, "db", db, "timeout_ms", timeout.Milliseconds())
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     os.Getenv("REDIS_PASS"),
		DB:           db,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
}

// EnableExpiryEvents：打开键过期通知（notify-keyspace-events 含 Ex）
// 背景：缓存依赖 expired 事件向订阅者发出删除；托管 Redis 禁用 CONFIG 时仅记录警告
func EnableExpiryEvents(ctx context.Context, rc *redis.Client) error {
	cur, err := rc.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		return fmt.Errorf("config get notify-keyspace-events: %w", err)
	}
	flags := cur["notify-keyspace-events"]
	if containsAll(flags, "Ex") || containsAll(flags, "EA") {
		return nil
	}
	if err := rc.ConfigSet(ctx, "notify-keyspace-events", flags+"Ex").Err(); err != nil {
		return fmt.Errorf("config set notify-keyspace-events: %w", err)
	}
	return nil
}

func containsAll(s, chars string) bool {
	for _, c := range chars {
		found := false
		for _, x := range s {
			if x == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
