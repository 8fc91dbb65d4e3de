// 包 leader：写入许可（“当前实例是否允许写入”）
// 背景：集群单例的选举由外部完成，同步器只在入口读取这个布尔能力
package leader

import (
	"context"
	"sync/atomic"
	"time"

	"gbfs-sync/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Leader interface {
	IsLeader() bool
}

// Static：固定许可，用于单实例部署与测试
type Static bool

func (s Static) IsLeader() bool { return bool(s) }

// Func：适配外部提供的判断函数
type Func func() bool

func (f Func) IsLeader() bool { return f() }

// renewScript：仅当租约仍属于本实例时续期
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease：基于 SET NX PX 的写入租约
// 约束：只是租约而非共识；续期间隔为 TTL 的三分之一，续期失败立即放弃许可
type RedisLease struct {
	rc   *redis.Client
	key  string
	id   string
	ttl  time.Duration
	held atomic.Bool

	// OnAcquire：从非 leader 变为 leader 时在新协程中调用；须在 Start 之前设置
	OnAcquire func(ctx context.Context)
}

func NewRedisLease(rc *redis.Client, key string, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisLease{rc: rc, key: key, id: uuid.NewString(), ttl: ttl}
}

func (l *RedisLease) IsLeader() bool { return l.held.Load() }

func (l *RedisLease) ID() string { return l.id }

// Start：启动争抢与续期循环；ctx 取消时释放租约
func (l *RedisLease) Start(ctx context.Context) {
	l.tick(ctx)
	t := time.NewTicker(l.ttl / 3)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				l.release()
				return
			case <-t.C:
				l.tick(ctx)
			}
		}
	}()
}

// TryAcquire：单次争抢，不续期；供短时运维命令使用，结束时调用 Release
func (l *RedisLease) TryAcquire(ctx context.Context) bool {
	l.tick(ctx)
	return l.IsLeader()
}

func (l *RedisLease) Release() { l.release() }

func (l *RedisLease) tick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, l.ttl/3)
	defer cancel()
	was := l.held.Load()
	var now bool
	if was {
		n, err := renewScript.Run(ctx, l.rc, []string{l.key}, l.id, l.ttl.Milliseconds()).Int()
		now = err == nil && n == 1
	} else {
		ok, err := l.rc.SetNX(ctx, l.key, l.id, l.ttl).Result()
		now = err == nil && ok
	}
	l.held.Store(now)
	if now != was {
		logger.L().Info("leader_changed", "leader", now, "instance", l.id)
		if now && l.OnAcquire != nil {
			go l.OnAcquire(parent)
		}
	}
}

func (l *RedisLease) release() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if l.held.Swap(false) {
		_ = releaseScript.Run(ctx, l.rc, []string{l.key}, l.id).Err()
		logger.L().Info("leader_released", "instance", l.id)
	}
}
