package api

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"

	"gbfs-sync/internal/logger"
)

// 文档注释：计算布隆过滤器位置
// 参数：data 为参与哈希的字节序列，m 为位图大小，k 为哈希次数（控制误判率与写入开销）。
// 背景：使用 FNV64a 结合索引扰动生成 k 个位置，用于 GetBit/SetBit。
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// 文档注释：检查布隆过滤器位图
// 背景：上游可能重投同一批次；重投的 base 与已记录的水位不一致，会被当作连续性中断而触发清空重建，因此在入口按批次指纹短周期去重。
// 返回：true 表示全部位置已置位（可能已处理过）。
// 异常：Redis 交互错误时返回 error；当 rc 为 nil 时视为“未见过”，避免阻断主流程。
func bloomTest(ctx context.Context, rc *redis.Client, key string, positions []int64) (bool, error) {
	if rc == nil {
		return false, nil
	}
	pipe := rc.Pipeline()
	cmds := make([]*redis.IntCmd, len(positions))
	for i, p := range positions {
		cmds[i] = pipe.GetBit(ctx, key, p)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	for _, c := range cmds {
		if c.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// 文档注释：写入布隆过滤器位图并刷新过期时间
func bloomSet(ctx context.Context, rc *redis.Client, key string, positions []int64, ttl time.Duration) error {
	if rc == nil {
		return nil
	}
	pipe := rc.Pipeline()
	for _, p := range positions {
		pipe.SetBit(ctx, key, p, 1)
	}
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Dedup：按批次指纹（实体类型、提供方、base、compare）去重
// 约束：只有成功应用的批次才写入；被拒绝或失败的批次可以重投
type Dedup struct {
	rc   *redis.Client
	key  string
	bits uint32
	k    int
	ttl  time.Duration
	now  func() time.Time
}

func NewDedup(rc *redis.Client) *Dedup {
	if rc == nil {
		return nil
	}
	return &Dedup{rc: rc, key: "gbfs:intake:bloom", bits: 1 << 20, k: 4, ttl: 10 * time.Minute, now: time.Now}
}

// bucket：位图按 ttl 分时间桶，避免长期累积抬高误判率
func (d *Dedup) bucket() string {
	return fmt.Sprintf("%s:%d", d.key, d.now().Unix()/int64(d.ttl/time.Second))
}

// Seen：该批次在当前时间桶内已成功应用过时返回 true；d 为空或 Redis 出错时返回 false
func (d *Dedup) Seen(ctx context.Context, fingerprint string) bool {
	if d == nil {
		return false
	}
	seen, err := bloomTest(ctx, d.rc, d.bucket(), bloomPositions([]byte(fingerprint), d.bits, d.k))
	if err != nil {
		logger.L().Warn("intake_dedup_error", "op", "test", "err", err)
		return false
	}
	return seen
}

// Mark：记录已成功应用的批次
func (d *Dedup) Mark(ctx context.Context, fingerprint string) {
	if d == nil {
		return
	}
	if err := bloomSet(ctx, d.rc, d.bucket(), bloomPositions([]byte(fingerprint), d.bits, d.k), d.ttl); err != nil {
		logger.L().Warn("intake_dedup_error", "op", "set", "err", err)
	}
}
