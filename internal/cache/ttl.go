package cache

import "time"

// TTL：根据源数据的 last_updated 与 ttl 计算缓存过期时长
// 背景：源数据越旧，剩余有效期越短；至少保留 min，max 大于 0 时不超过 max
func TTL(now time.Time, lastUpdated time.Time, ttl, min, max time.Duration) time.Duration {
	d := lastUpdated.Add(ttl).Sub(now)
	if d < min {
		d = min
	}
	if max > 0 && d > max {
		d = max
	}
	return d.Truncate(time.Second)
}
