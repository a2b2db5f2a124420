package service

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayTTL 重放窗口，与时间戳新鲜度窗口一致
const ReplayTTL = 20 * time.Second

// replayCache 防重放只需要 SETNX 一条命令
type replayCache interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// ReplayGuard 签名防重放守卫
// SetNX 把存在性检查和写入合并为一次原子操作，重复签名不会刷新TTL
type ReplayGuard struct {
	cache replayCache
}

func NewReplayGuard(cache replayCache) *ReplayGuard {
	return &ReplayGuard{cache: cache}
}

// SeenBefore 原子地记录并判断签名是否在窗口内出现过
// 缓存不可用时直接报错拒绝请求，不能当作"未见过"放行
func (g *ReplayGuard) SeenBefore(ctx context.Context, sign string) (bool, error) {
	fresh, err := g.cache.SetNX(ctx, "sign:"+sign, "1", ReplayTTL).Result()
	if err != nil {
		log.Printf("防重放缓存访问失败: %v", err)
		return false, ErrStoreUnavailable
	}
	return !fresh, nil
}
