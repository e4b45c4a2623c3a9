// internal/service/promotion/infrastructure/exchange_mark.go
package infrastructure

import (
	"context"
	"fmt"

	"polaris/internal/pkg/redis"

	goredis "github.com/redis/go-redis/v9"
)

const (
	serialCounterKey = "prs:code:serial" // 全局序列号高水位
	redeemBitmapKey  = "prs:code:mark"   // 按序列号索引的兑换去重位图
	codeRangeKey     = "prs:code:range"  // zset：member=couponID，score=该券最大序列号
)

// RedisExchangeMark 是 port.ExchangeMark 的 redis 实现。
// 序列号分配是一次 INCRBY，去重是一次 SETBIT，
// 两个操作的原子性都由 redis 单命令保证，不再叠加锁。
type RedisExchangeMark struct {
	redisClient *redis.Client
}

func NewRedisExchangeMark(redisClient *redis.Client) *RedisExchangeMark {
	return &RedisExchangeMark{redisClient: redisClient}
}

func (m *RedisExchangeMark) ReserveSerials(ctx context.Context, count int) (int64, error) {
	r, err := m.redisClient.GetClient().IncrBy(ctx, serialCounterKey, int64(count)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to reserve %d serials: %w", count, err)
	}
	return r, nil
}

func (m *RedisExchangeMark) SetMark(ctx context.Context, serial int64, mark bool) (bool, error) {
	bit := 0
	if mark {
		bit = 1
	}
	old, err := m.redisClient.GetClient().SetBit(ctx, redeemBitmapKey, serial, bit).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set redemption bit for serial %d: %w", serial, err)
	}
	return old == 1, nil
}

func (m *RedisExchangeMark) RecordRange(ctx context.Context, couponID, maxSerial int64) error {
	return m.redisClient.GetClient().ZAdd(ctx, codeRangeKey, goredis.Z{
		Score:  float64(maxSerial),
		Member: couponID,
	}).Err()
}
