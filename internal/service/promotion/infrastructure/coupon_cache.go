// internal/service/promotion/infrastructure/coupon_cache.go
package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"polaris/internal/pkg/redis"
	"polaris/internal/service/promotion/domain"
)

const (
	couponCacheKeyFmt = "prs:coupon:%d"      // hash：发放中优惠券的热字段快照
	userCountKeyFmt   = "prs:user:coupon:%d" // hash：field=userID，value=已领计数
)

const (
	fieldIssueBegin = "issueBeginTime"
	fieldIssueEnd   = "issueEndTime"
	fieldTotalNum   = "totalNum"
	fieldUserLimit  = "userLimit"
)

// CouponRedisCache 是 port.CouponCache 的 redis 实现。
// 快照是 hash，totalNum 字段兼作 advisory 库存计数器，
// HINCRBY 的原子性就是它全部的并发控制。
type CouponRedisCache struct {
	redisClient *redis.Client
}

func NewCouponRedisCache(redisClient *redis.Client) *CouponRedisCache {
	return &CouponRedisCache{redisClient: redisClient}
}

func (c *CouponRedisCache) Publish(ctx context.Context, couponID int64, snap *domain.CouponSnapshot) error {
	key := fmt.Sprintf(couponCacheKeyFmt, couponID)
	rdb := c.redisClient.GetClient()
	if err := rdb.HSet(ctx, key,
		fieldIssueBegin, snap.IssueBeginTime.UnixMilli(),
		fieldIssueEnd, snap.IssueEndTime.UnixMilli(),
		fieldTotalNum, snap.TotalNum,
		fieldUserLimit, snap.UserLimit,
	).Err(); err != nil {
		return fmt.Errorf("failed to publish coupon %d snapshot: %w", couponID, err)
	}
	// 发放窗口结束后快照没有读方，留一天余量给迟到的消费端
	if ttl := time.Until(snap.IssueEndTime.Add(24 * time.Hour)); ttl > 0 {
		return rdb.Expire(ctx, key, ttl).Err()
	}
	return nil
}

func (c *CouponRedisCache) Fetch(ctx context.Context, couponID int64) (*domain.CouponSnapshot, error) {
	key := fmt.Sprintf(couponCacheKeyFmt, couponID)
	fields, err := c.redisClient.GetClient().HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch coupon %d snapshot: %w", couponID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	beginMs, err := strconv.ParseInt(fields[fieldIssueBegin], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot for coupon %d: %w", couponID, err)
	}
	endMs, err := strconv.ParseInt(fields[fieldIssueEnd], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot for coupon %d: %w", couponID, err)
	}
	totalNum, err := strconv.Atoi(fields[fieldTotalNum])
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot for coupon %d: %w", couponID, err)
	}
	userLimit, err := strconv.Atoi(fields[fieldUserLimit])
	if err != nil {
		return nil, fmt.Errorf("corrupt snapshot for coupon %d: %w", couponID, err)
	}

	return &domain.CouponSnapshot{
		IssueBeginTime: time.UnixMilli(beginMs),
		IssueEndTime:   time.UnixMilli(endMs),
		TotalNum:       totalNum,
		UserLimit:      userLimit,
	}, nil
}

func (c *CouponRedisCache) DecrStock(ctx context.Context, couponID int64) (int64, error) {
	key := fmt.Sprintf(couponCacheKeyFmt, couponID)
	return c.redisClient.GetClient().HIncrBy(ctx, key, fieldTotalNum, -1).Result()
}

func (c *CouponRedisCache) IncrUserCount(ctx context.Context, couponID, userID int64) (int64, error) {
	key := fmt.Sprintf(userCountKeyFmt, couponID)
	return c.redisClient.GetClient().HIncrBy(ctx, key, strconv.FormatInt(userID, 10), 1).Result()
}

// Remove 只清快照，不清每人已领计数：暂停后恢复发放时限领额度要延续。
func (c *CouponRedisCache) Remove(ctx context.Context, couponID int64) error {
	key := fmt.Sprintf(couponCacheKeyFmt, couponID)
	return c.redisClient.GetClient().Del(ctx, key).Err()
}
