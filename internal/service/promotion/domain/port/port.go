// internal/service/promotion/domain/port/port.go
package port

import (
	"context"
	"time"

	"polaris/internal/service/promotion/domain"
)

// CouponRepository 是优惠券规则信息的持久化端口。
type CouponRepository interface {
	// Create 在同一事务内落库优惠券本体和限定范围（scopes 可为空）
	Create(ctx context.Context, coupon *domain.Coupon, scopes []domain.CouponScope) error
	FindByID(ctx context.Context, id int64) (*domain.Coupon, error)
	// UpdateIssueInfo 更新发放相关字段（状态、发放窗口、有效期）
	UpdateIssueInfo(ctx context.Context, coupon *domain.Coupon) error
	UpdateStatus(ctx context.Context, id int64, status domain.CouponStatus) error
	// ListIssuingPublic 列出发放中且公开领取的优惠券
	ListIssuingPublic(ctx context.Context) ([]*domain.Coupon, error)
}

// CouponScopeRepository 是优惠券限定范围的持久化端口。
type CouponScopeRepository interface {
	// ListBizIDs 返回某张券限定的分类 id 集合
	ListBizIDs(ctx context.Context, couponID int64) ([]int64, error)
}

// UserCouponRepository 是用户券的持久化端口。
type UserCouponRepository interface {
	// Create 插入用户券。GrantToken 冲突视为重复投递，
	// 返回 created=false 且不报错。
	Create(ctx context.Context, uc *domain.UserCoupon) (created bool, err error)
	CountByUserAndCoupon(ctx context.Context, userID, couponID int64) (int, error)
	ListByUserAndCoupons(ctx context.Context, userID int64, couponIDs []int64) ([]*domain.UserCoupon, error)
	// ListUsableCoupons 返回用户当前未使用且在有效期内的券对应的规则信息
	ListUsableCoupons(ctx context.Context, userID int64, now time.Time) ([]*domain.Coupon, error)
}

// ExchangeCodeRepository 是兑换码的持久化端口。
// 核销动作发生在 GrantStore 的授予事务内，不在此端口单独暴露。
type ExchangeCodeRepository interface {
	SaveBatch(ctx context.Context, codes []*domain.ExchangeCode) error
	FindBySerial(ctx context.Context, serial int64) (*domain.ExchangeCode, error)
}

// CouponCache 是发放中优惠券热字段的缓存端口。
// 库存与每人已领计数是唯二在锁外被并发修改的共享状态。
type CouponCache interface {
	// Publish 在优惠券进入发放中时写入快照
	Publish(ctx context.Context, couponID int64, snap *domain.CouponSnapshot) error
	// Fetch 读取快照，未发布或已被清理时返回 (nil, nil)
	Fetch(ctx context.Context, couponID int64) (*domain.CouponSnapshot, error)
	// DecrStock 原子扣减 advisory 库存并返回扣减后的值，可以为负
	DecrStock(ctx context.Context, couponID int64) (int64, error)
	// IncrUserCount 原子自增 (couponID, userID) 的已领计数并返回自增后的值。
	// 超限时不回滚，让计数饱和，防止并发请求读到陈旧值重复通过校验。
	IncrUserCount(ctx context.Context, couponID, userID int64) (int64, error)
	// Remove 发放窗口结束后清理快照
	Remove(ctx context.Context, couponID int64) error
}

// ExchangeMark 是兑换码序列号分配与去重标记的端口。
type ExchangeMark interface {
	// ReserveSerials 通过一次原子 +count 预留连续序列号段，
	// 返回高水位 R，段为 [R-count+1, R]。
	ReserveSerials(ctx context.Context, count int) (int64, error)
	// SetMark 在全局位图上把 serial 对应的位设置为 mark，
	// 原子返回之前的位值。这是防止同码重复兑换的唯一并发守卫。
	SetMark(ctx context.Context, serial int64, mark bool) (bool, error)
	// RecordRange 记录某张券已铸码的最大序列号
	RecordRange(ctx context.Context, couponID, maxSerial int64) error
}

// GrantProducer 把授予意图事件投递到消息管道（至少一次投递）。
type GrantProducer interface {
	ProduceGrantIntent(ctx context.Context, intent *domain.GrantIntent) error
}

// GrantOutcome 是一次授予落库的结果。
type GrantOutcome int

const (
	GrantCreated       GrantOutcome = iota // 成功创建
	GrantDuplicate                         // grant token 已存在，重复投递
	GrantOutOfStock                        // 权威库存守卫失败
	GrantLimitExceeded                     // 事务内每人限领校验失败
)

// GrantOptions 控制 CreateGrant 事务内的附加动作。
type GrantOptions struct {
	// UserLimit > 0 时在事务内校验每人限领（兑换码同步路径使用；
	// 领券异步路径在缓存计数处已经校验过，这里传 0 跳过）
	UserLimit int
	// Serial > 0 时在同一事务内把对应兑换码核销为已使用
	Serial int64
}

// GrantStore 把"检查并创建用户券"收敛成一个工作单元边界：
// grant token 去重、issue_num < total_num 条件自增、可选限领校验、
// 插入用户券、可选核销兑换码，全部在一个事务内完成。
type GrantStore interface {
	CreateGrant(ctx context.Context, uc *domain.UserCoupon, opts GrantOptions) (GrantOutcome, error)
}
