// internal/service/promotion/domain/user_coupon.go
package domain

import "time"

// UserCouponStatus 用户券状态
type UserCouponStatus int

const (
	UserCouponUnused  UserCouponStatus = 1
	UserCouponUsed    UserCouponStatus = 2
	UserCouponExpired UserCouponStatus = 3
)

// UserCoupon 是用户领取优惠券的记录，每次成功授予恰好生成一条。
// GrantToken 是授予意图事件的唯一标识，带唯一索引，
// 消费端靠它把至少一次投递收敛成恰好一次落库。
type UserCoupon struct {
	ID         int64
	UserID     int64
	CouponID   int64
	Status     UserCouponStatus
	GrantToken string

	TermBeginTime time.Time
	TermEndTime   time.Time

	CreatedAt time.Time
}

// IsUsableAt 未使用且在有效期内才可参与优惠计算。
func (uc *UserCoupon) IsUsableAt(t time.Time) bool {
	return uc.Status == UserCouponUnused && !t.Before(uc.TermBeginTime) && t.Before(uc.TermEndTime)
}
