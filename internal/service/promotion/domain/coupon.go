// internal/service/promotion/domain/coupon.go
package domain

import "time"

// CouponStatus 定义了优惠券的生命周期状态。
// 除 暂停/待发放 <-> 发放中 外，状态迁移是单向的。
type CouponStatus int

const (
	StatusDraft    CouponStatus = 1 // 待发放
	StatusUnIssue  CouponStatus = 2 // 已定时，未开始发放
	StatusIssuing  CouponStatus = 3 // 发放中
	StatusFinished CouponStatus = 4 // 发放结束（兑换截止）
	StatusPaused   CouponStatus = 5 // 暂停发放
)

// DiscountType 优惠类型
type DiscountType int

const (
	DiscountFixed   DiscountType = 1 // 满减券：满 threshold 减 discountValue
	DiscountPercent DiscountType = 2 // 折扣券：discountValue 为用户实付比例（85 = 8.5折）
)

// ObtainType 领取方式
type ObtainType int

const (
	ObtainPublic ObtainType = 1 // 公开手动领取
	ObtainCode   ObtainType = 2 // 兑换码兑换
)

// Coupon 是优惠券的规则信息。金额字段一律为整数分。
// 不变式：IssueNum <= TotalNum 在任何可观测时刻都成立，
// 由仓储层的条件自增保证。
type Coupon struct {
	ID              int64
	Name            string
	DiscountType    DiscountType
	Specific        bool // 是否限定使用范围
	ThresholdAmount int  // 使用门槛，0 代表无门槛
	DiscountValue   int  // 满减券为减免金额（分）；折扣券为实付比例
	MaxDiscount     int  // 折扣券的最高减免金额（分）
	TotalNum        int  // 发放总数量
	IssueNum        int  // 已发放数量
	UserLimit       int  // 每人限领数量
	ObtainWay       ObtainType
	Status          CouponStatus

	IssueBeginTime time.Time
	IssueEndTime   time.Time

	// 使用有效期：固定区间（TermBegin/TermEnd）或领取后 TermDays 天，二选一
	TermDays      int
	TermBeginTime time.Time
	TermEndTime   time.Time
}

// IsIssuingAt 判断 t 是否落在发放窗口 [IssueBeginTime, IssueEndTime) 内。
func (c *Coupon) IsIssuingAt(t time.Time) bool {
	return !t.Before(c.IssueBeginTime) && t.Before(c.IssueEndTime)
}

// UserTermWindow 计算一次授予的使用有效期。
// 固定有效期的券直接拷贝，按天数的券从授予时刻起算。
func (c *Coupon) UserTermWindow(grantedAt time.Time) (begin, end time.Time) {
	if c.TermBeginTime.IsZero() && c.TermEndTime.IsZero() {
		return grantedAt, grantedAt.AddDate(0, 0, c.TermDays)
	}
	return c.TermBeginTime, c.TermEndTime
}

// CouponScope 是优惠券与分类的限定关系，仅 Specific=true 的券存在。
type CouponScope struct {
	CouponID int64
	BizID    int64 // 分类 id
	Type     int   // 预留：1=分类，后续可扩展到课程维度
}

// CouponSnapshot 是发放中的优惠券在缓存里的热字段影子。
// TotalNum 在这里是 advisory 库存，只用于快速路径预检，
// 权威的库存控制在 CouponStore 的条件自增上。
type CouponSnapshot struct {
	IssueBeginTime time.Time
	IssueEndTime   time.Time
	TotalNum       int
	UserLimit      int
}
