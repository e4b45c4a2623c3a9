// internal/service/promotion/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"polaris/internal/service/promotion/domain"
)

// CouponModel 对应数据库中的 coupon 表。金额字段存整数分。
type CouponModel struct {
	ID                int64 `gorm:"primaryKey;autoIncrement"`
	Name              string
	DiscountType      domain.DiscountType `gorm:"type:tinyint"`
	Specific          bool
	ThresholdAmount   int
	DiscountValue     int
	MaxDiscountAmount int
	TotalNum          int
	IssueNum          int
	UserLimit         int
	ObtainWay         domain.ObtainType   `gorm:"type:tinyint;default:1"`
	Status            domain.CouponStatus `gorm:"type:tinyint;default:1;index"`
	IssueBeginTime    time.Time
	IssueEndTime      time.Time
	TermDays          int
	TermBeginTime     time.Time
	TermEndTime       time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (CouponModel) TableName() string {
	return "coupon"
}

// CouponScopeModel 对应 coupon_scope 表，仅限定范围的券有记录。
type CouponScopeModel struct {
	ID       int64 `gorm:"primaryKey;autoIncrement"`
	CouponID int64 `gorm:"index"`
	BizID    int64
	Type     int `gorm:"type:tinyint;default:1"`
}

func (CouponScopeModel) TableName() string {
	return "coupon_scope"
}

// UserCouponModel 对应 user_coupon 表。
// GrantToken 上的唯一索引是至少一次投递收敛成恰好一次落库的根基。
type UserCouponModel struct {
	ID            int64                   `gorm:"primaryKey;autoIncrement"`
	UserID        int64                   `gorm:"index:idx_user_coupon"`
	CouponID      int64                   `gorm:"index:idx_user_coupon"`
	Status        domain.UserCouponStatus `gorm:"type:tinyint;default:1"`
	GrantToken    string                  `gorm:"size:64;uniqueIndex"`
	TermBeginTime time.Time
	TermEndTime   time.Time
	CreatedAt     time.Time
}

func (UserCouponModel) TableName() string {
	return "user_coupon"
}

// ExchangeCodeModel 对应 exchange_code 表。
// 主键就是全局序列号，铸码时显式赋值，不用自增。
type ExchangeCodeModel struct {
	ID               int64  `gorm:"primaryKey;autoIncrement:false"`
	Code             string `gorm:"size:32"`
	ExchangeTargetID int64  `gorm:"index"`
	UserID           int64
	Status           domain.ExchangeCodeStatus `gorm:"type:tinyint;default:1"`
	ExpiredTime      time.Time
	CreatedAt        time.Time
}

func (ExchangeCodeModel) TableName() string {
	return "exchange_code"
}
