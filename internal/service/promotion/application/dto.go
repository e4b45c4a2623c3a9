// internal/service/promotion/application/dto.go
package application

import (
	"time"

	"polaris/internal/service/promotion/domain"
)

// CouponForm 新建优惠券的入参。金额为整数分。
type CouponForm struct {
	Name            string              `json:"name"`
	DiscountType    domain.DiscountType `json:"discountType"`
	Specific        bool                `json:"specific"`
	ThresholdAmount int                 `json:"thresholdAmount"`
	DiscountValue   int                 `json:"discountValue"`
	MaxDiscount     int                 `json:"maxDiscountAmount"`
	TotalNum        int                 `json:"totalNum"`
	UserLimit       int                 `json:"userLimit"`
	ObtainWay       domain.ObtainType   `json:"obtainWay"`
	TermDays        int                 `json:"termDays"`
	TermBeginTime   time.Time           `json:"termBeginTime"`
	TermEndTime     time.Time           `json:"termEndTime"`
	Scopes          []int64             `json:"scopes"`
}

// CouponIssueForm 开始发放的入参。IssueBeginTime 为零值表示立刻发放。
type CouponIssueForm struct {
	ID             int64     `json:"id"`
	IssueBeginTime time.Time `json:"issueBeginTime"`
	IssueEndTime   time.Time `json:"issueEndTime"`
	TermDays       int       `json:"termDays"`
	TermBeginTime  time.Time `json:"termBeginTime"`
	TermEndTime    time.Time `json:"termEndTime"`
}

// CouponVO 是用户端发放中优惠券列表的一项。
type CouponVO struct {
	ID              int64               `json:"id"`
	Name            string              `json:"name"`
	DiscountType    domain.DiscountType `json:"discountType"`
	ThresholdAmount int                 `json:"thresholdAmount"`
	DiscountValue   int                 `json:"discountValue"`
	// Available：还有余量且当前用户未领满
	Available bool `json:"available"`
	// Received：当前用户持有未使用的该券
	Received bool `json:"received"`
}

// OrderLine 是参与优惠计算的一个订单行（来自订单/课程服务的不可变输入）。
type OrderLine struct {
	ID     int64 `json:"id"`
	Price  int   `json:"price"`
	CateID int64 `json:"cateId"`
}

// DiscountSolution 是一种用券方案的计算结果，不落库。
type DiscountSolution struct {
	// IDs 按实际生效的使用顺序排列
	IDs []int64 `json:"ids"`
	// Rules 与 IDs 一一对应的规则描述
	Rules []string `json:"rules"`
	// DiscountAmount 方案的总优惠金额（分）
	DiscountAmount int `json:"discountAmount"`
	// Detail 每个订单行分摊到的优惠金额，合计恒等于 DiscountAmount
	Detail map[int64]int `json:"detail"`
}
