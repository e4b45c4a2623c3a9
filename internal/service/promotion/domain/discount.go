// internal/service/promotion/domain/discount.go
package domain

import "fmt"

// Discount 是优惠计算策略。金额入参与返回值都是整数分。
type Discount interface {
	// CanApply 判断在金额 totalAmount 上能否使用该券
	CanApply(totalAmount int, c *Coupon) bool
	// Calculate 计算在金额 totalAmount 上使用该券的减免金额
	Calculate(totalAmount int, c *Coupon) int
	// Rule 返回面向用户的规则描述
	Rule(c *Coupon) string
}

// DiscountOf 按优惠类型取对应的策略实现。
func DiscountOf(t DiscountType) Discount {
	switch t {
	case DiscountPercent:
		return percentDiscount{}
	default:
		return fixedDiscount{}
	}
}

// fixedDiscount 满减券：满 ThresholdAmount 减 DiscountValue。
type fixedDiscount struct{}

func (fixedDiscount) CanApply(totalAmount int, c *Coupon) bool {
	return totalAmount >= c.ThresholdAmount
}

func (fixedDiscount) Calculate(totalAmount int, c *Coupon) int {
	return c.DiscountValue
}

func (fixedDiscount) Rule(c *Coupon) string {
	return fmt.Sprintf("满%d元减%d元", c.ThresholdAmount/100, c.DiscountValue/100)
}

// percentDiscount 折扣券：DiscountValue 为实付比例（85 = 8.5折），
// 减免金额按比例计算并受 MaxDiscount 封顶。
type percentDiscount struct{}

func (percentDiscount) CanApply(totalAmount int, c *Coupon) bool {
	return totalAmount >= c.ThresholdAmount
}

func (percentDiscount) Calculate(totalAmount int, c *Coupon) int {
	discount := totalAmount * (100 - c.DiscountValue) / 100
	if discount > c.MaxDiscount {
		return c.MaxDiscount
	}
	return discount
}

func (percentDiscount) Rule(c *Coupon) string {
	if c.DiscountValue%10 == 0 {
		return fmt.Sprintf("满%d元打%d折，最高减%d元", c.ThresholdAmount/100, c.DiscountValue/10, c.MaxDiscount/100)
	}
	return fmt.Sprintf("满%d元打%d.%d折，最高减%d元", c.ThresholdAmount/100, c.DiscountValue/10, c.DiscountValue%10, c.MaxDiscount/100)
}
