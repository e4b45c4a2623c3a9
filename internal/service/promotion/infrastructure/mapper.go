// internal/service/promotion/infrastructure/mapper.go
package infrastructure

import (
	"polaris/internal/service/promotion/domain"
)

// toDomainCoupon 将数据库模型转换为领域模型
func toDomainCoupon(m *CouponModel) *domain.Coupon {
	if m == nil {
		return nil
	}
	return &domain.Coupon{
		ID:              m.ID,
		Name:            m.Name,
		DiscountType:    m.DiscountType,
		Specific:        m.Specific,
		ThresholdAmount: m.ThresholdAmount,
		DiscountValue:   m.DiscountValue,
		MaxDiscount:     m.MaxDiscountAmount,
		TotalNum:        m.TotalNum,
		IssueNum:        m.IssueNum,
		UserLimit:       m.UserLimit,
		ObtainWay:       m.ObtainWay,
		Status:          m.Status,
		IssueBeginTime:  m.IssueBeginTime,
		IssueEndTime:    m.IssueEndTime,
		TermDays:        m.TermDays,
		TermBeginTime:   m.TermBeginTime,
		TermEndTime:     m.TermEndTime,
	}
}

// fromDomainCoupon 将领域模型转换为数据库模型
func fromDomainCoupon(c *domain.Coupon) *CouponModel {
	if c == nil {
		return nil
	}
	return &CouponModel{
		ID:                c.ID,
		Name:              c.Name,
		DiscountType:      c.DiscountType,
		Specific:          c.Specific,
		ThresholdAmount:   c.ThresholdAmount,
		DiscountValue:     c.DiscountValue,
		MaxDiscountAmount: c.MaxDiscount,
		TotalNum:          c.TotalNum,
		IssueNum:          c.IssueNum,
		UserLimit:         c.UserLimit,
		ObtainWay:         c.ObtainWay,
		Status:            c.Status,
		IssueBeginTime:    c.IssueBeginTime,
		IssueEndTime:      c.IssueEndTime,
		TermDays:          c.TermDays,
		TermBeginTime:     c.TermBeginTime,
		TermEndTime:       c.TermEndTime,
	}
}

func toDomainUserCoupon(m *UserCouponModel) *domain.UserCoupon {
	if m == nil {
		return nil
	}
	return &domain.UserCoupon{
		ID:            m.ID,
		UserID:        m.UserID,
		CouponID:      m.CouponID,
		Status:        m.Status,
		GrantToken:    m.GrantToken,
		TermBeginTime: m.TermBeginTime,
		TermEndTime:   m.TermEndTime,
		CreatedAt:     m.CreatedAt,
	}
}

func fromDomainUserCoupon(uc *domain.UserCoupon) *UserCouponModel {
	if uc == nil {
		return nil
	}
	return &UserCouponModel{
		ID:            uc.ID,
		UserID:        uc.UserID,
		CouponID:      uc.CouponID,
		Status:        uc.Status,
		GrantToken:    uc.GrantToken,
		TermBeginTime: uc.TermBeginTime,
		TermEndTime:   uc.TermEndTime,
	}
}

func toDomainExchangeCode(m *ExchangeCodeModel) *domain.ExchangeCode {
	if m == nil {
		return nil
	}
	return &domain.ExchangeCode{
		ID:               m.ID,
		Code:             m.Code,
		ExchangeTargetID: m.ExchangeTargetID,
		UserID:           m.UserID,
		Status:           m.Status,
		ExpiredTime:      m.ExpiredTime,
	}
}

func fromDomainExchangeCode(c *domain.ExchangeCode) *ExchangeCodeModel {
	if c == nil {
		return nil
	}
	return &ExchangeCodeModel{
		ID:               c.ID,
		Code:             c.Code,
		ExchangeTargetID: c.ExchangeTargetID,
		UserID:           c.UserID,
		Status:           c.Status,
		ExpiredTime:      c.ExpiredTime,
	}
}
