// internal/service/promotion/domain/exchange_code.go
package domain

import "time"

// ExchangeCodeStatus 兑换码状态
type ExchangeCodeStatus int

const (
	CodeUnused ExchangeCodeStatus = 1
	CodeUsed   ExchangeCodeStatus = 2
)

// ExchangeCode 是一张可兑换一次优惠券授予的兑换码。
// ID 是全局自增序列号（铸码时通过一次 INCRBY 批量预留），
// Code 是序列号和目标券 id 的可逆混淆编码，两者一一对应，永不复用。
type ExchangeCode struct {
	ID               int64 // 全局序列号
	Code             string
	ExchangeTargetID int64 // 目标优惠券 id
	UserID           int64 // 兑换人，未兑换时为 0
	Status           ExchangeCodeStatus
	ExpiredTime      time.Time // 等于优惠券的发放截止时间
}

// IsExpiredAt 判断兑换码在 t 时刻是否已过期。
func (e *ExchangeCode) IsExpiredAt(t time.Time) bool {
	return t.After(e.ExpiredTime)
}
