// internal/service/promotion/domain/event.go
package domain

// GrantIntent 是领券快速路径通过后发出的持久化授予意图。
// 一经入队即是权威的：调用方放弃请求也不会回滚，消费端最终必须
// 物化或因权威库存守卫失败而丢弃。EventID 同时充当幂等 token。
type GrantIntent struct {
	EventID  string `json:"eventId"`
	UserID   int64  `json:"userId"`
	CouponID int64  `json:"couponId"`
}
