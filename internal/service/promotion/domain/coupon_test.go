// internal/service/promotion/domain/coupon_test.go
package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCouponIsIssuingAt(t *testing.T) {
	begin := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	c := &Coupon{IssueBeginTime: begin, IssueEndTime: end}

	assert.True(t, c.IsIssuingAt(begin))
	assert.True(t, c.IsIssuingAt(begin.Add(time.Hour)))
	assert.False(t, c.IsIssuingAt(begin.Add(-time.Second)))
	// 窗口右端开区间
	assert.False(t, c.IsIssuingAt(end))
}

func TestCouponUserTermWindow(t *testing.T) {
	grantedAt := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

	// 按天数的有效期从授予时刻起算
	byDays := &Coupon{TermDays: 7}
	begin, end := byDays.UserTermWindow(grantedAt)
	assert.Equal(t, grantedAt, begin)
	assert.Equal(t, grantedAt.AddDate(0, 0, 7), end)

	// 固定区间的有效期原样下发
	fixedBegin := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	fixedEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	fixed := &Coupon{TermBeginTime: fixedBegin, TermEndTime: fixedEnd, TermDays: 7}
	begin, end = fixed.UserTermWindow(grantedAt)
	assert.Equal(t, fixedBegin, begin)
	assert.Equal(t, fixedEnd, end)
}

func TestUserCouponIsUsableAt(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	uc := &UserCoupon{
		Status:        UserCouponUnused,
		TermBeginTime: now.Add(-time.Hour),
		TermEndTime:   now.Add(time.Hour),
	}
	assert.True(t, uc.IsUsableAt(now))

	used := *uc
	used.Status = UserCouponUsed
	assert.False(t, used.IsUsableAt(now))

	expired := *uc
	expired.TermEndTime = now.Add(-time.Minute)
	assert.False(t, expired.IsUsableAt(now))
}

func TestExchangeCodeIsExpiredAt(t *testing.T) {
	now := time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	code := &ExchangeCode{ExpiredTime: now}
	assert.False(t, code.IsExpiredAt(now))
	assert.True(t, code.IsExpiredAt(now.Add(time.Second)))
}
