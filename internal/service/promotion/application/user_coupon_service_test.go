// internal/service/promotion/application/user_coupon_service_test.go
package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"polaris/internal/service/promotion/codec"
	"polaris/internal/service/promotion/domain"
)

type gateFixture struct {
	svc       *UserCouponService
	coupons   *memCouponRepo
	userCoups *memUserCouponRepo
	cache     *memCache
	mark      *memMark
	codes     *memCodeRepo
	producer  *memProducer
}

func newGateFixture() *gateFixture {
	coupons := newMemCouponRepo()
	userCoups := newMemUserCouponRepo(coupons)
	codes := newMemCodeRepo()
	cache := newMemCache()
	mark := newMemMark()
	producer := &memProducer{}
	grants := newMemGrantStore(coupons, userCoups, codes)
	svc := NewUserCouponService(
		coupons, cache, mark, codes, grants, producer,
		newChanLocker(), time.Second, noop.NewTracerProvider().Tracer("test"),
	)
	return &gateFixture{
		svc: svc, coupons: coupons, userCoups: userCoups,
		cache: cache, mark: mark, codes: codes, producer: producer,
	}
}

// seedIssuingCoupon 建一张发放中的券并发布缓存快照。
func (f *gateFixture) seedIssuingCoupon(t *testing.T, c domain.Coupon) *domain.Coupon {
	t.Helper()
	ctx := context.Background()
	if c.Status == 0 {
		c.Status = domain.StatusIssuing
	}
	if c.IssueBeginTime.IsZero() {
		c.IssueBeginTime = time.Now().Add(-time.Hour)
	}
	if c.IssueEndTime.IsZero() {
		c.IssueEndTime = time.Now().Add(time.Hour)
	}
	require.NoError(t, f.coupons.Create(ctx, &c, nil))
	require.NoError(t, f.cache.Publish(ctx, c.ID, &domain.CouponSnapshot{
		IssueBeginTime: c.IssueBeginTime,
		IssueEndTime:   c.IssueEndTime,
		TotalNum:       c.TotalNum - c.IssueNum,
		UserLimit:      c.UserLimit,
	}))
	return &c
}

func TestReceiveCouponEnqueuesIntent(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "a", TotalNum: 10, UserLimit: 2, ObtainWay: domain.ObtainPublic})

	require.NoError(t, f.svc.ReceiveCoupon(context.Background(), c.ID, 7))

	intents := f.producer.drain()
	require.Len(t, intents, 1)
	assert.Equal(t, c.ID, intents[0].CouponID)
	assert.Equal(t, int64(7), intents[0].UserID)
	assert.NotEmpty(t, intents[0].EventID)

	snap, err := f.cache.Fetch(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, snap.TotalNum)
}

func TestReceiveCouponOutsideWindow(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{
		Name: "later", TotalNum: 10, UserLimit: 1,
		IssueBeginTime: time.Now().Add(time.Hour),
		IssueEndTime:   time.Now().Add(2 * time.Hour),
	})

	err := f.svc.ReceiveCoupon(context.Background(), c.ID, 7)
	assert.ErrorIs(t, err, domain.ErrNotIssuing)
	assert.Empty(t, f.producer.drain())
}

func TestReceiveCouponUserLimitSaturates(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "limit1", TotalNum: 10, UserLimit: 1})

	require.NoError(t, f.svc.ReceiveCoupon(context.Background(), c.ID, 7))
	err := f.svc.ReceiveCoupon(context.Background(), c.ID, 7)
	assert.ErrorIs(t, err, domain.ErrUserLimitExceeded)

	// 超限后计数不回滚，第三次仍然超限
	err = f.svc.ReceiveCoupon(context.Background(), c.ID, 7)
	assert.ErrorIs(t, err, domain.ErrUserLimitExceeded)
	assert.Len(t, f.producer.drain(), 1)
}

func TestReceiveCouponCacheMissFallsBackToStore(t *testing.T) {
	f := newGateFixture()
	ctx := context.Background()
	c := &domain.Coupon{
		Name: "cold", TotalNum: 5, UserLimit: 1,
		Status:         domain.StatusIssuing,
		IssueBeginTime: time.Now().Add(-time.Hour),
		IssueEndTime:   time.Now().Add(time.Hour),
	}
	require.NoError(t, f.coupons.Create(ctx, c, nil))

	require.NoError(t, f.svc.ReceiveCoupon(ctx, c.ID, 7))

	// 回源成功后快照被重新发布
	snap, err := f.cache.Fetch(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 4, snap.TotalNum)
}

func TestReceiveCouponConcurrentStockOne(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "stock1", TotalNum: 1, UserLimit: 1})

	errs := make(chan error, 2)
	for _, userID := range []int64{7, 8} {
		go func() {
			errs <- f.svc.ReceiveCoupon(context.Background(), c.ID, userID)
		}()
	}
	var okCnt, outCnt int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			okCnt++
		case assert.ErrorIs(t, err, domain.ErrOutOfStock):
			outCnt++
		}
	}
	assert.Equal(t, 1, okCnt)
	assert.Equal(t, 1, outCnt)

	// 物化唯一的意图后，权威计数恰好为 1
	intents := f.producer.drain()
	require.Len(t, intents, 1)
	require.NoError(t, f.svc.MaterializeGrant(context.Background(), intents[0]))
	got, err := f.coupons.FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.IssueNum)
}

func TestMaterializeGrantIdempotent(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "idem", TotalNum: 10, UserLimit: 5})
	intent := &domain.GrantIntent{EventID: "evt-1", UserID: 7, CouponID: c.ID}

	require.NoError(t, f.svc.MaterializeGrant(context.Background(), intent))
	require.NoError(t, f.svc.MaterializeGrant(context.Background(), intent))

	n, err := f.userCoups.CountByUserAndCoupon(context.Background(), 7, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.coupons.FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.IssueNum)
}

func TestMaterializeGrantDroppedByStockGuard(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "sold-out", TotalNum: 1, IssueNum: 1, UserLimit: 1})

	// 超卖的意图被静默丢弃，不算错误
	err := f.svc.MaterializeGrant(context.Background(), &domain.GrantIntent{EventID: "evt-2", UserID: 7, CouponID: c.ID})
	require.NoError(t, err)

	n, err := f.userCoups.CountByUserAndCoupon(context.Background(), 7, c.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMaterializeGrantMissingCouponDropped(t *testing.T) {
	f := newGateFixture()
	err := f.svc.MaterializeGrant(context.Background(), &domain.GrantIntent{EventID: "evt-3", UserID: 7, CouponID: 999})
	assert.NoError(t, err)
}

// mintOne 为一张券铸一个兑换码并落到内存仓储。
func (f *gateFixture) mintOne(t *testing.T, couponID int64, expiry time.Time) (string, int64) {
	t.Helper()
	ctx := context.Background()
	serial, err := f.mark.ReserveSerials(ctx, 1)
	require.NoError(t, err)
	code, err := codec.Generate(serial, couponID)
	require.NoError(t, err)
	require.NoError(t, f.codes.SaveBatch(ctx, []*domain.ExchangeCode{{
		ID: serial, Code: code, ExchangeTargetID: couponID,
		Status: domain.CodeUnused, ExpiredTime: expiry,
	}}))
	return code, serial
}

func TestExchangeCouponGrantsAndMarksCode(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "ex", TotalNum: 10, UserLimit: 1, ObtainWay: domain.ObtainCode, TermDays: 30})
	code, serial := f.mintOne(t, c.ID, time.Now().Add(time.Hour))

	require.NoError(t, f.svc.ExchangeCoupon(context.Background(), code, 7))

	row, err := f.codes.FindBySerial(context.Background(), serial)
	require.NoError(t, err)
	assert.Equal(t, domain.CodeUsed, row.Status)
	assert.Equal(t, int64(7), row.UserID)

	n, err := f.userCoups.CountByUserAndCoupon(context.Background(), 7, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.coupons.FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.IssueNum)
}

func TestExchangeCouponSameCodeTwice(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "ex2", TotalNum: 10, UserLimit: 2, ObtainWay: domain.ObtainCode, TermDays: 30})
	code, _ := f.mintOne(t, c.ID, time.Now().Add(time.Hour))

	require.NoError(t, f.svc.ExchangeCoupon(context.Background(), code, 7))
	err := f.svc.ExchangeCoupon(context.Background(), code, 8)
	assert.ErrorIs(t, err, domain.ErrAlreadyRedeemed)

	n, err := f.userCoups.CountByUserAndCoupon(context.Background(), 8, c.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExchangeCouponFailureReopensCode(t *testing.T) {
	f := newGateFixture()
	ctx := context.Background()

	// 码在去重位图上被标记，但下游查不到对应记录
	serial, err := f.mark.ReserveSerials(ctx, 1)
	require.NoError(t, err)
	code, err := codec.Generate(serial, 1)
	require.NoError(t, err)

	err = f.svc.ExchangeCoupon(ctx, code, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// 失败后标记必须回滚，补齐记录后合法重试要能成功
	marked, err := f.mark.SetMark(ctx, serial, false)
	require.NoError(t, err)
	assert.False(t, marked)

	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "retry", TotalNum: 10, UserLimit: 1, ObtainWay: domain.ObtainCode, TermDays: 30})
	require.Equal(t, int64(1), c.ID)
	require.NoError(t, f.codes.SaveBatch(ctx, []*domain.ExchangeCode{{
		ID: serial, Code: code, ExchangeTargetID: c.ID,
		Status: domain.CodeUnused, ExpiredTime: time.Now().Add(time.Hour),
	}}))
	assert.NoError(t, f.svc.ExchangeCoupon(ctx, code, 7))
}

func TestExchangeCouponExpired(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "old", TotalNum: 10, UserLimit: 1, ObtainWay: domain.ObtainCode, TermDays: 30})
	code, serial := f.mintOne(t, c.ID, time.Now().Add(-time.Minute))

	err := f.svc.ExchangeCoupon(context.Background(), code, 7)
	assert.ErrorIs(t, err, domain.ErrExpired)

	// 过期失败同样回滚标记
	marked, err := f.mark.SetMark(context.Background(), serial, false)
	require.NoError(t, err)
	assert.False(t, marked)
}

func TestExchangeCouponMalformedCode(t *testing.T) {
	f := newGateFixture()
	err := f.svc.ExchangeCoupon(context.Background(), "definitely-not-a-code", 7)
	assert.ErrorIs(t, err, domain.ErrInvalidCode)
}

func TestExchangeCouponUserLimitRollsBackMark(t *testing.T) {
	f := newGateFixture()
	c := f.seedIssuingCoupon(t, domain.Coupon{Name: "lim", TotalNum: 10, UserLimit: 1, ObtainWay: domain.ObtainCode, TermDays: 30})
	code1, _ := f.mintOne(t, c.ID, time.Now().Add(time.Hour))
	code2, serial2 := f.mintOne(t, c.ID, time.Now().Add(time.Hour))

	require.NoError(t, f.svc.ExchangeCoupon(context.Background(), code1, 7))
	err := f.svc.ExchangeCoupon(context.Background(), code2, 7)
	assert.ErrorIs(t, err, domain.ErrUserLimitExceeded)

	// 第二个码对其他用户仍然可用
	marked, err := f.mark.SetMark(context.Background(), serial2, false)
	require.NoError(t, err)
	assert.False(t, marked)
	require.NoError(t, f.svc.ExchangeCoupon(context.Background(), code2, 8))
}

func TestResultCodeFoldsErrors(t *testing.T) {
	assert.Equal(t, "ok", resultCode(nil))
	assert.Equal(t, "out_of_stock", resultCode(fmt.Errorf("wrapped: %w", domain.ErrOutOfStock)))
	assert.Equal(t, "internal", resultCode(fmt.Errorf("boom")))
}
