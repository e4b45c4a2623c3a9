// internal/service/promotion/application/coupon_service.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"polaris/internal/service/promotion/domain"
	"polaris/internal/service/promotion/domain/port"
)

// CouponService 承载优惠券的管理端用例：新建、发放、暂停，
// 以及用户端的发放中列表查询。
type CouponService struct {
	coupons   port.CouponRepository
	userCoups port.UserCouponRepository
	cache     port.CouponCache
	codeSvc   *ExchangeCodeService
	tracer    trace.Tracer
}

func NewCouponService(
	coupons port.CouponRepository,
	userCoups port.UserCouponRepository,
	cache port.CouponCache,
	codeSvc *ExchangeCodeService,
	tracer trace.Tracer,
) *CouponService {
	return &CouponService{
		coupons:   coupons,
		userCoups: userCoups,
		cache:     cache,
		codeSvc:   codeSvc,
		tracer:    tracer,
	}
}

// SaveCoupon 新建一张待发放的优惠券；限定范围的券必须带分类列表。
func (s *CouponService) SaveCoupon(ctx context.Context, form *CouponForm) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "service.SaveCoupon")
	defer span.End()

	// 1. 先校验再落库：限定范围的券必须带范围
	if form.Specific && len(form.Scopes) == 0 {
		return 0, fmt.Errorf("%w: specific coupon requires scopes", domain.ErrInvalidStatus)
	}

	coupon := &domain.Coupon{
		Name:            form.Name,
		DiscountType:    form.DiscountType,
		Specific:        form.Specific,
		ThresholdAmount: form.ThresholdAmount,
		DiscountValue:   form.DiscountValue,
		MaxDiscount:     form.MaxDiscount,
		TotalNum:        form.TotalNum,
		UserLimit:       form.UserLimit,
		ObtainWay:       form.ObtainWay,
		TermDays:        form.TermDays,
		TermBeginTime:   form.TermBeginTime,
		TermEndTime:     form.TermEndTime,
		Status:          domain.StatusDraft,
	}
	var scopes []domain.CouponScope
	if form.Specific {
		scopes = make([]domain.CouponScope, 0, len(form.Scopes))
		for _, bizID := range form.Scopes {
			scopes = append(scopes, domain.CouponScope{BizID: bizID, Type: 1})
		}
	}

	// 2. 优惠券本体和使用范围在同一事务内落库，要么都有要么都没有
	if err := s.coupons.Create(ctx, coupon, scopes); err != nil {
		return 0, fmt.Errorf("failed to create coupon: %w", err)
	}
	return coupon.ID, nil
}

// IssueCoupon 开始发放一张优惠券：立即发放进入发放中并发布缓存快照，
// 定时发放只改状态；兑换码方式的券在首次发放时异步铸码。
func (s *CouponService) IssueCoupon(ctx context.Context, form *CouponIssueForm) error {
	ctx, span := s.tracer.Start(ctx, "service.IssueCoupon")
	defer span.End()
	span.SetAttributes(attribute.Int64("coupon.id", form.ID))

	// 1. 查询优惠券
	coupon, err := s.coupons.FindByID(ctx, form.ID)
	if err != nil {
		return err
	}

	// 2. 只有待发放和暂停中的优惠券才能发放
	prevStatus := coupon.Status
	if prevStatus != domain.StatusDraft && prevStatus != domain.StatusPaused {
		return fmt.Errorf("%w: coupon %d is in status %d", domain.ErrInvalidStatus, coupon.ID, prevStatus)
	}

	// 3. 判断是否立刻发放
	now := time.Now()
	isBegin := form.IssueBeginTime.IsZero() || !form.IssueBeginTime.After(now)

	// 4. 更新发放信息
	coupon.IssueBeginTime = form.IssueBeginTime
	coupon.IssueEndTime = form.IssueEndTime
	coupon.TermDays = form.TermDays
	coupon.TermBeginTime = form.TermBeginTime
	coupon.TermEndTime = form.TermEndTime
	if isBegin {
		coupon.Status = domain.StatusIssuing
		coupon.IssueBeginTime = now
	} else {
		coupon.Status = domain.StatusUnIssue
	}
	if err := s.coupons.UpdateIssueInfo(ctx, coupon); err != nil {
		return fmt.Errorf("failed to update coupon issue info: %w", err)
	}

	// 5. 立即发放的券把热字段快照写入缓存，后续领取走快速路径。
	//    advisory 库存取剩余量，暂停后恢复发放时已发数量不会被重置。
	if isBegin {
		snap := &domain.CouponSnapshot{
			IssueBeginTime: coupon.IssueBeginTime,
			IssueEndTime:   coupon.IssueEndTime,
			TotalNum:       coupon.TotalNum - coupon.IssueNum,
			UserLimit:      coupon.UserLimit,
		}
		if err := s.cache.Publish(ctx, coupon.ID, snap); err != nil {
			return fmt.Errorf("failed to publish coupon snapshot: %w", err)
		}
	}

	// 6. 兑换码方式的券首次发放时异步生成兑换码
	if coupon.ObtainWay == domain.ObtainCode && prevStatus == domain.StatusDraft {
		go func(c domain.Coupon) {
			if err := s.codeSvc.GenerateCodes(context.WithoutCancel(ctx), &c); err != nil {
				log.Error().Err(err).Int64("coupon_id", c.ID).Msg("failed to generate exchange codes")
			}
		}(*coupon)
	}

	return nil
}

// PauseCoupon 暂停发放：发放中/待开始 -> 暂停，并清理缓存快照。
func (s *CouponService) PauseCoupon(ctx context.Context, id int64) error {
	ctx, span := s.tracer.Start(ctx, "service.PauseCoupon")
	defer span.End()
	span.SetAttributes(attribute.Int64("coupon.id", id))

	coupon, err := s.coupons.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if coupon.Status != domain.StatusIssuing && coupon.Status != domain.StatusUnIssue {
		return fmt.Errorf("%w: coupon %d is in status %d", domain.ErrInvalidStatus, id, coupon.Status)
	}

	if err := s.coupons.UpdateStatus(ctx, id, domain.StatusPaused); err != nil {
		return fmt.Errorf("failed to pause coupon %d: %w", id, err)
	}
	if err := s.cache.Remove(ctx, id); err != nil {
		log.Warn().Err(err).Int64("coupon_id", id).Msg("failed to evict coupon snapshot")
	}
	return nil
}

// QueryIssuingCoupons 用户端查询发放中、公开领取的优惠券列表，
// 并标注当前用户是否还能领、是否已持有未使用的券。
func (s *CouponService) QueryIssuingCoupons(ctx context.Context, userID int64) ([]*CouponVO, error) {
	ctx, span := s.tracer.Start(ctx, "service.QueryIssuingCoupons")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	// 1. 发放中且公开领取的券
	coupons, err := s.coupons.ListIssuingPublic(ctx)
	if err != nil {
		return nil, err
	}
	if len(coupons) == 0 {
		return []*CouponVO{}, nil
	}

	// 2. 统计当前用户对这些券的领取情况
	couponIDs := make([]int64, 0, len(coupons))
	for _, c := range coupons {
		couponIDs = append(couponIDs, c.ID)
	}
	userCoupons, err := s.userCoups.ListByUserAndCoupons(ctx, userID, couponIDs)
	if err != nil {
		return nil, err
	}

	issuedCount := make(map[int64]int)
	unusedCount := make(map[int64]int)
	for _, uc := range userCoupons {
		issuedCount[uc.CouponID]++
		if uc.Status == domain.UserCouponUnused {
			unusedCount[uc.CouponID]++
		}
	}

	// 3. 封装 VO
	vos := make([]*CouponVO, 0, len(coupons))
	for _, c := range coupons {
		vos = append(vos, &CouponVO{
			ID:              c.ID,
			Name:            c.Name,
			DiscountType:    c.DiscountType,
			ThresholdAmount: c.ThresholdAmount,
			DiscountValue:   c.DiscountValue,
			Available:       c.IssueNum < c.TotalNum && issuedCount[c.ID] < c.UserLimit,
			Received:        unusedCount[c.ID] > 0,
		})
	}
	return vos, nil
}
