// internal/service/promotion/application/user_coupon_service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"polaris/internal/pkg/lock"
	"polaris/internal/pkg/metrics"
	"polaris/internal/service/promotion/codec"
	"polaris/internal/service/promotion/domain"
	"polaris/internal/service/promotion/domain/port"
)

// UserCouponService 承载领券准入（IssuanceGate）、兑换码兑换和
// 授予意图的异步物化。
//
// 领券路径只做缓存上的 advisory 预检和事件投递，权威的库存与
// 幂等控制都收敛在 GrantStore 的事务里。
type UserCouponService struct {
	coupons  port.CouponRepository
	cache    port.CouponCache
	mark     port.ExchangeMark
	codes    port.ExchangeCodeRepository
	grants   port.GrantStore
	producer port.GrantProducer
	locker   lock.Locker
	lockWait time.Duration
	tracer   trace.Tracer
}

func NewUserCouponService(
	coupons port.CouponRepository,
	cache port.CouponCache,
	mark port.ExchangeMark,
	codes port.ExchangeCodeRepository,
	grants port.GrantStore,
	producer port.GrantProducer,
	locker lock.Locker,
	lockWait time.Duration,
	tracer trace.Tracer,
) *UserCouponService {
	return &UserCouponService{
		coupons:  coupons,
		cache:    cache,
		mark:     mark,
		codes:    codes,
		grants:   grants,
		producer: producer,
		locker:   locker,
		lockWait: lockWait,
		tracer:   tracer,
	}
}

// ReceiveCoupon 用户领取一张公开发放中的优惠券。
// 成功仅代表授予意图已入队；用户券行和权威的 issue_num 自增
// 由消费端异步完成。
func (s *UserCouponService) ReceiveCoupon(ctx context.Context, couponID, userID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "service.ReceiveCoupon")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("coupon.id", couponID),
		attribute.Int64("user.id", userID),
	)
	defer func() { metrics.ReceiveTotal.WithLabelValues(resultCode(err)).Inc() }()

	// 对优惠券 id 加分布式锁，防止多个用户同时领取同一张券时
	// 预检与扣减交错；限时等待，抢不到由调用方决定是否重试。
	return lock.WithLock(ctx, s.locker, fmt.Sprintf("lock:coupon:cid:%d", couponID), s.lockWait, func(ctx context.Context) error {
		// 1. 查询优惠券快照（缓存优先，未命中回源）
		snap, err := s.snapshotWithFallback(ctx, couponID)
		if err != nil {
			return err
		}

		// 2. 校验发放窗口
		now := time.Now()
		if now.Before(snap.IssueBeginTime) || !now.Before(snap.IssueEndTime) {
			return domain.ErrNotIssuing
		}

		// 3. 校验 advisory 库存
		if snap.TotalNum <= 0 {
			return domain.ErrOutOfStock
		}

		// 4. 校验每人限领。计数自增后校验，超限不回滚：
		//    让计数饱和，并发请求不会各自读到自增前的旧值重复通过。
		count, err := s.cache.IncrUserCount(ctx, couponID, userID)
		if err != nil {
			return fmt.Errorf("failed to increment user receive count: %w", err)
		}
		if count > int64(snap.UserLimit) {
			return domain.ErrUserLimitExceeded
		}

		// 5. 扣减 advisory 库存。突发流量下可以短暂为负，
		//    由物化阶段的权威守卫兜底，这是接受的有界超冲。
		if _, err := s.cache.DecrStock(ctx, couponID); err != nil {
			return fmt.Errorf("failed to decrement advisory stock: %w", err)
		}

		// 6. 投递授予意图。入队即权威，之后由消费端物化。
		intent := &domain.GrantIntent{
			EventID:  uuid.NewString(),
			UserID:   userID,
			CouponID: couponID,
		}
		if err := s.producer.ProduceGrantIntent(ctx, intent); err != nil {
			return fmt.Errorf("failed to produce grant intent: %w", err)
		}
		log.Info().Int64("coupon_id", couponID).Int64("user_id", userID).
			Str("event_id", intent.EventID).Msg("grant intent queued")
		return nil
	})
}

// snapshotWithFallback 读缓存快照，未命中时回源到持久层；
// 回源发现券仍在发放中则重新发布快照，让下一次命中快速路径。
func (s *UserCouponService) snapshotWithFallback(ctx context.Context, couponID int64) (*domain.CouponSnapshot, error) {
	snap, err := s.cache.Fetch(ctx, couponID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch coupon snapshot: %w", err)
	}
	if snap != nil {
		return snap, nil
	}

	coupon, err := s.coupons.FindByID(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if coupon.Status != domain.StatusIssuing {
		return nil, domain.ErrNotIssuing
	}

	snap = &domain.CouponSnapshot{
		IssueBeginTime: coupon.IssueBeginTime,
		IssueEndTime:   coupon.IssueEndTime,
		TotalNum:       coupon.TotalNum - coupon.IssueNum,
		UserLimit:      coupon.UserLimit,
	}
	if err := s.cache.Publish(ctx, couponID, snap); err != nil {
		log.Warn().Err(err).Int64("coupon_id", couponID).Msg("failed to republish coupon snapshot")
	}
	return snap, nil
}

// ExchangeCoupon 用兑换码兑换优惠券。兑换是低频路径，
// 直接走同步事务授予，不经过领券的异步管道。
func (s *UserCouponService) ExchangeCoupon(ctx context.Context, code string, userID int64) (err error) {
	ctx, span := s.tracer.Start(ctx, "service.ExchangeCoupon")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))
	defer func() { metrics.ExchangeTotal.WithLabelValues(resultCode(err)).Inc() }()

	// 1. 解析兑换码，格式非法直接 fail closed
	serial, targetID, err := codec.Parse(code)
	if err != nil {
		return domain.ErrInvalidCode
	}
	span.SetAttributes(attribute.Int64("code.serial", serial))

	// 2. 原子置位去重标记。置位并返回旧值是同码并发兑换的
	//    唯一守卫，不依赖任何行锁。
	wasMarked, err := s.mark.SetMark(ctx, serial, true)
	if err != nil {
		return fmt.Errorf("failed to set redemption mark: %w", err)
	}
	if wasMarked {
		return domain.ErrAlreadyRedeemed
	}

	// 置位之后的任何失败都必须把标记回滚，标记不是授予成功的凭证，
	// 回滚后合法的重试仍然可以兑换。
	defer func() {
		if err != nil {
			if _, rbErr := s.mark.SetMark(ctx, serial, false); rbErr != nil {
				log.Error().Err(rbErr).Int64("serial", serial).
					Msg("failed to roll back redemption mark; code is stuck redeemed")
			}
		}
	}()

	// 3. 查询兑换码
	exCode, err := s.codes.FindBySerial(ctx, serial)
	if err != nil {
		return err
	}
	if exCode.ExchangeTargetID != targetID {
		return domain.ErrInvalidCode
	}

	// 4. 校验有效期
	if exCode.IsExpiredAt(time.Now()) {
		return domain.ErrExpired
	}

	// 5. 查询目标优惠券
	coupon, err := s.coupons.FindByID(ctx, exCode.ExchangeTargetID)
	if err != nil {
		return err
	}

	// 6. 对用户 id 加锁后走同一个事务授予：限领校验、权威库存自增、
	//    插入用户券、核销兑换码，一个工作单元内完成。
	return lock.WithLock(ctx, s.locker, fmt.Sprintf("lock:coupon:uid:%d", userID), s.lockWait, func(ctx context.Context) error {
		now := time.Now()
		termBegin, termEnd := coupon.UserTermWindow(now)
		uc := &domain.UserCoupon{
			UserID:        userID,
			CouponID:      coupon.ID,
			Status:        domain.UserCouponUnused,
			GrantToken:    fmt.Sprintf("exchange:%d", serial),
			TermBeginTime: termBegin,
			TermEndTime:   termEnd,
		}
		outcome, err := s.grants.CreateGrant(ctx, uc, port.GrantOptions{
			UserLimit: coupon.UserLimit,
			Serial:    serial,
		})
		if err != nil {
			return fmt.Errorf("failed to create grant for exchange: %w", err)
		}
		switch outcome {
		case port.GrantLimitExceeded:
			return domain.ErrUserLimitExceeded
		case port.GrantOutOfStock:
			return domain.ErrOutOfStock
		case port.GrantDuplicate:
			// 标记已回滚过一次后的重试撞上已提交的事务，视为成功
			return nil
		default:
			return nil
		}
	})
}

// MaterializeGrant 消费授予意图并落库，按至少一次投递设计：
// 同一事件重复投递靠 grant token 唯一约束收敛成 no-op。
// 权威库存守卫失败的意图被静默丢弃，这是对 advisory 库存
// 短暂为负的既定补偿，不是需要上抛的错误。
func (s *UserCouponService) MaterializeGrant(ctx context.Context, intent *domain.GrantIntent) error {
	ctx, span := s.tracer.Start(ctx, "service.MaterializeGrant")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("coupon.id", intent.CouponID),
		attribute.Int64("user.id", intent.UserID),
		attribute.String("event.id", intent.EventID),
	)

	return lock.WithLock(ctx, s.locker, fmt.Sprintf("lock:coupon:uid:%d", intent.UserID), s.lockWait, func(ctx context.Context) error {
		// 1. 回源读取优惠券
		coupon, err := s.coupons.FindByID(ctx, intent.CouponID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.Warn().Int64("coupon_id", intent.CouponID).Msg("grant intent for missing coupon dropped")
				return nil
			}
			return err
		}

		// 2. 事务内：幂等去重 + 权威条件自增 + 插入用户券
		now := time.Now()
		termBegin, termEnd := coupon.UserTermWindow(now)
		uc := &domain.UserCoupon{
			UserID:        intent.UserID,
			CouponID:      intent.CouponID,
			Status:        domain.UserCouponUnused,
			GrantToken:    intent.EventID,
			TermBeginTime: termBegin,
			TermEndTime:   termEnd,
		}
		outcome, err := s.grants.CreateGrant(ctx, uc, port.GrantOptions{})
		if err != nil {
			return fmt.Errorf("failed to materialize grant %s: %w", intent.EventID, err)
		}

		switch outcome {
		case port.GrantOutOfStock:
			metrics.GrantsDroppedTotal.Inc()
			log.Info().Int64("coupon_id", intent.CouponID).Int64("user_id", intent.UserID).
				Str("event_id", intent.EventID).Msg("grant dropped by authoritative stock guard")
		case port.GrantDuplicate:
			log.Debug().Str("event_id", intent.EventID).Msg("duplicate grant intent ignored")
		}
		return nil
	})
}

// resultCode 把错误折叠成指标维度，锁等待超时单独归类。
func resultCode(err error) string {
	if errors.Is(err, lock.ErrLockTimeout) {
		return "lock_timeout"
	}
	return domain.ErrCode(err)
}
