// internal/service/promotion/application/exchange_code_service.go
package application

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"polaris/internal/pkg/metrics"
	"polaris/internal/service/promotion/codec"
	"polaris/internal/service/promotion/domain"
	"polaris/internal/service/promotion/domain/port"
)

// ExchangeCodeService 负责兑换码的批量铸造。
// 铸码不在请求关键路径上：优惠券进入发放中时异步触发。
type ExchangeCodeService struct {
	mark   port.ExchangeMark
	codes  port.ExchangeCodeRepository
	tracer trace.Tracer
}

func NewExchangeCodeService(mark port.ExchangeMark, codes port.ExchangeCodeRepository, tracer trace.Tracer) *ExchangeCodeService {
	return &ExchangeCodeService{mark: mark, codes: codes, tracer: tracer}
}

// GenerateCodes 为一张券铸造 TotalNum 个兑换码。
// 兑换码的截止时间就是优惠券的发放截止时间。
func (s *ExchangeCodeService) GenerateCodes(ctx context.Context, coupon *domain.Coupon) error {
	ctx, span := s.tracer.Start(ctx, "service.GenerateCodes")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("coupon.id", coupon.ID),
		attribute.Int("coupon.total_num", coupon.TotalNum),
	)

	// 1. 一次原子 +count 预留连续序列号段 [L, R]
	r, err := s.mark.ReserveSerials(ctx, coupon.TotalNum)
	if err != nil {
		return fmt.Errorf("failed to reserve serial block for coupon %d: %w", coupon.ID, err)
	}
	l := r - int64(coupon.TotalNum) + 1
	log.Info().Int64("coupon_id", coupon.ID).Int64("serial_from", l).Int64("serial_to", r).
		Msg("minting exchange codes")

	// 2. 逐个序列号生成兑换码
	codes := make([]*domain.ExchangeCode, 0, coupon.TotalNum)
	for i := l; i <= r; i++ {
		code, err := codec.Generate(i, coupon.ID)
		if err != nil {
			return fmt.Errorf("failed to encode serial %d for coupon %d: %w", i, coupon.ID, err)
		}
		codes = append(codes, &domain.ExchangeCode{
			ID:               i,
			Code:             code,
			ExchangeTargetID: coupon.ID,
			Status:           domain.CodeUnused,
			ExpiredTime:      coupon.IssueEndTime,
		})
	}

	// 3. 批量落库
	if err := s.codes.SaveBatch(ctx, codes); err != nil {
		return fmt.Errorf("failed to persist exchange codes for coupon %d: %w", coupon.ID, err)
	}

	// 4. 记录该券已铸码的最大序列号，供后续清理/校验使用
	if err := s.mark.RecordRange(ctx, coupon.ID, r); err != nil {
		log.Warn().Err(err).Int64("coupon_id", coupon.ID).Msg("failed to record code range")
	}

	metrics.CodesMintedTotal.Add(float64(len(codes)))
	return nil
}
