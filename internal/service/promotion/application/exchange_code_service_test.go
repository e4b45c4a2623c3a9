// internal/service/promotion/application/exchange_code_service_test.go
package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"polaris/internal/service/promotion/codec"
	"polaris/internal/service/promotion/domain"
)

func TestGenerateCodesMintsContiguousBlock(t *testing.T) {
	mark := newMemMark()
	codes := newMemCodeRepo()
	svc := NewExchangeCodeService(mark, codes, noop.NewTracerProvider().Tracer("test"))
	ctx := context.Background()

	// 先占掉一段序列号，验证铸码从当前高水位之后接着分配
	_, err := mark.ReserveSerials(ctx, 3)
	require.NoError(t, err)

	coupon := &domain.Coupon{
		ID:           9,
		TotalNum:     5,
		ObtainWay:    domain.ObtainCode,
		IssueEndTime: time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, svc.GenerateCodes(ctx, coupon))

	// 5 个连续序列号 [4,8]，每个码都能解回 (serial, 9)
	for serial := int64(4); serial <= 8; serial++ {
		row, err := codes.FindBySerial(ctx, serial)
		require.NoError(t, err)
		assert.Equal(t, int64(9), row.ExchangeTargetID)
		assert.Equal(t, domain.CodeUnused, row.Status)
		assert.Equal(t, coupon.IssueEndTime, row.ExpiredTime)

		gotSerial, gotTarget, err := codec.Parse(row.Code)
		require.NoError(t, err)
		assert.Equal(t, serial, gotSerial)
		assert.Equal(t, int64(9), gotTarget)
	}

	// 码本身两两不同
	seen := make(map[string]struct{})
	for serial := int64(4); serial <= 8; serial++ {
		row, _ := codes.FindBySerial(ctx, serial)
		seen[row.Code] = struct{}{}
	}
	assert.Len(t, seen, 5)

	// 高水位被记录
	assert.Equal(t, int64(8), mark.ranges[9])
}
