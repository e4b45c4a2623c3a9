// internal/service/promotion/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"

	"polaris/internal/pkg/mq"
	"polaris/internal/service/promotion/application"
	"polaris/internal/service/promotion/domain"
)

// GrantConsumerAdapter 是一个驱动适配器，监听授予意图事件并驱动物化逻辑。
// 处理成功才提交 offset，配合 grant token 幂等实现至少一次消费。
type GrantConsumerAdapter struct {
	reader  *kafka.Reader
	svc     *application.UserCouponService
	wg      sync.WaitGroup
	stopped atomic.Bool
}

func NewGrantConsumerAdapter(reader *kafka.Reader, svc *application.UserCouponService) *GrantConsumerAdapter {
	return &GrantConsumerAdapter{reader: reader, svc: svc}
}

// Start 开始消费。这是一个长期运行的方法。
func (a *GrantConsumerAdapter) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Info().Str("topic", a.reader.Config().Topic).Msg("grant consumer started")
		for {
			if a.stopped.Load() {
				return
			}
			// 用 FetchMessage 而不是 ReadMessage，自己控制提交时机
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					log.Info().Msg("grant consumer shutting down")
					return
				}
				log.Error().Err(err).Msg("failed to fetch message, retrying")
				time.Sleep(time.Second) // 避免快速失败循环
				continue
			}

			if !a.processMessage(ctx, msg) {
				// 物化失败不提交，等待重新投递；幂等由 grant token 保证
				continue
			}
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("failed to commit offset")
			}
		}
	}()
}

// Stop 优雅地停止消费者。Stop 与消费 goroutine 并发执行，
// 停止标记必须原子读写。
func (a *GrantConsumerAdapter) Stop() {
	a.stopped.Store(true)
	a.reader.Close()
	a.wg.Wait()
	log.Info().Msg("grant consumer stopped")
}

// processMessage 反序列化事件并调用物化逻辑，返回是否可以提交 offset。
func (a *GrantConsumerAdapter) processMessage(parentCtx context.Context, msg kafka.Message) bool {
	var intent domain.GrantIntent
	if err := json.Unmarshal(msg.Value, &intent); err != nil {
		// 毒消息跳过。生产环境应转入死信队列
		log.Error().Err(err).Msg("failed to unmarshal grant intent, skipping message")
		return true
	}

	// 重建生产端注入的追踪上下文
	carrier := mq.KafkaHeaderCarrier(msg.Headers)
	ctx := otel.GetTextMapPropagator().Extract(parentCtx, &carrier)

	if err := a.svc.MaterializeGrant(ctx, &intent); err != nil {
		log.Error().Err(err).Str("event_id", intent.EventID).Msg("failed to materialize grant")
		return false
	}
	return true
}
