// internal/service/promotion/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"polaris/internal/pkg/mq"
	"polaris/internal/service/promotion/domain"
)

// GrantKafkaProducer 把授予意图事件发到 kafka。
// 消息 key 取优惠券 id，同一张券的意图进同一分区，消费端单写者有序。
type GrantKafkaProducer struct {
	writer *kafka.Writer
}

func NewGrantKafkaProducer(writer *kafka.Writer) *GrantKafkaProducer {
	return &GrantKafkaProducer{writer: writer}
}

func (p *GrantKafkaProducer) ProduceGrantIntent(ctx context.Context, intent *domain.GrantIntent) error {
	payload, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to marshal grant intent: %w", err)
	}
	key := []byte(strconv.FormatInt(intent.CouponID, 10))
	if err := mq.ProduceMessage(ctx, p.writer, key, payload); err != nil {
		return fmt.Errorf("failed to produce grant intent %s: %w", intent.EventID, err)
	}
	return nil
}
