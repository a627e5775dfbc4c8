// internal/service/inventory/infrastructure/adapter/stock_event_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/pkg/mq"
	"stockhold/internal/service/inventory/domain"
)

// StockEventKafkaAdapter 是 port.StockEventProducer 的 Kafka 实现。
// 以 ProductID 作为消息 Key，保证单个商品的事件在分区内有序。
type StockEventKafkaAdapter struct {
	writer *kafka.Writer
}

// NewStockEventKafkaAdapter 创建一个新的库存事件生产者
func NewStockEventKafkaAdapter(writer *kafka.Writer) *StockEventKafkaAdapter {
	return &StockEventKafkaAdapter{writer: writer}
}

// Publish 序列化事件并写入 stock-events 主题
func (p *StockEventKafkaAdapter) Publish(ctx context.Context, event *domain.StockEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to marshal stock event")
		return err
	}

	if err := mq.ProduceMessage(ctx, p.writer, []byte(event.ProductID), eventBytes); err != nil {
		logger.Ctx(ctx).Error().Err(err).
			Str("event_type", string(event.Type)).
			Str("product_id", event.ProductID).
			Msg("Failed to produce stock event to Kafka")
		return err
	}
	return nil
}
