// internal/service/inventory/domain/port/events.go
package port

import (
	"context"

	"stockhold/internal/service/inventory/domain"
)

// StockEventProducer 是库存集成事件的出站端口
type StockEventProducer interface {
	Publish(ctx context.Context, event *domain.StockEvent) error
}
