// internal/service/inventory/domain/events.go
package domain

import "time"

// StockEventType 库存事件类型
type StockEventType string

const (
	EventStockReserved  StockEventType = "STOCK_RESERVED"
	EventStockReleased  StockEventType = "STOCK_RELEASED"
	EventStockCommitted StockEventType = "STOCK_COMMITTED"
	EventStockExpired   StockEventType = "STOCK_EXPIRED"
	EventLowStock       StockEventType = "LOW_STOCK"
)

// StockEvent 是发往 stock-events 主题的集成事件。
// 事件是尽力而为的通知，发布失败不会让触发它的库存变更回滚。
type StockEvent struct {
	EventID    string         `json:"eventId"`
	Type       StockEventType `json:"type"`
	ProductID  string         `json:"productId"`
	SessionID  string         `json:"sessionId,omitempty"`
	Quantity   int64          `json:"quantity,omitempty"`
	Available  int64          `json:"available"`
	Total      int64          `json:"total"`
	OccurredAt time.Time      `json:"occurredAt"`
}
