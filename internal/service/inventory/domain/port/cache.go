// internal/service/inventory/domain/port/cache.go
package port

import (
	"context"

	"stockhold/internal/service/inventory/domain"
)

// StockLevelCache 是展示读路径的缓存端口。
// 缓存永远不会被任何写路径的判定使用，丢失或过期只影响展示。
type StockLevelCache interface {
	// GetLevels 批量读缓存，未命中的商品不出现在结果里
	GetLevels(ctx context.Context, productIDs []string) (map[string]*domain.StockLevel, error)

	// SetLevel 写入一条快照，updatedAtMillis 用于丢弃乱序到达的旧快照
	SetLevel(ctx context.Context, level *domain.StockLevel, updatedAtMillis int64) error

	// Invalidate 使指定商品的缓存失效
	Invalidate(ctx context.Context, productID string) error
}
