// internal/service/inventory/application/cart_sync.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/domain/port"
)

// CartStockSynchronizer 把已保存购物车的期望数量对齐到当前可用库存，
// 避免购物车带着注定失败的数量进入结账。
// 它只调整购物车里的"期望"，从不触碰 ReservedQuantity——
// 真正的预留发生在结账时。
type CartStockSynchronizer struct {
	repo   domain.StockRepository
	carts  port.CartStore
	tracer trace.Tracer
}

// NewCartStockSynchronizer 创建购物车同步器
func NewCartStockSynchronizer(repo domain.StockRepository, carts port.CartStore, tracer trace.Tracer) *CartStockSynchronizer {
	return &CartStockSynchronizer{repo: repo, carts: carts, tracer: tracer}
}

// Sync 对账单个会话的购物车：
//   - 可用量 <= 0: 整行移除，原因 OUT_OF_STOCK（商品不存在同样按无货处理）
//   - 可用量 < 期望: 数量收缩到可用量，原因 INSUFFICIENT_STOCK
//   - 其余行保持不变
//
// 只有确实发生了调整才会回写购物车，并返回完整差异供 UI 提示用户。
func (s *CartStockSynchronizer) Sync(ctx context.Context, sessionID string) (*domain.CartSyncResult, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.SyncCart")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	cart, err := s.carts.GetCart(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load cart")
		return nil, err
	}

	result := &domain.CartSyncResult{}
	if len(cart.Items) == 0 {
		return result, nil
	}

	productIDs := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	records, err := s.repo.GetBatch(ctx, productIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load stock records")
		return nil, err
	}

	kept := cart.Items[:0]
	for _, item := range cart.Items {
		var available int64
		if record, exists := records[item.ProductID]; exists {
			available = record.AvailableQuantity()
		}

		switch {
		case available <= 0:
			result.Updated = true
			result.RemovedItems = append(result.RemovedItems, item.ProductID)
			result.Changes = append(result.Changes, domain.CartChange{
				ProductID:   item.ProductID,
				OldQuantity: item.Quantity,
				NewQuantity: 0,
				Reason:      domain.ReasonOutOfStock,
			})
		case available < item.Quantity:
			result.Updated = true
			result.Changes = append(result.Changes, domain.CartChange{
				ProductID:   item.ProductID,
				OldQuantity: item.Quantity,
				NewQuantity: available,
				Reason:      domain.ReasonInsufficientStock,
			})
			item.Quantity = available
			kept = append(kept, item)
		default:
			kept = append(kept, item)
		}
	}

	if !result.Updated {
		return result, nil
	}

	cart.Items = kept
	if err := s.carts.SaveCart(ctx, cart); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to persist adjusted cart")
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Int("changes", len(result.Changes)).
		Int("removed", len(result.RemovedItems)).
		Msg("Cart synchronized to available stock")
	span.AddEvent("CartAdjusted", trace.WithAttributes(attribute.Int("changes.count", len(result.Changes))))
	return result, nil
}
