// internal/service/inventory/application/validator.go
package application

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockhold/internal/service/inventory/domain"
)

// ValidationItem 单个商品的校验结果
type ValidationItem struct {
	ProductID  string `json:"productId"`
	Requested  int64  `json:"requested"`
	Available  int64  `json:"available"`
	CanFulfill bool   `json:"canFulfill"`
	MaxAllowed int64  `json:"maxAllowed"`
}

// ValidationResult 一批商品的校验结果，Valid 为真当且仅当每一项都能满足
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Items []ValidationItem `json:"items"`
}

// InventoryValidator 是结账前的只读可行性预检。
// 结果天然带竞态（validate 和 reserve 之间状态可能变化），只作提示用，
// 权威判定永远是后续的原子 reserve——调用方不允许凭 validate 跳过 reserve。
type InventoryValidator struct {
	repo   domain.StockRepository
	tracer trace.Tracer
}

// NewInventoryValidator 创建校验器
func NewInventoryValidator(repo domain.StockRepository, tracer trace.Tracer) *InventoryValidator {
	return &InventoryValidator{repo: repo, tracer: tracer}
}

// Validate 对一批 (商品, 期望数量) 做只读检查，不改变任何状态。
// 不存在的商品按可用量 0 报告，而不是报错。
func (v *InventoryValidator) Validate(ctx context.Context, items []domain.CartItem) (*ValidationResult, error) {
	ctx, span := v.tracer.Start(ctx, "inventory.Validate")
	defer span.End()
	span.SetAttributes(attribute.Int("items.count", len(items)))

	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}

	records, err := v.repo.GetBatch(ctx, productIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to load stock records")
		return nil, err
	}

	result := &ValidationResult{Valid: true}
	for _, item := range items {
		var available int64
		if record, exists := records[item.ProductID]; exists {
			available = record.AvailableQuantity()
		}
		entry := ValidationItem{
			ProductID:  item.ProductID,
			Requested:  item.Quantity,
			Available:  available,
			CanFulfill: available >= item.Quantity,
			MaxAllowed: max64(0, available),
		}
		if !entry.CanFulfill {
			result.Valid = false
		}
		result.Items = append(result.Items, entry)
	}
	return result, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
