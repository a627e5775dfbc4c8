// internal/service/inventory/application/query.go
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

// StockQueryService 是面向店面展示的批量库存读取（"仅剩 3 件"角标）。
// 读路径走缓存，足够新鲜但不权威，任何写判定都不依赖它。
type StockQueryService struct {
	repo   domain.StockRepository
	cache  port.StockLevelCache // 可为 nil，直接回源
	clock  domain.Clock
	tracer trace.Tracer
}

// NewStockQueryService 创建查询服务
func NewStockQueryService(repo domain.StockRepository, cache port.StockLevelCache, clock domain.Clock, tracer trace.Tracer) *StockQueryService {
	return &StockQueryService{repo: repo, cache: cache, clock: clock, tracer: tracer}
}

// GetStockLevels 返回每个请求商品的库存快照，顺序与请求一致。
// 未知商品降级为全零 / inStock=false，而不是让整批读取失败。
func (q *StockQueryService) GetStockLevels(ctx context.Context, productIDs []string) ([]*domain.StockLevel, error) {
	ctx, span := q.tracer.Start(ctx, "inventory.GetStockLevels")
	defer span.End()
	span.SetAttributes(attribute.Int("products.count", len(productIDs)))

	found := make(map[string]*domain.StockLevel, len(productIDs))

	// 1. 先问缓存。缓存故障按全未命中处理，读路径不能因为缓存挂了而不可用。
	if q.cache != nil {
		cached, err := q.cache.GetLevels(ctx, productIDs)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("Stock level cache unavailable, falling back to repository")
		} else {
			for id, level := range cached {
				found[id] = level
			}
		}
	}

	// 2. 未命中的回源
	var misses []string
	for _, id := range productIDs {
		if _, ok := found[id]; !ok {
			misses = append(misses, id)
		}
	}
	if len(misses) > 0 {
		records, err := q.repo.GetBatch(ctx, misses)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to load stock records")
			return nil, err
		}
		now := q.clock.Now()
		for id, record := range records {
			level := domain.LevelOf(record)
			found[id] = level
			if q.cache != nil {
				if err := q.cache.SetLevel(ctx, level, now.UnixMilli()); err != nil {
					logger.Ctx(ctx).Warn().Err(err).Str("product_id", id).Msg("Failed to backfill stock level cache")
				}
			}
		}
	}

	// 3. 组装结果，缺失的商品给全零快照
	levels := make([]*domain.StockLevel, 0, len(productIDs))
	for _, id := range productIDs {
		if level, ok := found[id]; ok {
			levels = append(levels, level)
			continue
		}
		levels = append(levels, &domain.StockLevel{ProductID: id})
	}
	return levels, nil
}
