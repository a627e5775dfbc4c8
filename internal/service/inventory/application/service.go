// internal/service/inventory/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/domain/port"
)

// InventoryApplicationService 是库存预留的业务编排层。
// 正确性完全由仓储的原子原语保证，这一层负责：参数校验、
// 预留句柄与过期时间的生成、追踪、事件发布和展示侧的联动。
type InventoryApplicationService struct {
	repo           domain.StockRepository
	clock          domain.Clock
	reservationTTL time.Duration
	tracer         trace.Tracer

	// 以下依赖都是可选的展示/集成关注点，为 nil 时跳过。
	// 它们的失败只记日志，绝不让已经成功的库存变更看起来失败。
	events      port.StockEventProducer
	cache       port.StockLevelCache
	alertEngine port.AlertRuleEngine
	broadcaster port.StockLevelBroadcaster
}

func NewInventoryApplicationService(repo domain.StockRepository, clock domain.Clock, reservationTTL time.Duration, tracer trace.Tracer, events port.StockEventProducer, cache port.StockLevelCache, alertEngine port.AlertRuleEngine, broadcaster port.StockLevelBroadcaster) *InventoryApplicationService {
	return &InventoryApplicationService{
		repo: repo, clock: clock, reservationTTL: reservationTTL, tracer: tracer,
		events: events, cache: cache, alertEngine: alertEngine, broadcaster: broadcaster,
	}
}

// CreateStock 在商品创建时建立库存记录
func (s *InventoryApplicationService) CreateStock(ctx context.Context, productID string, total, lowStockThreshold int64) error {
	ctx, span := s.tracer.Start(ctx, "inventory.CreateStock")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID), attribute.Int64("stock.total", total))

	if err := s.repo.Create(ctx, productID, total, lowStockThreshold); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create stock record")
		return err
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Int64("total", total).Msg("Stock record created")
	return nil
}

// ReserveStock 为结账会话预占库存，是整个两阶段协议的第一步。
// 预留要么立刻成功，要么立刻带着实际可用量失败，没有排队等待。
func (s *InventoryApplicationService) ReserveStock(ctx context.Context, productID, sessionID string, quantity int64) (*domain.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ReserveStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Int64("stock.quantity", quantity),
	)

	if quantity <= 0 {
		span.SetStatus(codes.Error, "invalid quantity")
		return nil, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	reservation := domain.Reservation{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		Quantity:   quantity,
		ReservedAt: now,
		ExpiresAt:  now.Add(s.reservationTTL),
	}

	if err := s.repo.Reserve(ctx, productID, reservation); err != nil {
		if insufficient, ok := domain.IsInsufficientStock(err); ok {
			// 库存不足是正常业务结果，span 上记录可用量即可
			span.AddEvent("InsufficientStock", trace.WithAttributes(
				attribute.Int64("stock.available", insufficient.Available),
			))
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to reserve stock")
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("product_id", productID).
		Str("session_id", sessionID).
		Str("reservation_id", reservation.ID).
		Int64("quantity", quantity).
		Time("expires_at", reservation.ExpiresAt).
		Msg("Stock reserved")

	s.afterMutation(ctx, productID, domain.EventStockReserved, sessionID, quantity)
	return &reservation, nil
}

// ReleaseStock 释放会话的预留。quantity <= 0 表示释放该会话的全部预留。
// 幂等：重复释放、释放已过期/已提交的预留都是无操作。
func (s *InventoryApplicationService) ReleaseStock(ctx context.Context, productID, sessionID string, quantity int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ReleaseStock")
	defer span.End()
	span.SetAttributes(attribute.String("product.id", productID))

	released, err := s.repo.Release(ctx, productID, sessionID, quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to release stock")
		return 0, err
	}
	span.SetAttributes(attribute.Int64("stock.released", released))

	if released > 0 {
		logger.Ctx(ctx).Info().
			Str("product_id", productID).
			Str("session_id", sessionID).
			Int64("released", released).
			Msg("Stock released")
		s.afterMutation(ctx, productID, domain.EventStockReleased, sessionID, released)
	}
	return released, nil
}

// CommitStock 在支付确认后把预留转为永久扣减，每个行项目只应调用一次。
// 没有匹配预留时返回 ErrReservationNotFound——那是调用方的协议错误。
func (s *InventoryApplicationService) CommitStock(ctx context.Context, productID, sessionID string, quantity int64) error {
	ctx, span := s.tracer.Start(ctx, "inventory.CommitStock")
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.Int64("stock.quantity", quantity),
	)

	if quantity <= 0 {
		span.SetStatus(codes.Error, "invalid quantity")
		return domain.ErrInvalidQuantity
	}

	if err := s.repo.Commit(ctx, productID, sessionID, quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to commit stock")
		return err
	}

	logger.Ctx(ctx).Info().
		Str("product_id", productID).
		Str("session_id", sessionID).
		Int64("quantity", quantity).
		Msg("Stock committed")

	s.afterMutation(ctx, productID, domain.EventStockCommitted, sessionID, quantity)
	return nil
}

// Restock 外部补货入口（商品管理后台调用）
func (s *InventoryApplicationService) Restock(ctx context.Context, productID string, quantity int64) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Restock")
	defer span.End()

	if err := s.repo.Restock(ctx, productID, quantity); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to restock")
		return err
	}
	logger.Ctx(ctx).Info().Str("product_id", productID).Int64("quantity", quantity).Msg("Stock replenished")
	s.afterMutation(ctx, productID, "", "", quantity)
	return nil
}

// afterMutation 处理一次成功变更后的展示侧联动：
// 回填缓存、推送给在线浏览端、发布集成事件、评估低库存告警。
// 全部尽力而为，任何失败都只记日志。
func (s *InventoryApplicationService) afterMutation(ctx context.Context, productID string, eventType domain.StockEventType, sessionID string, quantity int64) {
	record, err := s.repo.Get(ctx, productID)
	if err != nil {
		// 读不到新状态就只把缓存打掉，下次查询会回源
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, productID); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("Failed to invalidate stock level cache")
			}
		}
		return
	}
	level := domain.LevelOf(record)
	now := s.clock.Now()

	if s.cache != nil {
		if err := s.cache.SetLevel(ctx, level, now.UnixMilli()); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("Failed to refresh stock level cache")
		}
	}
	if s.broadcaster != nil {
		s.broadcaster.BroadcastLevel(level)
	}
	if s.events != nil && eventType != "" {
		event := &domain.StockEvent{
			EventID:    uuid.New().String(),
			Type:       eventType,
			ProductID:  productID,
			SessionID:  sessionID,
			Quantity:   quantity,
			Available:  level.AvailableQuantity,
			Total:      level.TotalQuantity,
			OccurredAt: now,
		}
		if err := s.events.Publish(ctx, event); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish stock event")
		}
	}
	if s.alertEngine != nil {
		s.evaluateLowStock(ctx, level, record.LowStockThreshold, now)
	}
}

// evaluateLowStock 评估低库存告警规则，命中时发布 LOW_STOCK 事件
func (s *InventoryApplicationService) evaluateLowStock(ctx context.Context, level *domain.StockLevel, threshold int64, now time.Time) {
	hit, err := s.alertEngine.ShouldAlert(level, threshold)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", level.ProductID).Msg("Failed to evaluate low stock rule")
		return
	}
	if !hit {
		return
	}
	logger.Ctx(ctx).Warn().
		Str("product_id", level.ProductID).
		Int64("available", level.AvailableQuantity).
		Int64("threshold", threshold).
		Msg("Low stock alert triggered")
	if s.events == nil {
		return
	}
	event := &domain.StockEvent{
		EventID:    uuid.New().String(),
		Type:       domain.EventLowStock,
		ProductID:  level.ProductID,
		Available:  level.AvailableQuantity,
		Total:      level.TotalQuantity,
		OccurredAt: now,
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("Failed to publish low stock event")
	}
}
