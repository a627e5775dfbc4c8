// internal/service/inventory/application/reaper.go
package application

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/domain/port"
)

var (
	reaperReleasedReservations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockhold_reaper_released_reservations_total",
		Help: "Reservations released by the expiry reaper.",
	})
	reaperReleasedUnits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockhold_reaper_released_units_total",
		Help: "Stock units released by the expiry reaper.",
	})
	reaperPassErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockhold_reaper_record_errors_total",
		Help: "Per-record failures during reaper passes (retried next pass).",
	})
)

func init() {
	prometheus.MustRegister(reaperReleasedReservations, reaperReleasedUnits, reaperPassErrors)
}

// ReaperStats 一次清扫的结果
type ReaperStats struct {
	ReservationsReleased int64 `json:"reservationsReleased"`
	StockUnitsReleased   int64 `json:"stockUnitsReleased"`
}

// ReaperLock 是清扫任务的互斥端口。水平扩容时用 ZooKeeper 实现，
// 保证同一时刻只有一个实例在扫描；单实例部署传 nil 即可。
type ReaperLock interface {
	TryLock() (bool, error)
	Unlock() error
}

// ReservationExpiryReaper 周期性回收过期且未被提交/释放的预留
// （典型场景：用户结账中途关掉了页面）。
//
// 它是一个显式持有生命周期的后台任务：Start/Stop 成对调用，
// 时钟可注入，测试里直接推虚拟时间调 RunOnce，不用睡真实时钟。
// 扫描期间不持有任何跨记录的锁，每条记录的回收是一次独立的原子变更。
type ReservationExpiryReaper struct {
	repo      domain.StockRepository
	clock     domain.Clock
	interval  time.Duration
	batchSize int
	tracer    trace.Tracer

	lock   ReaperLock              // 可为 nil
	events port.StockEventProducer // 可为 nil

	stopCh    chan struct{}
	doneCh    chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewReservationExpiryReaper 创建清扫器，interval 默认 15 分钟
func NewReservationExpiryReaper(repo domain.StockRepository, clock domain.Clock, interval time.Duration, batchSize int, tracer trace.Tracer, lock ReaperLock, events port.StockEventProducer) *ReservationExpiryReaper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 256
	}
	return &ReservationExpiryReaper{
		repo:      repo,
		clock:     clock,
		interval:  interval,
		batchSize: batchSize,
		tracer:    tracer,
		lock:      lock,
		events:    events,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start 启动后台清扫循环
func (r *ReservationExpiryReaper) Start() {
	r.startOnce.Do(func() {
		go r.loop()
		logger.Logger.Info().Dur("interval", r.interval).Msg("Reservation expiry reaper started")
	})
}

// Stop 停止清扫并等待当前一轮结束
func (r *ReservationExpiryReaper) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.doneCh
		logger.Logger.Info().Msg("Reservation expiry reaper stopped")
	})
}

func (r *ReservationExpiryReaper) loop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runGuarded()
		case <-r.stopCh:
			return
		}
	}
}

// runGuarded 在分布式锁的保护下执行一轮清扫
func (r *ReservationExpiryReaper) runGuarded() {
	if r.lock != nil {
		acquired, err := r.lock.TryLock()
		if err != nil {
			logger.Logger.Error().Err(err).Msg("Reaper failed to acquire distributed lock, skipping pass")
			return
		}
		if !acquired {
			// 另一个实例在扫，这轮让给它
			return
		}
		defer func() {
			if err := r.lock.Unlock(); err != nil {
				logger.Logger.Error().Err(err).Msg("Reaper failed to release distributed lock")
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.interval)
	defer cancel()
	if _, err := r.RunOnce(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("Reaper pass failed")
	}
}

// RunOnce 执行一轮清扫并返回统计。
// 先扫出存在过期预留的候选商品，再逐个执行原子的 ReleaseExpired——
// 过期条件在变更时刻重新校验，扫描开始后被提交的预留不会被误释放。
// 单条记录的瞬时失败只记日志并跳过，下一轮自然重试：
// 过期释放失败只是延迟可售，不会造成超卖。
func (r *ReservationExpiryReaper) RunOnce(ctx context.Context) (ReaperStats, error) {
	ctx, span := r.tracer.Start(ctx, "reaper.RunOnce")
	defer span.End()

	now := r.clock.Now()
	productIDs, err := r.repo.FindWithExpired(ctx, now, r.batchSize)
	if err != nil {
		span.RecordError(err)
		return ReaperStats{}, err
	}
	span.SetAttributes(attribute.Int("candidates.count", len(productIDs)))
	if len(productIDs) == 0 {
		return ReaperStats{}, nil
	}

	var totalCount, totalUnits atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, productID := range productIDs {
		productID := productID
		g.Go(func() error {
			count, units, err := r.repo.ReleaseExpired(gctx, productID, now)
			if err != nil {
				// 跳过并等下一轮，不让单条记录拖垮整轮清扫
				reaperPassErrors.Inc()
				logger.Ctx(gctx).Warn().Err(err).Str("product_id", productID).Msg("Failed to release expired reservations, will retry next pass")
				return nil
			}
			if count == 0 {
				return nil
			}
			totalCount.Add(count)
			totalUnits.Add(units)
			r.publishExpired(gctx, productID, units, now)
			return nil
		})
	}
	_ = g.Wait() // worker 从不返回错误，失败都已按记录处理

	stats := ReaperStats{
		ReservationsReleased: totalCount.Load(),
		StockUnitsReleased:   totalUnits.Load(),
	}
	reaperReleasedReservations.Add(float64(stats.ReservationsReleased))
	reaperReleasedUnits.Add(float64(stats.StockUnitsReleased))

	if stats.ReservationsReleased > 0 {
		logger.Ctx(ctx).Info().
			Int64("reservations_released", stats.ReservationsReleased).
			Int64("stock_units_released", stats.StockUnitsReleased).
			Msg("Reaper pass completed")
	}
	span.SetAttributes(
		attribute.Int64("reservations.released", stats.ReservationsReleased),
		attribute.Int64("units.released", stats.StockUnitsReleased),
	)
	return stats, nil
}

func (r *ReservationExpiryReaper) publishExpired(ctx context.Context, productID string, units int64, now time.Time) {
	if r.events == nil {
		return
	}
	event := &domain.StockEvent{
		EventID:    uuid.New().String(),
		Type:       domain.EventStockExpired,
		ProductID:  productID,
		Quantity:   units,
		OccurredAt: now,
	}
	if err := r.events.Publish(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("product_id", productID).Msg("Failed to publish stock expired event")
	}
}
