// cmd/inventory-service/main.go
package main

import (
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"stockhold/internal/pkg/bootstrap"
	"stockhold/internal/pkg/logger"
	"stockhold/internal/pkg/mq"
	"stockhold/internal/pkg/redis"
	"stockhold/internal/service/inventory/application"
	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/domain/port"
	"stockhold/internal/service/inventory/infrastructure"
	"stockhold/internal/service/inventory/infrastructure/adapter"
	"stockhold/internal/service/inventory/infrastructure/rule"
	"stockhold/internal/service/inventory/interfaces"
	"stockhold/internal/zookeeper"
)

const (
	serviceName = "inventory-service"
	servicePort = 8082
)

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)
	clock := domain.SystemClock{}

	// 1. 仓储：配置了 MySQL 就用持久化实现，否则退化为内存实现（本地开发用）
	var repo domain.StockRepository
	var carts port.CartStore
	if cfg.Infra.Mysql.DSN != "" {
		db, err := gorm.Open(mysql.Open(cfg.Infra.Mysql.DSN), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
		}
		gormRepo, err := infrastructure.NewGormStockRepository(db)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to migrate stock schema")
		}
		cartAdapter, err := adapter.NewCartGormAdapter(db)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to migrate cart schema")
		}
		repo, carts = gormRepo, cartAdapter
	} else {
		logger.Logger.Warn().Msg("MYSQL_DSN not set, using in-memory stock repository")
		repo, carts = infrastructure.NewMemoryStockRepository(), adapter.NewCartMemoryAdapter()
	}

	// 2. 展示侧缓存（可选）
	var cache port.StockLevelCache
	if cfg.Infra.Redis.Addr != "" {
		redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
		defer redisClient.Close()
		redisCache, err := adapter.NewStockLevelRedisAdapter(redisClient)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to load stock level scripts")
		}
		cache = redisCache
	}

	// 3. 集成事件（可选）
	var events port.StockEventProducer
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		kafkaWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.StockEventsTopic)
		defer kafkaWriter.Close()
		events = adapter.NewStockEventKafkaAdapter(kafkaWriter)
	}

	// 4. 低库存告警规则（可选）
	var alertEngine port.AlertRuleEngine
	if expr := cfg.App.LowStockAlertRule; expr != "" {
		engine, err := rule.NewCELAlertEngine(expr)
		if err != nil {
			logger.Logger.Fatal().Err(err).Str("rule", expr).Msg("invalid low stock alert rule")
		}
		alertEngine = engine
	}

	// 5. 实时推送（可选）
	var hub *interfaces.StockPushHub
	var broadcaster port.StockLevelBroadcaster
	if cfg.App.FeatureFlags.EnableStockPush {
		hub = interfaces.NewStockPushHub()
		go hub.Run()
		defer hub.Stop()
		broadcaster = hub
	}

	// 6. 应用服务
	reservationTTL := time.Duration(cfg.App.ReservationTTLMinutes) * time.Minute
	service := application.NewInventoryApplicationService(repo, clock, reservationTTL, tracer, events, cache, alertEngine, broadcaster)
	validator := application.NewInventoryValidator(repo, tracer)
	cartSync := application.NewCartStockSynchronizer(repo, carts, tracer)
	query := application.NewStockQueryService(repo, cache, clock, tracer)

	// 7. 过期预留清扫器。配置了 ZooKeeper 就用分布式锁保证多实例下只有一个在扫
	var reaperLock application.ReaperLock
	if servers := cfg.Infra.Zookeeper.Servers; len(servers) > 0 {
		zkConn, err := zookeeper.Connect(servers, 5*time.Second)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		defer zkConn.Close()
		lock, err := zookeeper.NewDistributedLock(zkConn, "inventory-reaper")
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to create reaper lock")
		}
		reaperLock = lock
	}
	reaper := application.NewReservationExpiryReaper(
		repo, clock,
		time.Duration(cfg.App.ReaperIntervalMinutes)*time.Minute,
		cfg.App.ReaperBatchSize,
		tracer, reaperLock, events,
	)
	reaper.Start()
	defer reaper.Stop()

	handler := interfaces.NewInventoryHandler(service, validator, cartSync, query, hub)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
	})
}
