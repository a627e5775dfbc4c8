// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"stockhold/internal/pkg/logger"
)

// Config 是服务的全量配置。
// 配置来源的优先级: 环境变量 > 配置文件 > 默认值。
type Config struct {
	App struct {
		// ReservationTTLMinutes 预留的有效时长，超过后 reaper 可以回收
		ReservationTTLMinutes int `yaml:"reservation_ttl_minutes"`
		// ReaperIntervalMinutes 过期清扫的执行周期
		ReaperIntervalMinutes int `yaml:"reaper_interval_minutes"`
		// ReaperBatchSize 单次清扫最多处理的商品数
		ReaperBatchSize int `yaml:"reaper_batch_size"`
		// LowStockAlertRule 低库存告警的 CEL 表达式，留空则关闭告警
		LowStockAlertRule string `yaml:"low_stock_alert_rule"`
		FeatureFlags      struct {
			EnableStockPush bool `yaml:"enable_stock_push"`
		} `yaml:"feature_flags"`
	} `yaml:"app"`
	Infra struct {
		Mysql struct {
			// DSN 留空时使用内存仓储（本地开发、测试）
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
		Redis struct {
			Addr string `yaml:"addr"`
		} `yaml:"redis"`
		Kafka struct {
			Brokers          []string `yaml:"brokers"`
			StockEventsTopic string   `yaml:"stock_events_topic"`
		} `yaml:"kafka"`
		Jaeger struct {
			Endpoint string `yaml:"endpoint"`
		} `yaml:"jaeger"`
		Zookeeper struct {
			Servers []string `yaml:"servers"`
		} `yaml:"zookeeper"`
	} `yaml:"infra"`
}

var currentConfig atomic.Value // 保存 *Config

// Init 加载配置文件并应用环境变量覆盖。必须在 StartService 之前调用。
func Init() {
	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "configs/config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			logger.Logger.Fatal().Err(err).Str("path", path).Msg("Failed to parse config file")
		}
		logger.Logger.Info().Str("path", path).Msg("Config file loaded")
	} else {
		// 没有配置文件不是错误，允许纯环境变量启动
		logger.Logger.Warn().Str("path", path).Msg("Config file not found, using defaults and env overrides")
	}

	applyEnvOverrides(cfg)
	currentConfig.Store(cfg)
}

// GetCurrentConfig 返回当前生效的配置快照
func GetCurrentConfig() *Config {
	if cfg, ok := currentConfig.Load().(*Config); ok {
		return cfg
	}
	// 允许测试在不调用 Init 的情况下读取默认值
	cfg := defaultConfig()
	currentConfig.Store(cfg)
	return cfg
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.ReservationTTLMinutes = 30
	cfg.App.ReaperIntervalMinutes = 15
	cfg.App.ReaperBatchSize = 256
	cfg.Infra.Redis.Addr = "localhost:6379"
	cfg.Infra.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Infra.Kafka.StockEventsTopic = "stock-events"
	cfg.Infra.Jaeger.Endpoint = "http://localhost:14268/api/traces"
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.Mysql.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("ZOOKEEPER_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v, err := strconv.Atoi(os.Getenv("RESERVATION_TTL_MINUTES")); err == nil && v > 0 {
		cfg.App.ReservationTTLMinutes = v
	}
	if v, err := strconv.Atoi(os.Getenv("REAPER_INTERVAL_MINUTES")); err == nil && v > 0 {
		cfg.App.ReaperIntervalMinutes = v
	}
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
