// internal/service/inventory/infrastructure/adapter/stock_level_redis_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"stockhold/internal/pkg/redis"
	"stockhold/internal/service/inventory/domain"
)

const (
	setLevelScriptName = "set_stock_level"
	levelKeyTTLSeconds = 60
)

// StockLevelRedisAdapter 是 port.StockLevelCache 的 Redis 实现。
// 只服务展示读路径，写路径从不读它。
type StockLevelRedisAdapter struct {
	redisClient *redis.Client
}

// NewStockLevelRedisAdapter 创建缓存适配器，并在初始化时加载 Lua 脚本
func NewStockLevelRedisAdapter(redisClient *redis.Client) (*StockLevelRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(setLevelScriptName, setLevelScript); err != nil {
		return nil, fmt.Errorf("failed to load stock level script: %w", err)
	}
	return &StockLevelRedisAdapter{redisClient: redisClient}, nil
}

// GetLevels 批量读取缓存快照，未命中或反序列化失败的商品直接跳过
func (a *StockLevelRedisAdapter) GetLevels(ctx context.Context, productIDs []string) (map[string]*domain.StockLevel, error) {
	result := make(map[string]*domain.StockLevel, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = levelKey(id)
	}
	values, err := a.redisClient.GetClient().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stock levels from redis: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var level domain.StockLevel
		if err := json.Unmarshal([]byte(raw), &level); err != nil {
			continue // 坏数据当作未命中
		}
		result[productIDs[i]] = &level
	}
	return result, nil
}

// SetLevel 写入一条快照。
// 两次变更并发回填缓存时可能乱序到达，脚本用 updatedAtMillis
// 做新旧比较，旧快照不会覆盖新快照。
func (a *StockLevelRedisAdapter) SetLevel(ctx context.Context, level *domain.StockLevel, updatedAtMillis int64) error {
	payload, err := json.Marshal(level)
	if err != nil {
		return err
	}
	_, err = a.redisClient.RunScript(ctx, setLevelScriptName,
		[]string{levelKey(level.ProductID), levelVersionKey(level.ProductID)},
		updatedAtMillis, string(payload), levelKeyTTLSeconds)
	return err
}

// Invalidate 使商品的缓存失效
func (a *StockLevelRedisAdapter) Invalidate(ctx context.Context, productID string) error {
	pipe := a.redisClient.GetClient().Pipeline()
	pipe.Del(ctx, levelKey(productID))
	pipe.Del(ctx, levelVersionKey(productID))
	_, err := pipe.Exec(ctx)
	if err != nil && err != goredis.Nil {
		return err
	}
	return nil
}

func levelKey(productID string) string {
	return fmt.Sprintf("stock:level:{%s}", productID)
}

func levelVersionKey(productID string) string {
	return fmt.Sprintf("stock:level:ver:{%s}", productID)
}

var setLevelScript = `
-- KEYS[1]: 快照的 Key, 例如: stock:level:{product_123}
-- KEYS[2]: 版本号的 Key, 例如: stock:level:ver:{product_123}
-- ARGV[1]: 本次快照的版本号（毫秒时间戳）
-- ARGV[2]: 快照 JSON
-- ARGV[3]: TTL 秒数

-- 1. 读取当前版本号
local current = tonumber(redis.call('get', KEYS[2]))

-- 2. 只有更新的快照才允许写入
if current and current >= tonumber(ARGV[1]) then
    return 0 -- 返回 0, 代表旧快照被丢弃
end

-- 3. 写入快照和版本号，并设置相同的 TTL
redis.call('set', KEYS[1], ARGV[2], 'EX', tonumber(ARGV[3]))
redis.call('set', KEYS[2], ARGV[1], 'EX', tonumber(ARGV[3]))
return 1 -- 返回 1, 代表写入成功
`
