// internal/service/inventory/domain/port/alert.go
package port

import "stockhold/internal/service/inventory/domain"

// AlertRuleEngine 评估低库存告警规则。
// 规则表达式由运营配置，引擎实现负责编译与求值。
type AlertRuleEngine interface {
	// ShouldAlert 判断给定的库存快照是否触发告警
	ShouldAlert(level *domain.StockLevel, threshold int64) (bool, error)
}

// StockLevelBroadcaster 把库存快照推送给在线的浏览端（WebSocket 等）。
// 推送是展示层面的尽力而为，失败不影响库存变更本身。
type StockLevelBroadcaster interface {
	BroadcastLevel(level *domain.StockLevel)
}
