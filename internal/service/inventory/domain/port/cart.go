// internal/service/inventory/domain/port/cart.go
package port

import (
	"context"

	"stockhold/internal/service/inventory/domain"
)

// CartStore 是购物车持久化的出站端口。
// 购物车内容管理属于外部协作方，核心只在同步时读写期望数量。
type CartStore interface {
	// GetCart 读取会话的购物车，不存在时返回空车而不是错误
	GetCart(ctx context.Context, sessionID string) (*domain.Cart, error)

	// SaveCart 持久化调整后的购物车
	SaveCart(ctx context.Context, cart *domain.Cart) error
}
