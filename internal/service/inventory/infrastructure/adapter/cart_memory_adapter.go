// internal/service/inventory/infrastructure/adapter/cart_memory_adapter.go
package adapter

import (
	"context"
	"sync"
	"time"

	"stockhold/internal/service/inventory/domain"
)

// CartMemoryAdapter 是 port.CartStore 的进程内实现，本地开发和测试用
type CartMemoryAdapter struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

// NewCartMemoryAdapter 创建一个空的内存购物车存储
func NewCartMemoryAdapter() *CartMemoryAdapter {
	return &CartMemoryAdapter{carts: make(map[string]*domain.Cart)}
}

func (a *CartMemoryAdapter) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cart, exists := a.carts[sessionID]
	if !exists {
		return &domain.Cart{SessionID: sessionID}, nil
	}
	cp := &domain.Cart{SessionID: cart.SessionID, UpdatedAt: cart.UpdatedAt}
	cp.Items = append(cp.Items, cart.Items...)
	return cp, nil
}

func (a *CartMemoryAdapter) SaveCart(ctx context.Context, cart *domain.Cart) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	cp := &domain.Cart{SessionID: cart.SessionID, UpdatedAt: time.Now()}
	cp.Items = append(cp.Items, cart.Items...)
	a.carts[cart.SessionID] = cp
	return nil
}
