// internal/service/inventory/application/fakes_test.go
package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"stockhold/internal/service/inventory/domain"
)

func testTracer() trace.Tracer {
	return otel.Tracer("inventory-test")
}

// fakeClock 可手动推进的虚拟时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingEvents 记录所有发布的集成事件
type recordingEvents struct {
	mu     sync.Mutex
	events []*domain.StockEvent
}

func (r *recordingEvents) Publish(ctx context.Context, event *domain.StockEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) byType(t domain.StockEventType) []*domain.StockEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.StockEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeCache 进程内的 StockLevelCache 实现，failing 置位后所有操作报错
type fakeCache struct {
	mu      sync.Mutex
	levels  map[string]*domain.StockLevel
	setCall int
	failing bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{levels: make(map[string]*domain.StockLevel)}
}

var errCacheDown = errors.New("cache down")

func (c *fakeCache) GetLevels(ctx context.Context, productIDs []string) (map[string]*domain.StockLevel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return nil, errCacheDown
	}
	result := make(map[string]*domain.StockLevel)
	for _, id := range productIDs {
		if level, ok := c.levels[id]; ok {
			result[id] = level
		}
	}
	return result, nil
}

func (c *fakeCache) SetLevel(ctx context.Context, level *domain.StockLevel, updatedAtMillis int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errCacheDown
	}
	c.levels[level.ProductID] = level
	c.setCall++
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errCacheDown
	}
	delete(c.levels, productID)
	return nil
}

// fakeCarts 进程内购物车存储，记录 SaveCart 调用次数
type fakeCarts struct {
	mu        sync.Mutex
	carts     map[string]*domain.Cart
	saveCalls int
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{carts: make(map[string]*domain.Cart)}
}

func (f *fakeCarts) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cart, ok := f.carts[sessionID]; ok {
		items := make([]domain.CartItem, len(cart.Items))
		copy(items, cart.Items)
		return &domain.Cart{SessionID: sessionID, Items: items, UpdatedAt: cart.UpdatedAt}, nil
	}
	return &domain.Cart{SessionID: sessionID}, nil
}

func (f *fakeCarts) SaveCart(ctx context.Context, cart *domain.Cart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.carts[cart.SessionID] = cart
	f.saveCalls++
	return nil
}

// thresholdAlertEngine 简化的告警规则：可用量不高于阈值即触发
type thresholdAlertEngine struct{}

func (thresholdAlertEngine) ShouldAlert(level *domain.StockLevel, threshold int64) (bool, error) {
	return threshold > 0 && level.AvailableQuantity <= threshold, nil
}

// recordingBroadcaster 记录推送的快照
type recordingBroadcaster struct {
	mu     sync.Mutex
	levels []*domain.StockLevel
}

func (b *recordingBroadcaster) BroadcastLevel(level *domain.StockLevel) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.levels = append(b.levels, level)
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.levels)
}
