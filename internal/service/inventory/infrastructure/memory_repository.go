// internal/service/inventory/infrastructure/memory_repository.go
package infrastructure

import (
	"context"
	"sync"
	"time"

	"stockhold/internal/service/inventory/domain"
)

// MemoryStockRepository 是 domain.StockRepository 的进程内实现。
// 单把互斥锁就满足了"单记录原子条件更新"的契约，适合本地开发和测试；
// 多实例部署必须换用数据库实现，进程内锁挡不住另一个实例。
type MemoryStockRepository struct {
	mu      sync.Mutex
	records map[string]*domain.StockRecord
}

// NewMemoryStockRepository 创建一个空的内存仓储
func NewMemoryStockRepository() *MemoryStockRepository {
	return &MemoryStockRepository{
		records: make(map[string]*domain.StockRecord),
	}
}

func (m *MemoryStockRepository) Create(ctx context.Context, productID string, total, lowStockThreshold int64) error {
	if total < 0 {
		return domain.ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[productID]; exists {
		return domain.ErrStockRecordExists
	}
	m.records[productID] = domain.NewStockRecord(productID, total, lowStockThreshold, time.Now())
	return nil
}

func (m *MemoryStockRepository) Get(ctx context.Context, productID string) (*domain.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[productID]
	if !exists {
		return nil, domain.ErrProductNotFound
	}
	return record.Clone(), nil
}

func (m *MemoryStockRepository) GetBatch(ctx context.Context, productIDs []string) (map[string]*domain.StockRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]*domain.StockRecord, len(productIDs))
	for _, id := range productIDs {
		if record, exists := m.records[id]; exists {
			result[id] = record.Clone()
		}
	}
	return result, nil
}

func (m *MemoryStockRepository) Reserve(ctx context.Context, productID string, r domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[productID]
	if !exists {
		return domain.ErrProductNotFound
	}
	return record.Reserve(r)
}

func (m *MemoryStockRepository) Release(ctx context.Context, productID, sessionID string, quantity int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[productID]
	if !exists {
		// 释放不存在的商品与释放不存在的预留一样是无操作
		return 0, nil
	}
	return record.Release(sessionID, quantity), nil
}

func (m *MemoryStockRepository) ReleaseExpired(ctx context.Context, productID string, cutoff time.Time) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[productID]
	if !exists {
		return 0, 0, nil
	}
	count, units := record.ReleaseExpired(cutoff)
	return count, units, nil
}

func (m *MemoryStockRepository) Commit(ctx context.Context, productID, sessionID string, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[productID]
	if !exists {
		return domain.ErrProductNotFound
	}
	return record.Commit(sessionID, quantity)
}

func (m *MemoryStockRepository) Restock(ctx context.Context, productID string, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[productID]
	if !exists {
		return domain.ErrProductNotFound
	}
	return record.Restock(quantity)
}

func (m *MemoryStockRepository) FindWithExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var productIDs []string
	for id, record := range m.records {
		if len(productIDs) >= limit {
			break
		}
		if record.HasExpired(cutoff) {
			productIDs = append(productIDs, id)
		}
	}
	return productIDs, nil
}
