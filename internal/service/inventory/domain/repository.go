// internal/service/inventory/domain/repository.go
package domain

import (
	"context"
	"time"
)

// StockRepository 是库存记录的持久化端口，也是整个核心的正确性内核：
// 每个写操作都必须是存储层保证的单记录原子"条件读-改-写"，
// 对同一商品的并发写由存储层线性化，核心自己不加任何跨实例锁。
type StockRepository interface {
	// Create 在商品创建时建立库存记录，重复创建返回 ErrStockRecordExists
	Create(ctx context.Context, productID string, total, lowStockThreshold int64) error

	// Get 读取单个库存记录，不存在返回 ErrProductNotFound
	Get(ctx context.Context, productID string) (*StockRecord, error)

	// GetBatch 批量读取，缺失的商品直接不出现在结果里（读路径优雅降级）
	GetBatch(ctx context.Context, productIDs []string) (map[string]*StockRecord, error)

	// Reserve 原子地校验可用量并追加预留。
	// 可用量不足返回 *InsufficientStockError，其中带有实际可用量。
	Reserve(ctx context.Context, productID string, r Reservation) error

	// Release 原子地释放会话预留，quantity <= 0 表示全部释放。
	// 无可释放时是无操作，返回实际释放的件数。
	Release(ctx context.Context, productID, sessionID string, quantity int64) (int64, error)

	// ReleaseExpired 原子地释放 cutoff 之前过期的预留，
	// 过期条件在变更时刻重新校验。返回释放的条数与件数。
	ReleaseExpired(ctx context.Context, productID string, cutoff time.Time) (int64, int64, error)

	// Commit 原子地把会话预留转为永久扣减。
	// 会话预留不足时返回 ErrReservationNotFound，物理库存不变。
	Commit(ctx context.Context, productID, sessionID string, quantity int64) error

	// Restock 外部补货，增加物理库存
	Restock(ctx context.Context, productID string, quantity int64) error

	// FindWithExpired 找出在 cutoff 之前存在过期预留的商品，供 reaper 扫描。
	// 结果只是候选集，真正的回收由 ReleaseExpired 重新校验。
	FindWithExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Clock 抽象了时间来源，让测试可以推进虚拟时间而不是睡等真实时钟
type Clock interface {
	Now() time.Time
}

// SystemClock 走真实时钟
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
