// internal/service/inventory/domain/stock.go
package domain

import (
	"time"
)

// Reservation 是一次结账会话对库存的限时占用，尚未构成最终销售。
type Reservation struct {
	ID         string    // 预留句柄，全局唯一
	SessionID  string    // 持有该预留的结账/购物车会话
	Quantity   int64     // 占用的件数，恒为正
	ReservedAt time.Time // 创建时间
	ExpiresAt  time.Time // 过期时间，之后 reaper 可以回收
}

// IsExpired 判断预留在给定时刻是否已经过期
func (r *Reservation) IsExpired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// StockRecord 是单个商品的库存聚合根。
// 不变式（每次成功变更之后都必须成立）:
//  1. 0 <= ReservedQuantity <= TotalQuantity
//  2. ReservedQuantity == 所有有效预留的数量之和
//  3. 每条预留的数量 > 0
type StockRecord struct {
	ProductID         string
	TotalQuantity     int64 // 实际拥有的件数，只有 Commit 和外部补货会改变它
	ReservedQuantity  int64 // 所有有效预留的数量之和
	LowStockThreshold int64 // 展示用的低库存阈值，核心不做强制
	Reservations      []Reservation
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewStockRecord 在商品创建时建立对应的库存记录
func NewStockRecord(productID string, total, lowStockThreshold int64, now time.Time) *StockRecord {
	return &StockRecord{
		ProductID:         productID,
		TotalQuantity:     total,
		LowStockThreshold: lowStockThreshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// AvailableQuantity 返回新预留还能占用的件数
func (s *StockRecord) AvailableQuantity() int64 {
	return s.TotalQuantity - s.ReservedQuantity
}

// InStock 判断当前是否还有可售库存
func (s *StockRecord) InStock() bool {
	return s.AvailableQuantity() > 0
}

// Reserve 在记录上追加一条预留。
// 这是一个"检查再更新"的纯内存状态流转，原子性由仓储层保证。
func (s *StockRecord) Reserve(r Reservation) error {
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if s.AvailableQuantity() < r.Quantity {
		return &InsufficientStockError{
			ProductID: s.ProductID,
			Requested: r.Quantity,
			Available: s.AvailableQuantity(),
		}
	}
	s.ReservedQuantity += r.Quantity
	s.Reservations = append(s.Reservations, r)
	return nil
}

// Release 释放会话持有的预留。quantity <= 0 表示释放该会话的全部预留。
// 释放不存在的预留是无操作而不是错误，保证幂等。
// 返回实际释放的件数。
func (s *StockRecord) Release(sessionID string, quantity int64) int64 {
	all := quantity <= 0
	var released int64
	kept := s.Reservations[:0]
	for _, r := range s.Reservations {
		if r.SessionID != sessionID || (!all && released >= quantity) {
			kept = append(kept, r)
			continue
		}
		if all || released+r.Quantity <= quantity {
			// 整条释放
			released += r.Quantity
			continue
		}
		// 部分释放：缩小这条预留的数量（购物车减量场景）
		take := quantity - released
		r.Quantity -= take
		released += take
		kept = append(kept, r)
	}
	s.Reservations = kept
	s.ReservedQuantity -= released
	return released
}

// ReleaseExpired 释放所有在 now 之前过期的预留。
// 过期判断发生在变更时刻而不是扫描时刻，被续期或已提交的预留不会被误删。
// 返回释放的预留条数和总件数。
func (s *StockRecord) ReleaseExpired(now time.Time) (int64, int64) {
	var count, units int64
	kept := s.Reservations[:0]
	for _, r := range s.Reservations {
		if r.IsExpired(now) {
			count++
			units += r.Quantity
			continue
		}
		kept = append(kept, r)
	}
	s.Reservations = kept
	s.ReservedQuantity -= units
	return count, units
}

// Commit 将会话的预留转化为永久扣减：TotalQuantity 和 ReservedQuantity
// 同步减少 quantity，并按顺序消耗该会话的预留条目直到满足数量。
// 会话持有的预留不足 quantity 时返回 ErrReservationNotFound ——
// commit 绝不允许扣减未经预留的库存，否则两阶段协议就失去了可审计性。
func (s *StockRecord) Commit(sessionID string, quantity int64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	var held int64
	for _, r := range s.Reservations {
		if r.SessionID == sessionID {
			held += r.Quantity
		}
	}
	if held < quantity {
		return ErrReservationNotFound
	}

	var consumed int64
	kept := s.Reservations[:0]
	for _, r := range s.Reservations {
		if r.SessionID != sessionID || consumed >= quantity {
			kept = append(kept, r)
			continue
		}
		if consumed+r.Quantity <= quantity {
			consumed += r.Quantity
			continue
		}
		// 部分消耗一条预留
		take := quantity - consumed
		r.Quantity -= take
		consumed += take
		kept = append(kept, r)
	}
	s.Reservations = kept
	s.ReservedQuantity -= quantity
	s.TotalQuantity -= quantity
	return nil
}

// Restock 外部补货入口，增加物理库存
func (s *StockRecord) Restock(quantity int64) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	s.TotalQuantity += quantity
	return nil
}

// HasExpired 判断记录里是否还有过期未回收的预留，reaper 扫描用
func (s *StockRecord) HasExpired(now time.Time) bool {
	for _, r := range s.Reservations {
		if r.IsExpired(now) {
			return true
		}
	}
	return false
}

// Clone 返回记录的深拷贝，内存仓储用它保证调用方拿不到内部状态
func (s *StockRecord) Clone() *StockRecord {
	cp := *s
	cp.Reservations = make([]Reservation, len(s.Reservations))
	copy(cp.Reservations, s.Reservations)
	return &cp
}

// StockLevel 是面向展示的库存快照，不用于任何写路径的判定。
type StockLevel struct {
	ProductID         string `json:"productId"`
	TotalQuantity     int64  `json:"totalQuantity"`
	ReservedQuantity  int64  `json:"reservedQuantity"`
	AvailableQuantity int64  `json:"availableQuantity"`
	InStock           bool   `json:"inStock"`
}

// LevelOf 从库存记录生成展示快照
func LevelOf(s *StockRecord) *StockLevel {
	return &StockLevel{
		ProductID:         s.ProductID,
		TotalQuantity:     s.TotalQuantity,
		ReservedQuantity:  s.ReservedQuantity,
		AvailableQuantity: s.AvailableQuantity(),
		InStock:           s.InStock(),
	}
}
