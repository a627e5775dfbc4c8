// internal/service/inventory/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound 操作引用了不存在的商品库存记录
	ErrProductNotFound = errors.New("product stock record not found")
	// ErrReservationNotFound commit 或定向 release 时会话没有匹配的有效预留。
	// 这是调用方的协议错误（未预留就提交、重复提交），不允许静默吞掉。
	ErrReservationNotFound = errors.New("no matching active reservation for session")
	// ErrStockRecordExists 重复创建库存记录
	ErrStockRecordExists = errors.New("stock record already exists")
	// ErrInvalidQuantity 数量必须为正整数
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrStorageUnavailable 存储层瞬时故障。原子更新保证了全有或全无，重试是安全的。
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// InsufficientStockError 表示请求的数量超过了当前可用库存。
// 错误里带上实际可用量，让结账页可以就地提示"仅剩 N 件"。
type InsufficientStockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// IsInsufficientStock 判断并提取库存不足错误
func IsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var e *InsufficientStockError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
