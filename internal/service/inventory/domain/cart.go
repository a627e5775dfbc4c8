// internal/service/inventory/domain/cart.go
package domain

import "time"

// Cart 是购物车在本核心眼中的样子：一组期望数量。
// 行项目的价格、标题等属于外部协作方，这里不关心。
type Cart struct {
	SessionID string
	Items     []CartItem
	UpdatedAt time.Time
}

// CartItem 购物车行项目
type CartItem struct {
	ProductID string
	Quantity  int64
}

// CartChangeReason 描述同步时行项目被调整的原因
type CartChangeReason string

const (
	// ReasonOutOfStock 可用库存为零，行项目被整体移除
	ReasonOutOfStock CartChangeReason = "OUT_OF_STOCK"
	// ReasonInsufficientStock 可用库存不足，数量被收缩
	ReasonInsufficientStock CartChangeReason = "INSUFFICIENT_STOCK"
)

// CartChange 记录一次行项目调整
type CartChange struct {
	ProductID   string           `json:"productId"`
	OldQuantity int64            `json:"oldQuantity"`
	NewQuantity int64            `json:"newQuantity"`
	Reason      CartChangeReason `json:"reason"`
}

// CartSyncResult 是一次购物车对账的完整差异，UI 依赖它提示用户哪些项变了
type CartSyncResult struct {
	Updated      bool         `json:"updated"`
	Changes      []CartChange `json:"changes"`
	RemovedItems []string     `json:"removedItems"`
}
