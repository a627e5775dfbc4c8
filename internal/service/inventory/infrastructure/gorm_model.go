// internal/service/inventory/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"gorm.io/gorm"
)

// StockRecordModel 对应数据库中的 stock_record 表。
// 预留总量冗余在本表，这样 reserve 的可用量校验可以落在
// 一条带条件的 UPDATE 上，由数据库保证原子性。
type StockRecordModel struct {
	gorm.Model
	ProductID         string `gorm:"uniqueIndex;size:64"`
	TotalQuantity     int64  `gorm:"not null;default:0"`
	ReservedQuantity  int64  `gorm:"not null;default:0"`
	LowStockThreshold int64  `gorm:"not null;default:0"`
}

// TableName 指定 GORM 应该使用的表名
func (StockRecordModel) TableName() string {
	return "stock_record"
}

// StockReservationModel 对应数据库中的 stock_reservation 表
type StockReservationModel struct {
	gorm.Model
	ReservationID string    `gorm:"uniqueIndex;size:36"`
	ProductID     string    `gorm:"size:64;index:idx_product_session"`
	SessionID     string    `gorm:"size:64;index:idx_product_session"`
	Quantity      int64     `gorm:"not null"`
	ReservedAt    time.Time `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"not null;index"`
}

// TableName 指定 GORM 应该使用的表名
func (StockReservationModel) TableName() string {
	return "stock_reservation"
}

// CartItemModel 对应数据库中的 cart_item 表（外部协作方的购物车存储）
type CartItemModel struct {
	gorm.Model
	SessionID string `gorm:"size:64;index"`
	ProductID string `gorm:"size:64"`
	Quantity  int64  `gorm:"not null"`
}

// TableName 指定 GORM 应该使用的表名
func (CartItemModel) TableName() string {
	return "cart_item"
}
