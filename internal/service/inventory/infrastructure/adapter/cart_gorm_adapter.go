// internal/service/inventory/infrastructure/adapter/cart_gorm_adapter.go
package adapter

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"stockhold/internal/service/inventory/domain"
	"stockhold/internal/service/inventory/infrastructure"
)

// CartGormAdapter 是 port.CartStore 的 GORM 实现。
// 购物车属于外部协作方，这里只实现同步操作需要的最小读写。
type CartGormAdapter struct {
	db *gorm.DB
}

// NewCartGormAdapter 创建购物车存储适配器
func NewCartGormAdapter(db *gorm.DB) (*CartGormAdapter, error) {
	if err := db.AutoMigrate(&infrastructure.CartItemModel{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate cart table")
	}
	return &CartGormAdapter{db: db}, nil
}

// GetCart 读取会话的购物车，没有任何行项目时返回空车
func (a *CartGormAdapter) GetCart(ctx context.Context, sessionID string) (*domain.Cart, error) {
	var models []infrastructure.CartItemModel
	if err := a.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at").
		Find(&models).Error; err != nil {
		return nil, errors.Wrap(domain.ErrStorageUnavailable, err.Error())
	}

	cart := &domain.Cart{SessionID: sessionID}
	for _, m := range models {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: m.ProductID,
			Quantity:  m.Quantity,
		})
		if m.UpdatedAt.After(cart.UpdatedAt) {
			cart.UpdatedAt = m.UpdatedAt
		}
	}
	return cart, nil
}

// SaveCart 整体替换会话的行项目
func (a *CartGormAdapter) SaveCart(ctx context.Context, cart *domain.Cart) error {
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("session_id = ?", cart.SessionID).
			Delete(&infrastructure.CartItemModel{}).Error; err != nil {
			return err
		}
		for _, item := range cart.Items {
			if err := tx.Create(&infrastructure.CartItemModel{
				SessionID: cart.SessionID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(domain.ErrStorageUnavailable, err.Error())
	}
	return nil
}
