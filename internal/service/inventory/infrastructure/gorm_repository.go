// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockhold/internal/service/inventory/domain"
)

// GormStockRepository 是 domain.StockRepository 的 MySQL 实现。
//
// 关键约定：每个写操作都是一个短事务，库存计数器的变更永远是一条
// 带可用量条件的 UPDATE，以 RowsAffected 作为成功信号——
// "找到 remaining >= requested 的记录再增量" 这一原子判定
// 由数据库完成，应用层从不做两步的读后写。
type GormStockRepository struct {
	db *gorm.DB
}

// NewGormStockRepository 创建一个新的 GORM 仓储实例并迁移表结构
func NewGormStockRepository(db *gorm.DB) (*GormStockRepository, error) {
	if err := db.AutoMigrate(&StockRecordModel{}, &StockReservationModel{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate stock tables")
	}
	return &GormStockRepository{db: db}, nil
}

// Create 建立库存记录，商品重复时返回 ErrStockRecordExists
func (r *GormStockRepository) Create(ctx context.Context, productID string, total, lowStockThreshold int64) error {
	if total < 0 {
		return domain.ErrInvalidQuantity
	}
	model := &StockRecordModel{
		ProductID:         productID,
		TotalQuantity:     total,
		LowStockThreshold: lowStockThreshold,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if stderrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return domain.ErrStockRecordExists
		}
		return storageErr(err)
	}
	return nil
}

// Get 读取单个库存记录及其全部有效预留
func (r *GormStockRepository) Get(ctx context.Context, productID string) (*domain.StockRecord, error) {
	var model StockRecordModel
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&model).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProductNotFound
		}
		return nil, storageErr(err)
	}

	var reservations []StockReservationModel
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("reserved_at").
		Find(&reservations).Error; err != nil {
		return nil, storageErr(err)
	}
	return ToDomainStockRecord(&model, reservations), nil
}

// GetBatch 批量读取，缺失的商品不出现在结果里
func (r *GormStockRepository) GetBatch(ctx context.Context, productIDs []string) (map[string]*domain.StockRecord, error) {
	result := make(map[string]*domain.StockRecord, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	var models []StockRecordModel
	if err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&models).Error; err != nil {
		return nil, storageErr(err)
	}
	var reservations []StockReservationModel
	if err := r.db.WithContext(ctx).Where("product_id IN ?", productIDs).Find(&reservations).Error; err != nil {
		return nil, storageErr(err)
	}

	byProduct := make(map[string][]StockReservationModel)
	for _, res := range reservations {
		byProduct[res.ProductID] = append(byProduct[res.ProductID], res)
	}
	for i := range models {
		m := &models[i]
		result[m.ProductID] = ToDomainStockRecord(m, byProduct[m.ProductID])
	}
	return result, nil
}

// Reserve 原子地校验可用量并追加预留。
// 两个会话争抢最后一件时，条件 UPDATE 保证只有一个成功，
// 另一个在读到更新后的状态后拿到确定性的 InsufficientStockError。
func (r *GormStockRepository) Reserve(ctx context.Context, productID string, res domain.Reservation) error {
	if res.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 条件增量：只有剩余可用量足够时这条 UPDATE 才会命中
		update := tx.Model(&StockRecordModel{}).
			Where("product_id = ? AND total_quantity - reserved_quantity >= ?", productID, res.Quantity).
			Update("reserved_quantity", gorm.Expr("reserved_quantity + ?", res.Quantity))
		if update.Error != nil {
			return storageErr(update.Error)
		}
		if update.RowsAffected == 0 {
			// 2. 没命中：区分"商品不存在"和"库存不足"，后者要带上实际可用量
			var model StockRecordModel
			if err := tx.Where("product_id = ?", productID).First(&model).Error; err != nil {
				if stderrors.Is(err, gorm.ErrRecordNotFound) {
					return domain.ErrProductNotFound
				}
				return storageErr(err)
			}
			return &domain.InsufficientStockError{
				ProductID: productID,
				Requested: res.Quantity,
				Available: model.TotalQuantity - model.ReservedQuantity,
			}
		}

		// 3. 计数器已占位，落预留明细
		return tx.Create(&StockReservationModel{
			ReservationID: res.ID,
			ProductID:     productID,
			SessionID:     res.SessionID,
			Quantity:      res.Quantity,
			ReservedAt:    res.ReservedAt,
			ExpiresAt:     res.ExpiresAt,
		}).Error
	})
	return err
}

// Release 释放会话的预留，quantity <= 0 表示全部释放。幂等：无可释放时返回 0。
func (r *GormStockRepository) Release(ctx context.Context, productID, sessionID string, quantity int64) (int64, error) {
	var released int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []StockReservationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ? AND session_id = ?", productID, sessionID).
			Order("reserved_at").
			Find(&rows).Error; err != nil {
			return storageErr(err)
		}

		released = 0
		all := quantity <= 0
		for i := range rows {
			row := &rows[i]
			if !all && released >= quantity {
				break
			}
			if all || released+row.Quantity <= quantity {
				if err := tx.Unscoped().Delete(row).Error; err != nil {
					return storageErr(err)
				}
				released += row.Quantity
				continue
			}
			// 部分释放：缩小这条预留
			take := quantity - released
			if err := tx.Model(row).Update("quantity", gorm.Expr("quantity - ?", take)).Error; err != nil {
				return storageErr(err)
			}
			released += take
		}
		if released == 0 {
			return nil
		}
		return decrementReserved(tx, productID, released)
	})
	if err != nil {
		return 0, err
	}
	return released, nil
}

// ReleaseExpired 释放 cutoff 之前过期的预留。
// 过期条件出现在 DELETE 的 WHERE 里，在变更时刻重新校验——
// 扫描开始后被提交或续期的预留不会被误释放。
func (r *GormStockRepository) ReleaseExpired(ctx context.Context, productID string, cutoff time.Time) (int64, int64, error) {
	var count, units int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []StockReservationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ? AND expires_at <= ?", productID, cutoff).
			Find(&rows).Error; err != nil {
			return storageErr(err)
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]uint, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
			units += row.Quantity
		}
		count = int64(len(rows))

		if err := tx.Unscoped().
			Where("id IN ? AND expires_at <= ?", ids, cutoff).
			Delete(&StockReservationModel{}).Error; err != nil {
			return storageErr(err)
		}
		return decrementReserved(tx, productID, units)
	})
	if err != nil {
		return 0, 0, err
	}
	return count, units, nil
}

// Commit 把会话预留转为永久扣减：total 与 reserved 同步减少，
// 并按预留顺序消耗明细。会话预留不足时整个事务回滚，物理库存不变。
func (r *GormStockRepository) Commit(ctx context.Context, productID, sessionID string, quantity int64) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []StockReservationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ? AND session_id = ?", productID, sessionID).
			Order("reserved_at").
			Find(&rows).Error; err != nil {
			return storageErr(err)
		}

		var held int64
		for _, row := range rows {
			held += row.Quantity
		}
		if held < quantity {
			return domain.ErrReservationNotFound
		}

		var consumed int64
		for i := range rows {
			row := &rows[i]
			if consumed >= quantity {
				break
			}
			if consumed+row.Quantity <= quantity {
				if err := tx.Unscoped().Delete(row).Error; err != nil {
					return storageErr(err)
				}
				consumed += row.Quantity
				continue
			}
			take := quantity - consumed
			if err := tx.Model(row).Update("quantity", gorm.Expr("quantity - ?", take)).Error; err != nil {
				return storageErr(err)
			}
			consumed += take
		}

		// 计数器扣减带条件重校验，保证不变式在并发下也不会被破坏
		update := tx.Model(&StockRecordModel{}).
			Where("product_id = ? AND reserved_quantity >= ? AND total_quantity >= ?", productID, quantity, quantity).
			Updates(map[string]interface{}{
				"total_quantity":    gorm.Expr("total_quantity - ?", quantity),
				"reserved_quantity": gorm.Expr("reserved_quantity - ?", quantity),
			})
		if update.Error != nil {
			return storageErr(update.Error)
		}
		if update.RowsAffected == 0 {
			return domain.ErrReservationNotFound
		}
		return nil
	})
	return err
}

// Restock 外部补货，增加物理库存
func (r *GormStockRepository) Restock(ctx context.Context, productID string, quantity int64) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	update := r.db.WithContext(ctx).Model(&StockRecordModel{}).
		Where("product_id = ?", productID).
		Update("total_quantity", gorm.Expr("total_quantity + ?", quantity))
	if update.Error != nil {
		return storageErr(update.Error)
	}
	if update.RowsAffected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

// FindWithExpired 找出存在过期预留的商品，供 reaper 扫描
func (r *GormStockRepository) FindWithExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	var productIDs []string
	if err := r.db.WithContext(ctx).Model(&StockReservationModel{}).
		Distinct("product_id").
		Where("expires_at <= ?", cutoff).
		Limit(limit).
		Pluck("product_id", &productIDs).Error; err != nil {
		return nil, storageErr(err)
	}
	return productIDs, nil
}

// decrementReserved 在明细变更后同步计数器，带下限保护
func decrementReserved(tx *gorm.DB, productID string, units int64) error {
	update := tx.Model(&StockRecordModel{}).
		Where("product_id = ? AND reserved_quantity >= ?", productID, units).
		Update("reserved_quantity", gorm.Expr("reserved_quantity - ?", units))
	if update.Error != nil {
		return storageErr(update.Error)
	}
	if update.RowsAffected == 0 {
		// 计数器与明细不一致只可能是外部直接改库导致的，回滚整个事务
		return errors.Errorf("reserved counter underflow for product %s", productID)
	}
	return nil
}

// storageErr 把底层数据库错误归类为可重试的 StorageUnavailable，
// 同时保留原始错误信息
func storageErr(err error) error {
	return errors.Wrap(domain.ErrStorageUnavailable, err.Error())
}
