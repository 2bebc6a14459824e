package repository

import (
	"context"
	"errors"

	"reconciler/internal/domain/model"
	repo "reconciler/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type InventoryGormRepository struct {
	db *gorm.DB
}

func NewInventoryGormRepository(db *gorm.DB) *InventoryGormRepository {
	return &InventoryGormRepository{db: db}
}

// 在庫をdelta分動かして履歴を残す。減算は0で止め、売り越しフラグを立てる。
func (r *InventoryGormRepository) AdjustStock(ctx context.Context, productID int64, delta int64, reason model.StockReason, orderID int64) (model.StockMovement, error) {
	var mv model.StockMovement

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//現在の在庫をロックして取得
		var p model.Product
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", productID).
			First(&p).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repo.ErrNotFound
		}
		if err != nil {
			return err
		}

		before := p.Stock
		after := before + delta
		clamped := false
		if after < 0 {
			after = 0
			clamped = true
		}

		updates := map[string]interface{}{"stock": after}
		if clamped {
			updates["oversell"] = true
		} else if delta > 0 && after > 0 {
			updates["oversell"] = false
		}

		res := tx.Model(&model.Product{}).Where("id = ?", productID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}

		mv = model.StockMovement{
			ID:          uuid.NewString(),
			ProductID:   productID,
			OrderID:     orderID,
			Delta:       delta,
			Reason:      reason,
			StockBefore: before,
			StockAfter:  after,
			Clamped:     clamped,
		}
		return tx.Create(&mv).Error
	})
	if err != nil {
		return model.StockMovement{}, err
	}
	return mv, nil
}

func (r *InventoryGormRepository) ListMovementsByOrderID(ctx context.Context, orderID int64) ([]model.StockMovement, error) {
	var mvs []model.StockMovement
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at asc").
		Find(&mvs).Error
	if err != nil {
		return []model.StockMovement{}, err
	}
	return mvs, nil
}
