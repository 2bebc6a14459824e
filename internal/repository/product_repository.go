package repository

import (
	"context"
	"errors"

	"reconciler/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindBySKU(ctx context.Context, sku string) (model.Product, error)
	Create(ctx context.Context, p model.Product) (model.Product, error)
}

// 在庫の増減と履歴保存をまとめた約束。
type InventoryRepository interface {
	// delta分だけ在庫を動かす（0未満にはしない）。履歴も同時に残す。
	AdjustStock(ctx context.Context, productID int64, delta int64, reason model.StockReason, orderID int64) (model.StockMovement, error)

	// 注文ごとの履歴
	ListMovementsByOrderID(ctx context.Context, orderID int64) ([]model.StockMovement, error)
}
