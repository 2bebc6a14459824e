package testutil

import (
	"context"
	"fmt"
	"testing"

	"reconciler/internal/domain/model"
	"reconciler/internal/infra/db"
	infraRepo "reconciler/internal/infra/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewSQLite はテストごとに別のインメモリDBを作ってマイグレーションする。
func NewSQLite(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := db.OpenSQLite(dsn)
	require.NoError(t, err)
	require.NoError(t, infraRepo.AutoMigrate(gdb))

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func SeedProduct(t *testing.T, gdb *gorm.DB, sku string, stock int64, price string) model.Product {
	t.Helper()

	p, err := infraRepo.NewProductGormRepository(gdb).Create(context.Background(), model.Product{
		SKU:   sku,
		Name:  "Producto " + sku,
		Price: decimal.RequireFromString(price),
		Stock: stock,
	})
	require.NoError(t, err)
	return p
}

// SeedOrder は注文と明細を保存する。StatusとEmailsは未指定なら初期値。
func SeedOrder(t *testing.T, gdb *gorm.DB, o model.Order, items ...model.OrderItem) model.Order {
	t.Helper()
	ctx := context.Background()

	if o.Status == "" {
		o.Status = model.OrderStatusPending
	}
	created, err := infraRepo.NewOrderGormRepository(gdb).Create(ctx, o)
	require.NoError(t, err)

	if len(items) > 0 {
		require.NoError(t, infraRepo.NewOrderItemGormRepository(gdb).CreateBulk(ctx, created.ID, items))
	}
	return created
}

func Stock(t *testing.T, gdb *gorm.DB, sku string) int64 {
	t.Helper()

	p, err := infraRepo.NewProductGormRepository(gdb).FindBySKU(context.Background(), sku)
	require.NoError(t, err)
	return p.Stock
}

func ReloadOrder(t *testing.T, gdb *gorm.DB, id int64) model.Order {
	t.Helper()

	o, err := infraRepo.NewOrderGormRepository(gdb).FindByID(context.Background(), id)
	require.NoError(t, err)
	return o
}
