package repository_test

import (
	"context"
	"testing"

	"reconciler/internal/domain/model"
	infraRepo "reconciler/internal/infra/repository"
	repo "reconciler/internal/repository"
	"reconciler/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryGorm_AdjustStock_WritesMovement(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	ctx := context.Background()
	r := infraRepo.NewInventoryGormRepository(gdb)

	p := testutil.SeedProduct(t, gdb, "SKU1", 10, "100")

	mv, err := r.AdjustStock(ctx, p.ID, -3, model.StockReasonOrder, 7)
	require.NoError(t, err)
	assert.NotEmpty(t, mv.ID)
	assert.Equal(t, int64(10), mv.StockBefore)
	assert.Equal(t, int64(7), mv.StockAfter)
	assert.False(t, mv.Clamped)
	assert.Equal(t, int64(7), testutil.Stock(t, gdb, "SKU1"))

	mvs, err := r.ListMovementsByOrderID(ctx, 7)
	require.NoError(t, err)
	require.Len(t, mvs, 1)
	assert.Equal(t, model.StockReasonOrder, mvs[0].Reason)
	assert.Equal(t, int64(-3), mvs[0].Delta)
}

func TestInventoryGorm_AdjustStock_ClampsAtZero(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	ctx := context.Background()
	r := infraRepo.NewInventoryGormRepository(gdb)

	p := testutil.SeedProduct(t, gdb, "SKU1", 2, "100")

	mv, err := r.AdjustStock(ctx, p.ID, -5, model.StockReasonOrder, 1)
	require.NoError(t, err)
	assert.True(t, mv.Clamped)
	assert.Equal(t, int64(0), mv.StockAfter)

	got, err := infraRepo.NewProductGormRepository(gdb).FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Stock)
	assert.True(t, got.Oversell)

	// 戻すと売り越しは解除
	_, err = r.AdjustStock(ctx, p.ID, 2, model.StockReasonOrderRevert, 1)
	require.NoError(t, err)
	got, err = infraRepo.NewProductGormRepository(gdb).FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Stock)
	assert.False(t, got.Oversell)
}

func TestInventoryGorm_AdjustStock_UnknownProduct(t *testing.T) {
	gdb := testutil.NewSQLite(t)
	r := infraRepo.NewInventoryGormRepository(gdb)

	_, err := r.AdjustStock(context.Background(), 404, -1, model.StockReasonOrder, 1)
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
