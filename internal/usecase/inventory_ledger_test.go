package usecase_test

import (
	"context"
	"testing"
	"time"

	"reconciler/internal/domain/model"
	infraRepo "reconciler/internal/infra/repository"
	repo "reconciler/internal/repository"
	"reconciler/internal/testutil"
	"reconciler/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryLedger_ApplyIsIdempotent(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	order := e.seedScenarioOrder(t)

	applied, err := e.ledger.ApplyForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = e.ledger.ApplyForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, int64(8), testutil.Stock(t, e.db, "SKU1"))
	assert.Equal(t, int64(4), testutil.Stock(t, e.db, "SKU2"))
	assert.True(t, testutil.ReloadOrder(t, e.db, order.ID).InventoryApplied)
}

func TestInventoryLedger_RevertWithoutApplyIsNoop(t *testing.T) {
	e := newEngine(t)
	order := e.seedScenarioOrder(t)

	reverted, err := e.ledger.RevertForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, reverted)
	assert.Equal(t, int64(10), testutil.Stock(t, e.db, "SKU1"))
}

func TestInventoryLedger_RoundTrip(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	order := e.seedScenarioOrder(t)

	_, err := e.ledger.ApplyForOrder(ctx, order.ID)
	require.NoError(t, err)
	reverted, err := e.ledger.RevertForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, reverted)
	assert.Equal(t, int64(10), testutil.Stock(t, e.db, "SKU1"))
	assert.Equal(t, int64(5), testutil.Stock(t, e.db, "SKU2"))

	applied, err := e.ledger.ApplyForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, int64(8), testutil.Stock(t, e.db, "SKU1"))
	assert.Equal(t, int64(4), testutil.Stock(t, e.db, "SKU2"))
	assert.True(t, testutil.ReloadOrder(t, e.db, order.ID).InventoryApplied)
}

func TestInventoryLedger_OversellClampsAndRevertRestoresTakenStock(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	testutil.SeedProduct(t, e.db, "SKU1", 1, "100")
	order := testutil.SeedOrder(t, e.db, model.Order{OrderNumber: "ORD7"},
		model.OrderItem{SKU: "SKU1", Quantity: 3, UnitPrice: decimal.RequireFromString("100")},
	)

	applied, err := e.ledger.ApplyForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(0), testutil.Stock(t, e.db, "SKU1"))
	assert.True(t, testutil.ReloadOrder(t, e.db, order.ID).Oversell)

	_, err = e.ledger.RevertForOrder(ctx, order.ID)
	require.NoError(t, err)
	// 実際に減った1だけ戻る
	assert.Equal(t, int64(1), testutil.Stock(t, e.db, "SKU1"))
}

func TestInventoryLedger_MergesLinesAndSkipsInvalid(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	p := testutil.SeedProduct(t, e.db, "SKU1", 10, "100")
	order := testutil.SeedOrder(t, e.db, model.Order{OrderNumber: "ORD8"},
		model.OrderItem{ProductID: p.ID, Quantity: 1},
		model.OrderItem{SKU: "SKU1", Quantity: 2},
		model.OrderItem{SKU: "SKU1", Quantity: 0},
		model.OrderItem{SKU: "MISSING", Quantity: 4},
	)

	applied, err := e.ledger.ApplyForOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(7), testutil.Stock(t, e.db, "SKU1"))
}

func TestInventoryLedger_NoItems(t *testing.T) {
	e := newEngine(t)
	order := testutil.SeedOrder(t, e.db, model.Order{OrderNumber: "ORD9"})

	applied, err := e.ledger.ApplyForOrder(context.Background(), order.ID)
	assert.ErrorIs(t, err, usecase.ErrOrderWithoutItems)
	assert.False(t, applied)
	assert.False(t, testutil.ReloadOrder(t, e.db, order.ID).InventoryApplied)
}

// 引当前に読んだ古い写しが2つあっても、在庫は1回だけ減る
func TestInventoryLedger_StaleCopiesApplyOnce(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	order := e.seedScenarioOrder(t)
	tx := infraRepo.NewTxManagerGorm(e.db)

	first := testutil.ReloadOrder(t, e.db, order.ID)
	second := testutil.ReloadOrder(t, e.db, order.ID)
	require.False(t, second.InventoryApplied)

	applyCopy := func(o model.Order) bool {
		applied := false
		err := tx.WithinTx(ctx, func(r repo.TxRepos) error {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return err
			}
			applied, err = e.ledger.ApplyWithin(ctx, r, &o, items)
			if err != nil || !applied {
				return err
			}
			_, err = r.Orders().Update(ctx, o)
			return err
		})
		require.NoError(t, err)
		return applied
	}

	assert.True(t, applyCopy(first))
	assert.False(t, applyCopy(second))

	assert.Equal(t, int64(8), testutil.Stock(t, e.db, "SKU1"))
	assert.Equal(t, int64(4), testutil.Stock(t, e.db, "SKU2"))
}

// キーロックはTxの外で取られ、解除されるまで引当は始まらない
func TestInventoryLedger_ApplyWaitsForOrderLock(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	order := e.seedScenarioOrder(t)

	unlock := e.ledger.LockOrder(order.ID)

	done := make(chan bool, 1)
	go func() {
		applied, err := e.ledger.ApplyForOrder(ctx, order.ID)
		assert.NoError(t, err)
		done <- applied
	}()

	select {
	case <-done:
		t.Fatal("apply ran while the order lock was held")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, int64(10), testutil.Stock(t, e.db, "SKU1"))

	unlock()
	select {
	case applied := <-done:
		assert.True(t, applied)
	case <-time.After(5 * time.Second):
		t.Fatal("apply did not finish after unlock")
	}
	assert.Equal(t, int64(8), testutil.Stock(t, e.db, "SKU1"))
}
