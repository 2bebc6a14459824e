package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"reconciler/internal/domain/model"
	repo "reconciler/internal/repository"
)

// 在庫の引当と戻し。注文ごとに1回ずつしか動かさない。
type InventoryLedger struct {
	tx     repo.TransactionManager
	locker Locker
	clock  Clock
	logger *slog.Logger
}

func NewInventoryLedger(tx repo.TransactionManager, locker Locker, clock Clock, logger *slog.Logger) *InventoryLedger {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InventoryLedger{tx: tx, locker: locker, clock: clock, logger: logger}
}

// 在庫を動かす単位（商品ごとにまとめた数量）
type stockLine struct {
	productID int64
	quantity  int64
}

func inventoryLockKey(orderID int64) string {
	return fmt.Sprintf("inventory:order:%d", orderID)
}

// ApplyForOrder は注文行をロックして在庫を引き当て、注文を保存する。
func (l *InventoryLedger) ApplyForOrder(ctx context.Context, orderID int64) (bool, error) {
	return l.forOrder(ctx, orderID, l.ApplyWithin)
}

// RevertForOrder は注文行をロックして在庫を戻し、注文を保存する。
func (l *InventoryLedger) RevertForOrder(ctx context.Context, orderID int64) (bool, error) {
	return l.forOrder(ctx, orderID, l.RevertWithin)
}

func (l *InventoryLedger) forOrder(
	ctx context.Context,
	orderID int64,
	fn func(context.Context, repo.TxRepos, *model.Order, []model.OrderItem) (bool, error),
) (bool, error) {
	// キーロックはコミットまで持つ（Txの外で取る）
	unlock := l.LockOrder(orderID)
	defer unlock()

	changed := false
	err := l.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		order, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		items, err := r.OrderItems().ListByOrderID(ctx, order.ID)
		if err != nil {
			return err
		}

		changed, err = fn(ctx, r, &order, items)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		_, err = r.Orders().Update(ctx, order)
		return err
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// ApplyWithin は呼び出し側のTx内で在庫を引き当てる。
// 呼び出し側はTxの前にLockOrderを取ること。
// orderのフラグを書き換えるので、保存は呼び出し側が行う。
func (l *InventoryLedger) ApplyWithin(ctx context.Context, r repo.TxRepos, order *model.Order, items []model.OrderItem) (bool, error) {
	if err := l.syncApplied(ctx, r, order); err != nil {
		return false, err
	}
	if order.InventoryApplied {
		return false, nil
	}

	lines, err := l.normalize(ctx, r, order, items)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, ErrOrderWithoutItems
	}

	for _, ln := range lines {
		mv, err := r.Inventory().AdjustStock(ctx, ln.productID, -ln.quantity, model.StockReasonOrder, order.ID)
		if err != nil {
			return false, fmt.Errorf("apply stock product %d: %w", ln.productID, err)
		}
		if mv.Clamped {
			order.Oversell = true
			l.logger.Warn("inventory oversell",
				"order", order.Ref(),
				"product_id", ln.productID,
				"requested", ln.quantity,
				"stock_before", mv.StockBefore,
			)
		}
	}

	now := l.clock.Now()
	order.InventoryApplied = true
	order.InventoryAppliedAt = &now
	l.logger.Info("inventory applied", "order", order.Ref(), "lines", len(lines))
	return true, nil
}

// RevertWithin は呼び出し側のTx内で在庫を戻す。
// 引当時に実際に減った分（0止めを考慮）だけ戻す。
func (l *InventoryLedger) RevertWithin(ctx context.Context, r repo.TxRepos, order *model.Order, items []model.OrderItem) (bool, error) {
	if err := l.syncApplied(ctx, r, order); err != nil {
		return false, err
	}
	if !order.InventoryApplied {
		return false, nil
	}

	lines, err := l.revertLines(ctx, r, order, items)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		l.logger.Warn("inventory revert without items", "order", order.Ref())
	}

	for _, ln := range lines {
		if _, err := r.Inventory().AdjustStock(ctx, ln.productID, ln.quantity, model.StockReasonOrderRevert, order.ID); err != nil {
			return false, fmt.Errorf("revert stock product %d: %w", ln.productID, err)
		}
	}

	order.InventoryApplied = false
	order.InventoryAppliedAt = nil
	l.logger.Info("inventory reverted", "order", order.Ref(), "lines", len(lines))
	return true, nil
}

// LockOrder は注文単位のプロセス内ロックを取り、解除関数を返す。
// 再入不可。Txを始める前に取り、コミット後に解除する。
func (l *InventoryLedger) LockOrder(orderID int64) func() {
	if l.locker == nil {
		return func() {}
	}
	return l.locker.Lock(inventoryLockKey(orderID))
}

// syncApplied は引当フラグを行ロック付きで読み直す。
// 手元のorderが古い写しでも、コミット済みの引当を見落とさない。
func (l *InventoryLedger) syncApplied(ctx context.Context, r repo.TxRepos, order *model.Order) error {
	current, err := r.Orders().FindByIDForUpdate(ctx, order.ID)
	if err != nil {
		return err
	}
	order.InventoryApplied = current.InventoryApplied
	order.InventoryAppliedAt = current.InventoryAppliedAt
	return nil
}

// 戻す数量。履歴があれば正味の減少分、無ければ明細の数量。
func (l *InventoryLedger) revertLines(ctx context.Context, r repo.TxRepos, order *model.Order, items []model.OrderItem) ([]stockLine, error) {
	mvs, err := r.Inventory().ListMovementsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if len(mvs) == 0 {
		return l.normalize(ctx, r, order, items)
	}

	net := map[int64]int64{}
	for _, mv := range mvs {
		net[mv.ProductID] += mv.StockAfter - mv.StockBefore
	}
	lines := make([]stockLine, 0, len(net))
	for pid, n := range net {
		if n < 0 {
			lines = append(lines, stockLine{productID: pid, quantity: -n})
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })
	return lines, nil
}

// normalize は明細を商品ID単位にまとめる。
// 商品が見つからない明細は警告して飛ばす。数量0以下も飛ばす。
func (l *InventoryLedger) normalize(ctx context.Context, r repo.TxRepos, order *model.Order, items []model.OrderItem) ([]stockLine, error) {
	qty := map[int64]int64{}
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		pid, err := l.resolveProduct(ctx, r, it)
		if errors.Is(err, repo.ErrNotFound) {
			l.logger.Warn("inventory product not found",
				"order", order.Ref(),
				"product_id", it.ProductID,
				"sku", it.SKU,
			)
			continue
		}
		if err != nil {
			return nil, err
		}
		qty[pid] += it.Quantity
	}

	lines := make([]stockLine, 0, len(qty))
	for pid, q := range qty {
		lines = append(lines, stockLine{productID: pid, quantity: q})
	}
	// ロック順を固定する
	sort.Slice(lines, func(i, j int) bool { return lines[i].productID < lines[j].productID })
	return lines, nil
}

func (l *InventoryLedger) resolveProduct(ctx context.Context, r repo.TxRepos, it model.OrderItem) (int64, error) {
	if it.ProductID > 0 {
		p, err := r.Products().FindByID(ctx, it.ProductID)
		if err == nil {
			return p.ID, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return 0, err
		}
	}
	sku := strings.TrimSpace(it.SKU)
	if sku == "" {
		return 0, repo.ErrNotFound
	}
	p, err := r.Products().FindBySKU(ctx, sku)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}
