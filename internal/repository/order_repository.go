package repository

import (
	"context"
	"time"

	"reconciler/internal/domain/model"
)

// 照合対象の一覧条件
type ReconcileListFilter struct {
	CreatedFrom time.Time
	Limit       int
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)

	// 識別子の一致（id / order_number / external_reference / preference_id / payment_id のどれか）
	FindByIdentifier(ctx context.Context, candidate string) ([]model.Order, error)

	// 行ロック付き取得（SELECT ... FOR UPDATE）
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)

	Create(ctx context.Context, order model.Order) (model.Order, error)

	// 行全体を1回で置き換える
	Update(ctx context.Context, order model.Order) (model.Order, error)

	// メール送信フラグだけ更新
	MarkEmailFlag(ctx context.Context, orderID int64, flag string, value bool) (model.Order, error)

	// 未確定（pending）の注文一覧
	ListUnsettled(ctx context.Context, f ReconcileListFilter) ([]model.Order, error)
}
