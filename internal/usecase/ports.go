package usecase

import (
	"context"
	"time"

	"reconciler/internal/domain/model"
)

// 決済プロバイダ（読み取りのみ）
type PaymentGateway interface {
	FetchPayment(ctx context.Context, paymentID string) (model.Payment, error)
	FetchMerchantOrder(ctx context.Context, merchantOrderID string) (model.MerchantOrder, error)
	SearchMerchantOrders(ctx context.Context, externalReference string) ([]model.MerchantOrder, error)
}

// メール送信。失敗はerrorで返す。
type Notifier interface {
	HasTemplate(flag string) bool
	Send(ctx context.Context, flag string, to string, order model.Order) error
}

// キー単位の排他（戻り値で解放）
type Locker interface {
	Lock(key string) func()
}

// 送信中キーの登録簿
type InFlightRegistry interface {
	TryAcquire(key string) bool
	Release(key string)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock は実時間のClock。
func SystemClock() Clock { return systemClock{} }
