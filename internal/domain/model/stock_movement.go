package model

import "time"

type StockReason string

const (
	// 決済承認による引当
	StockReasonOrder StockReason = "order"
	// 取消・返金・チャージバックによる戻し
	StockReasonOrderRevert StockReason = "order-revert"
)

// 在庫の増減履歴。在庫を動かしたら必ず1行残す。
type StockMovement struct {
	ID          string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProductID   int64       `gorm:"not null;index" json:"product_id"`
	OrderID     int64       `gorm:"not null;index" json:"order_id"`
	Delta       int64       `gorm:"not null" json:"delta"`
	Reason      StockReason `gorm:"type:varchar(32);not null;index" json:"reason"`
	StockBefore int64       `gorm:"not null" json:"stock_before"`
	StockAfter  int64       `gorm:"not null" json:"stock_after"`
	// 0で止めた（売り越し）
	Clamped   bool      `gorm:"not null;default:false" json:"clamped"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
