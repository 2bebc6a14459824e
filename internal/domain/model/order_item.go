package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。価格・名前は注文時点のスナップショット。
type OrderItem struct {
	ID                  int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64           `gorm:"not null;index" json:"order_id"`
	ProductID           int64           `gorm:"index" json:"product_id"`
	SKU                 string          `gorm:"type:varchar(64);index" json:"sku"`
	ProductNameSnapshot string          `gorm:"type:varchar(255)" json:"product_name_snapshot"`
	UnitPrice           decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"unit_price"`
	Quantity            int64           `gorm:"not null" json:"quantity"`
	CreatedAt           time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}

// Subtotal は単価×数量。
func (it OrderItem) Subtotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(it.Quantity))
}
