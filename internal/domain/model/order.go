package model

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusShipped  OrderStatus = "SHIPPED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// メール送信フラグ名
const (
	EmailFlagConfirmed = "confirmedSent"
	EmailFlagPending   = "pendingSent"
	EmailFlagRejected  = "rejectedSent"
)

// 種類 → 送信済みか。キーが無い = 未送信、false = 送信失敗を記録済み。
type EmailFlags map[string]bool

// 注文。識別子は複数あり、どれでも同じ注文に解決される。
type Order struct {
	ID                int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber       string `gorm:"type:varchar(64);uniqueIndex" json:"order_number"`
	ExternalReference string `gorm:"type:varchar(128);index" json:"external_reference"`
	PreferenceID      string `gorm:"type:varchar(128);index" json:"preference_id"`
	PaymentID         string `gorm:"type:varchar(64);index" json:"payment_id"`

	CustomerEmail string `gorm:"type:varchar(255)" json:"customer_email"`
	CustomerName  string `gorm:"type:varchar(255)" json:"customer_name"`

	Status            OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatusCode string          `gorm:"type:varchar(20);index" json:"payment_status_code"`
	PaymentStatus     string          `gorm:"type:varchar(20)" json:"payment_status"`
	Currency          string          `gorm:"type:varchar(8)" json:"currency"`
	TotalAmount       decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"total_amount"`

	InventoryApplied   bool       `gorm:"not null;default:false" json:"inventory_applied"`
	InventoryAppliedAt *time.Time `json:"inventory_applied_at"`
	Oversell           bool       `gorm:"not null;default:false" json:"oversell"`

	PaidAt          *time.Time          `json:"paid_at"`
	PaidAmount      decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"paid_amount"`
	PaidCurrency    string              `gorm:"type:varchar(8)" json:"paid_currency"`
	ProviderPayload string              `gorm:"type:text" json:"-"`

	Emails EmailFlags `gorm:"type:text;serializer:json" json:"emails"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Ref はログ用の注文参照。
func (o Order) Ref() string {
	if o.OrderNumber != "" {
		return o.OrderNumber
	}
	if o.ExternalReference != "" {
		return o.ExternalReference
	}
	return strconv.FormatInt(o.ID, 10)
}

func (o Order) EmailSent(flag string) bool {
	return o.Emails != nil && o.Emails[flag]
}

// EmailFailed は送信失敗が記録されているか（false が明示的に入っている）。
func (o Order) EmailFailed(flag string) bool {
	if o.Emails == nil {
		return false
	}
	v, ok := o.Emails[flag]
	return ok && !v
}
