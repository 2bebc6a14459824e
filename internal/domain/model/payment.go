package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// 決済プロバイダ（Mercado Pago）の決済。照合ではこれを正とする。
type Payment struct {
	ID                 json.Number               `json:"id"`
	Status             string                    `json:"status"`
	StatusDetail       string                    `json:"status_detail"`
	TransactionAmount  *decimal.Decimal          `json:"transaction_amount"`
	TransactionDetails PaymentTransactionDetails `json:"transaction_details"`
	CurrencyID         string                    `json:"currency_id"`
	ExternalReference  string                    `json:"external_reference"`
	PreferenceID       string                    `json:"preference_id"`
	Metadata           map[string]any            `json:"metadata"`
	Order              PaymentOrderRef           `json:"order"`
	Payer              PaymentPayer              `json:"payer"`

	// 取得したままのJSON
	Raw []byte `json:"-"`
}

type PaymentTransactionDetails struct {
	TotalPaidAmount *decimal.Decimal `json:"total_paid_amount"`
	CurrencyID      string           `json:"currency_id"`
}

type PaymentOrderRef struct {
	ID   json.Number `json:"id"`
	Type string      `json:"type"`
}

type PaymentPayer struct {
	Email string `json:"email"`
}

// Amount は決済金額。transaction_amount → total_paid_amount の順。
func (p Payment) Amount() (decimal.Decimal, bool) {
	if p.TransactionAmount != nil {
		return *p.TransactionAmount, true
	}
	if p.TransactionDetails.TotalPaidAmount != nil {
		return *p.TransactionDetails.TotalPaidAmount, true
	}
	return decimal.Decimal{}, false
}

func (p Payment) Currency() string {
	if c := strings.TrimSpace(p.CurrencyID); c != "" {
		return c
	}
	return strings.TrimSpace(p.TransactionDetails.CurrencyID)
}

// MetadataString はmetadataの値を文字列で返す（数値も可）。
func (p Payment) MetadataString(key string) string {
	if p.Metadata == nil {
		return ""
	}
	return Stringify(p.Metadata[key])
}

// マーチャントオーダー（複数決済のまとまり）
type MerchantOrder struct {
	ID                json.Number            `json:"id"`
	PreferenceID      string                 `json:"preference_id"`
	ExternalReference string                 `json:"external_reference"`
	Items             []MerchantOrderItem    `json:"items"`
	Payments          []MerchantOrderPayment `json:"payments"`
}

type MerchantOrderItem struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type MerchantOrderPayment struct {
	ID                json.Number     `json:"id"`
	Status            string          `json:"status"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
}

// Stringify はJSON由来の値（文字列・数値）を識別子用の文字列にする。
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return ""
	}
}
