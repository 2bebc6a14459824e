package usecase_test

import (
	"encoding/json"
	"net/url"
	"testing"

	"reconciler/internal/usecase"

	"github.com/stretchr/testify/assert"
)

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		query url.Values
		want  usecase.Notification
	}{
		{
			name: "webhook v2",
			body: map[string]any{
				"id":     float64(12345),
				"type":   "payment",
				"action": "payment.updated",
				"data":   map[string]any{"id": "999"},
			},
			want: usecase.Notification{Type: "payment", Action: "payment.updated", ID: "999"},
		},
		{
			name: "numeric data id",
			body: map[string]any{"type": "payment", "data": map[string]any{"id": json.Number("1234567890")}},
			want: usecase.Notification{Type: "payment", ID: "1234567890"},
		},
		{
			name: "topic and payment_id with hints",
			body: map[string]any{
				"topic":              "Payment",
				"event":              "payment.created",
				"payment_id":         float64(77),
				"external_reference": "ORD1",
				"data":               map[string]any{"preference_id": "pref-1"},
			},
			want: usecase.Notification{Type: "payment", Action: "payment.created", ID: "77", ExternalReference: "ORD1", PreferenceID: "pref-1"},
		},
		{
			name: "merchant order resource",
			body: map[string]any{"resource": "https://api.mercadolibre.com/merchant_orders/3210"},
			want: usecase.Notification{Type: "merchant_order", ID: "3210"},
		},
		{
			name: "payment resource",
			body: map[string]any{"resource": "https://api.mercadopago.com/v1/payments/55/"},
			want: usecase.Notification{Type: "payment", ID: "55"},
		},
		{
			name:  "query only ipn",
			query: url.Values{"topic": {"payment"}, "id": {"88"}},
			want:  usecase.Notification{Type: "payment", ID: "88"},
		},
		{
			name:  "query data.id",
			query: url.Values{"type": {"payment"}, "data.id": {"89"}},
			want:  usecase.Notification{Type: "payment", ID: "89"},
		},
		{
			name: "empty",
			want: usecase.Notification{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := usecase.ParseNotification(tt.body, tt.query)
			assert.Equal(t, tt.want, got)
		})
	}
}
