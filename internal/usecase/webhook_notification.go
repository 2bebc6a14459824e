package usecase

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"reconciler/internal/domain/model"
)

const defaultPaymentAction = "payment.updated"

var validPaymentActions = map[string]bool{
	"payment.created": true,
	"payment.updated": true,
}

// 受信したWebhookの中身（保存しない）
type Notification struct {
	Type              string
	Action            string
	ID                string
	ExternalReference string
	PreferenceID      string
}

var resourceIDPattern = regexp.MustCompile(`(\d+)/?$`)

// ParseNotification はJSON/フォームの本文とクエリから通知を取り出す。
func ParseNotification(body map[string]any, query url.Values) Notification {
	if body == nil {
		body = map[string]any{}
	}
	data, _ := body["data"].(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	resource := model.Stringify(body["resource"])
	if resource == "" {
		resource = strings.TrimSpace(query.Get("resource"))
	}

	n := Notification{
		Type: firstNonEmpty(
			model.Stringify(body["type"]),
			model.Stringify(body["topic"]),
			query.Get("type"),
			query.Get("topic"),
			topicFromResource(resource),
		),
		Action: firstNonEmpty(
			model.Stringify(body["action"]),
			model.Stringify(body["event"]),
			query.Get("action"),
		),
		ID: firstNonEmpty(
			model.Stringify(data["id"]),
			model.Stringify(data["payment_id"]),
			model.Stringify(body["payment_id"]),
			idFromResource(resource),
			query.Get("data.id"),
			query.Get("id"),
			model.Stringify(body["id"]),
		),
		ExternalReference: firstNonEmpty(
			model.Stringify(data["external_reference"]),
			model.Stringify(body["external_reference"]),
		),
		PreferenceID: firstNonEmpty(
			model.Stringify(data["preference_id"]),
			model.Stringify(body["preference_id"]),
		),
	}
	n.Type = strings.ToLower(n.Type)
	n.Action = strings.ToLower(n.Action)
	return n
}

func topicFromResource(resource string) string {
	switch {
	case strings.Contains(resource, "/merchant_orders/"):
		return TopicMerchantOrder
	case strings.Contains(resource, "/payments/"):
		return TopicPayment
	default:
		return ""
	}
}

func idFromResource(resource string) string {
	m := resourceIDPattern.FindStringSubmatch(strings.TrimSpace(resource))
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// ProcessNotification はWebhookの入口。対象外の通知はignored。
func (u *PaymentReconcileUsecase) ProcessNotification(ctx context.Context, n Notification) (Outcome, error) {
	switch n.Type {
	case TopicPayment:
		action := n.Action
		if action == "" {
			action = defaultPaymentAction
		}
		if !validPaymentActions[action] {
			u.logger.Info("webhook ignored", "type", n.Type, "action", action)
			return OutcomeIgnored, nil
		}
		if n.ID == "" {
			u.logger.Warn("webhook missing payment id", "type", n.Type)
			return OutcomeIgnored, nil
		}
		return u.HandlePayment(ctx, n.ID, Hints{
			ExternalReference: n.ExternalReference,
			PreferenceID:      n.PreferenceID,
		})
	case TopicMerchantOrder:
		if n.ID == "" {
			u.logger.Warn("webhook missing merchant order id", "type", n.Type)
			return OutcomeIgnored, nil
		}
		return u.ProcessTopic(ctx, TopicMerchantOrder, n.ID)
	default:
		u.logger.Info("webhook ignored", "type", n.Type, "action", n.Action)
		return OutcomeIgnored, nil
	}
}
