package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"reconciler/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// 本文の上限（1MB）
const maxWebhookBody = 1 << 20

type NotificationProcessor interface {
	ProcessNotification(ctx context.Context, n usecase.Notification) (usecase.Outcome, error)
}

// Mercado Pago からのWebhook受信
type WebhookHandler struct {
	processor NotificationProcessor
	logger    *slog.Logger
}

func NewWebhookHandler(processor NotificationProcessor, logger *slog.Logger) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{processor: processor, logger: logger}
}

type WebhookResponse struct {
	Status usecase.Outcome `json:"status"`
}

func (h *WebhookHandler) RegisterRoutes(e *echo.Echo) {
	for _, path := range []string{"/api/mercado-pago/webhook", "/api/webhooks/mp"} {
		e.POST(path, h.receive)
		e.GET(path, h.receive)
	}
}

func (h *WebhookHandler) receive(c echo.Context) error {
	req := c.Request()
	requestID := req.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = uuid.NewString()
	}

	body := readWebhookBody(req)
	n := usecase.ParseNotification(body, c.QueryParams())

	outcome, err := h.processor.ProcessNotification(req.Context(), n)
	if err != nil || !outcome.Acknowledge() {
		h.logger.Error("webhook failed",
			"request_id", requestID,
			"type", n.Type,
			"id", n.ID,
			"outcome", outcome,
			"error", err,
		)
		//プロバイダに再送させる
		return c.JSON(http.StatusInternalServerError, WebhookResponse{Status: usecase.OutcomeError})
	}

	h.logger.Info("webhook handled",
		"request_id", requestID,
		"type", n.Type,
		"id", n.ID,
		"outcome", outcome,
	)
	return c.JSON(http.StatusOK, WebhookResponse{Status: outcome})
}

// JSONかフォーム。壊れた本文は空として扱う（クエリだけで来ることもある）。
func readWebhookBody(req *http.Request) map[string]any {
	if req.Body == nil {
		return map[string]any{}
	}
	raw, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}
	}

	ct := strings.ToLower(req.Header.Get(echo.HeaderContentType))
	if strings.HasPrefix(ct, echo.MIMEApplicationForm) {
		return formToBody(raw)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		return map[string]any{}
	}
	return body
}

// "data.id=1" は data{"id":"1"} に入れる
func formToBody(raw []byte) map[string]any {
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return map[string]any{}
	}
	body := map[string]any{}
	data := map[string]any{}
	for k := range values {
		v := values.Get(k)
		if sub, ok := strings.CutPrefix(k, "data."); ok {
			data[sub] = v
			continue
		}
		body[k] = v
	}
	if len(data) > 0 {
		body["data"] = data
	}
	return body
}
