package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reconciler/internal/domain/model"

	"github.com/go-resty/resty/v2"
)

// APIError はプロバイダが2xx以外を返したときのエラー。
type APIError struct {
	StatusCode int
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mercadopago %s: status %d: %s", e.Path, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

// Client はMercado Pago APIのうち照合に必要な読み取りだけを持つ。
type Client struct {
	http *resty.Client
}

func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.mercadopago.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetAuthToken(cfg.AccessToken).
		SetHeader("Accept", "application/json")

	return &Client{http: c}
}

// FetchPayment は GET /v1/payments/{id}
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (model.Payment, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return model.Payment{}, fmt.Errorf("mercadopago: empty payment id")
	}

	body, err := c.get(ctx, "/v1/payments/{id}", map[string]string{"id": id}, nil)
	if err != nil {
		return model.Payment{}, err
	}

	var p model.Payment
	if err := json.Unmarshal(body, &p); err != nil {
		return model.Payment{}, fmt.Errorf("mercadopago: decode payment %s: %w", id, err)
	}
	p.Raw = body
	return p, nil
}

// FetchMerchantOrder は GET /merchant_orders/{id}
func (c *Client) FetchMerchantOrder(ctx context.Context, merchantOrderID string) (model.MerchantOrder, error) {
	id := strings.TrimSpace(merchantOrderID)
	if id == "" {
		return model.MerchantOrder{}, fmt.Errorf("mercadopago: empty merchant order id")
	}

	body, err := c.get(ctx, "/merchant_orders/{id}", map[string]string{"id": id}, nil)
	if err != nil {
		return model.MerchantOrder{}, err
	}

	var mo model.MerchantOrder
	if err := json.Unmarshal(body, &mo); err != nil {
		return model.MerchantOrder{}, fmt.Errorf("mercadopago: decode merchant order %s: %w", id, err)
	}
	return mo, nil
}

type merchantOrderSearch struct {
	Elements []model.MerchantOrder `json:"elements"`
}

// SearchMerchantOrders は external_reference でマーチャントオーダーを探す（照合ツール用）。
func (c *Client) SearchMerchantOrders(ctx context.Context, externalReference string) ([]model.MerchantOrder, error) {
	ref := strings.TrimSpace(externalReference)
	if ref == "" {
		return []model.MerchantOrder{}, nil
	}

	body, err := c.get(ctx, "/merchant_orders/search", nil, map[string]string{"external_reference": ref})
	if err != nil {
		return nil, err
	}

	var res merchantOrderSearch
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("mercadopago: decode merchant order search: %w", err)
	}
	if res.Elements == nil {
		return []model.MerchantOrder{}, nil
	}
	return res.Elements, nil
}

func (c *Client) get(ctx context.Context, path string, pathParams, query map[string]string) ([]byte, error) {
	req := c.http.R().SetContext(ctx)
	if pathParams != nil {
		req.SetPathParams(pathParams)
	}
	if query != nil {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("mercadopago %s: %w", path, err)
	}
	if resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode(),
			Path:       resp.Request.URL,
			Body:       truncate(string(resp.Body()), 256),
		}
	}
	return resp.Body(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
