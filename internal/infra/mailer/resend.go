package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reconciler/internal/domain/model"

	"github.com/go-resty/resty/v2"
)

var ErrNotConfigured = errors.New("email service not configured")

const defaultResendURL = "https://api.resend.com"

type Config struct {
	APIKey  string
	BaseURL string
	From    string
	ReplyTo string
	Timeout time.Duration
}

// ResendMailer はResendのHTTP APIでメールを送る。
type ResendMailer struct {
	http *resty.Client
	cfg  Config
}

func NewResendMailer(cfg Config) *ResendMailer {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultResendURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &ResendMailer{http: c, cfg: cfg}
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

// HasTemplate はその種類のメールがあるか。
func (m *ResendMailer) HasTemplate(flag string) bool {
	_, ok := templates[flag]
	return ok
}

func (m *ResendMailer) Send(ctx context.Context, flag string, to string, order model.Order) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return fmt.Errorf("mailer: empty recipient")
	}
	if m.cfg.APIKey == "" {
		return ErrNotConfigured
	}
	if m.cfg.From == "" {
		return fmt.Errorf("mailer: FROM_EMAIL not configured")
	}

	subject, html, ok, err := render(flag, order, m.cfg.ReplyTo)
	if err != nil {
		return fmt.Errorf("mailer: render %s: %w", flag, err)
	}
	if !ok {
		return fmt.Errorf("mailer: no template for %s", flag)
	}

	resp, err := m.http.R().
		SetContext(ctx).
		SetBody(sendRequest{
			From:    m.cfg.From,
			To:      []string{to},
			Subject: subject,
			HTML:    html,
			ReplyTo: m.cfg.ReplyTo,
		}).
		Post("/emails")
	if err != nil {
		return fmt.Errorf("mailer: send %s: %w", flag, err)
	}
	if resp.IsError() {
		return fmt.Errorf("mailer: send %s: status %d: %s", flag, resp.StatusCode(), resp.String())
	}
	return nil
}
