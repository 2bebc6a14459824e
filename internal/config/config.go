package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // 指定があればPOSTGRES_*より優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）

	JWTSecret string // 管理API用JWT署名シークレット

	MPAccessToken  string        // Mercado Pagoのアクセストークン
	MPAPIBaseURL   string        // https://api.mercadopago.com
	MPFetchTimeout time.Duration // 決済取得のタイムアウト

	AmountEpsilon       decimal.Decimal // 金額一致の許容差（0.01）
	ReconcileLookback   time.Duration   // 照合の対象期間（24h）
	ReconcileRatePerSec float64         // 照合時のAPI呼び出し上限
	EmailInFlightTTL    time.Duration   // 送信中キーの有効期限
	ResendAPIKey        string          // 空ならメール送信しない
	FromEmailNoReply    string
	SupportEmail        string
}

const (
	defaultPort           = "8080"
	defaultMPAPIBaseURL   = "https://api.mercadopago.com"
	defaultMPFetchTimeout = 10 * time.Second
	defaultAmountEpsilon  = "0.01"
	defaultLookbackHours  = 24
	defaultRatePerSec     = 5.0
	defaultEmailInFlight  = 2 * time.Minute
	defaultFromEmail      = "no-reply@example.com"
)

// Loadは環境変数
func Load() (Config, error) {
	pgPort, err := atoiOr("POSTGRES_PORT", 5432)
	if err != nil {
		return Config{}, err
	}
	timeout, err := durationOr("MP_FETCH_TIMEOUT", defaultMPFetchTimeout)
	if err != nil {
		return Config{}, err
	}
	ttl, err := durationOr("EMAIL_INFLIGHT_TTL", defaultEmailInFlight)
	if err != nil {
		return Config{}, err
	}
	lookbackHours, err := atoiOr("RECONCILE_LOOKBACK_HOURS", defaultLookbackHours)
	if err != nil {
		return Config{}, err
	}
	rate, err := floatOr("RECONCILE_RATE_PER_SEC", defaultRatePerSec)
	if err != nil {
		return Config{}, err
	}
	eps, err := decimal.NewFromString(getenvOr("AMOUNT_EPSILON", defaultAmountEpsilon))
	if err != nil {
		return Config{}, fmt.Errorf("AMOUNT_EPSILON must be decimal: %w", err)
	}

	cfg := Config{
		Port: getenvOr("PORT", defaultPort),

		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     pgPort,

		JWTSecret: os.Getenv("JWT_SECRET"),

		MPAccessToken:  os.Getenv("MP_ACCESS_TOKEN"),
		MPAPIBaseURL:   getenvOr("MP_API_BASE_URL", defaultMPAPIBaseURL),
		MPFetchTimeout: timeout,

		AmountEpsilon:       eps,
		ReconcileLookback:   time.Duration(lookbackHours) * time.Hour,
		ReconcileRatePerSec: rate,
		EmailInFlightTTL:    ttl,
		ResendAPIKey:        os.Getenv("RESEND_API_KEY"),
		FromEmailNoReply:    getenvOr("FROM_EMAIL_NO_REPLY", defaultFromEmail),
		SupportEmail:        os.Getenv("SUPPORT_EMAIL"),
	}

	//必須チェック
	if cfg.DatabaseURL == "" {
		if cfg.PostgresUser == "" {
			return Config{}, fmt.Errorf("POSTGRES_USER is required")
		}
		if cfg.PostgresDB == "" {
			return Config{}, fmt.Errorf("POSTGRES_DB is required")
		}
		if cfg.PostgresHost == "" {
			return Config{}, fmt.Errorf("POSTGRES_HOST is required")
		}
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MPAccessToken == "" {
		return Config{}, fmt.Errorf("MP_ACCESS_TOKEN is required")
	}
	if cfg.AmountEpsilon.IsNegative() {
		return Config{}, fmt.Errorf("AMOUNT_EPSILON must be >= 0")
	}
	if cfg.ReconcileRatePerSec <= 0 {
		return Config{}, fmt.Errorf("RECONCILE_RATE_PER_SEC must be > 0")
	}

	return cfg, nil
}

func getenvOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiOr(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func floatOr(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return f, nil
}

// "10s" の形式。数字だけなら秒。
func durationOr(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be duration: %w", key, err)
	}
	return d, nil
}
