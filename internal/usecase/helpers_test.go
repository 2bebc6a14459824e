package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"reconciler/internal/domain/model"
	"reconciler/internal/infra/lock"
	infraRepo "reconciler/internal/infra/repository"
	"reconciler/internal/testutil"
	"reconciler/internal/usecase"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// =====================
// Fakes（プロバイダ・メール）
// =====================

type fakeGateway struct {
	mu             sync.Mutex
	payments       map[string]model.Payment
	merchantOrders map[string]model.MerchantOrder
	searches       map[string][]model.MerchantOrder
	fetchErr       error
	fetches        int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		payments:       map[string]model.Payment{},
		merchantOrders: map[string]model.MerchantOrder{},
		searches:       map[string][]model.MerchantOrder{},
	}
}

func (g *fakeGateway) setPayment(p model.Payment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID.String()] = p
}

func (g *fakeGateway) FetchPayment(ctx context.Context, id string) (model.Payment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetches++
	if g.fetchErr != nil {
		return model.Payment{}, g.fetchErr
	}
	p, ok := g.payments[id]
	if !ok {
		return model.Payment{}, errors.New("payment not found at provider")
	}
	return p, nil
}

func (g *fakeGateway) FetchMerchantOrder(ctx context.Context, id string) (model.MerchantOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return model.MerchantOrder{}, g.fetchErr
	}
	mo, ok := g.merchantOrders[id]
	if !ok {
		return model.MerchantOrder{}, errors.New("merchant order not found at provider")
	}
	return mo, nil
}

func (g *fakeGateway) SearchMerchantOrders(ctx context.Context, ref string) ([]model.MerchantOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return g.searches[ref], nil
}

type sentMail struct {
	Flag    string
	To      string
	OrderID int64
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	fail  bool
	delay time.Duration
}

func (m *fakeMailer) HasTemplate(flag string) bool {
	switch flag {
	case model.EmailFlagConfirmed, model.EmailFlagPending, model.EmailFlagRejected:
		return true
	}
	return false
}

func (m *fakeMailer) Send(ctx context.Context, flag string, to string, order model.Order) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, sentMail{Flag: flag, To: to, OrderID: order.ID})
	return nil
}

func (m *fakeMailer) count(flag string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Flag == flag {
			n++
		}
	}
	return n
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =====================
// SQLiteで組み立てた照合エンジン
// =====================

type engine struct {
	db         *gorm.DB
	gateway    *fakeGateway
	mailer     *fakeMailer
	ledger     *usecase.InventoryLedger
	dispatcher *usecase.NotificationDispatcher
	reconcile  *usecase.PaymentReconcileUsecase
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	return newEngineOn(t, testutil.NewSQLite(t))
}

func newEngineOn(t *testing.T, gdb *gorm.DB) *engine {
	t.Helper()

	logger := discardLogger()
	clock := fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	tx := infraRepo.NewTxManagerGorm(gdb)
	orders := infraRepo.NewOrderGormRepository(gdb)
	gw := newFakeGateway()
	mailer := &fakeMailer{}

	ledger := usecase.NewInventoryLedger(tx, lock.NewKeyedMutex(), clock, logger)
	dispatcher := usecase.NewNotificationDispatcher(orders, mailer, lock.NewInFlight(time.Minute), logger)
	rec := usecase.NewPaymentReconcileUsecase(tx, gw, ledger, dispatcher, clock, logger, usecase.ReconcileConfig{
		AmountEpsilon: decimal.RequireFromString("0.01"),
		FetchTimeout:  time.Second,
	})

	return &engine{
		db:         gdb,
		gateway:    gw,
		mailer:     mailer,
		ledger:     ledger,
		dispatcher: dispatcher,
		reconcile:  rec,
	}
}

// 在庫 SKU1=10, SKU2=5、注文ORD1 = SKU1×2(100) + SKU2×1(50)
func (e *engine) seedScenarioOrder(t *testing.T) model.Order {
	t.Helper()

	testutil.SeedProduct(t, e.db, "SKU1", 10, "100")
	testutil.SeedProduct(t, e.db, "SKU2", 5, "50")
	return testutil.SeedOrder(t, e.db, model.Order{
		OrderNumber:   "ORD1",
		CustomerEmail: "cliente@example.com",
		CustomerName:  "Cliente",
		Currency:      "ARS",
	},
		model.OrderItem{SKU: "SKU1", Quantity: 2, UnitPrice: decimal.RequireFromString("100")},
		model.OrderItem{SKU: "SKU2", Quantity: 1, UnitPrice: decimal.RequireFromString("50")},
	)
}

func payment(id, status, extRef, amount, currency string) model.Payment {
	p := model.Payment{
		ID:                jsonNumber(id),
		Status:            status,
		ExternalReference: extRef,
		CurrencyID:        currency,
		Raw:               []byte(`{"id":` + id + `,"status":"` + status + `"}`),
	}
	if amount != "" {
		a := decimal.RequireFromString(amount)
		p.TransactionAmount = &a
	}
	return p
}

func jsonNumber(s string) json.Number { return json.Number(s) }
