package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"reconciler/internal/domain/model"
	"reconciler/internal/domain/paystatus"
	repo "reconciler/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// 照合1回の結果。error以外はプロバイダに200で返す。
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeNoOrder          Outcome = "no-order"
	OutcomeError            Outcome = "error"
	OutcomeAmountMismatch   Outcome = "amount-mismatch"
	OutcomeCurrencyMismatch Outcome = "currency-mismatch"
	OutcomeAmbiguousOrder   Outcome = "ambiguous-order"
)

// Acknowledge はプロバイダに成功を返してよいか。
func (o Outcome) Acknowledge() bool {
	return o != OutcomeError
}

const (
	TopicPayment       = "payment"
	TopicMerchantOrder = "merchant_order"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultAmountEps    = "0.01"
)

// プロバイダ側の参照（決済自体に無いときの補助）
type Hints struct {
	ExternalReference string
	PreferenceID      string
}

// 通知の送り先
type OrderNotifier interface {
	Notify(ctx context.Context, order model.Order, status paystatus.Status, paymentID string, previous paystatus.Status) NotifyResult
}

type ReconcileConfig struct {
	AmountEpsilon decimal.Decimal
	FetchTimeout  time.Duration
}

type PaymentReconcileUsecase struct {
	tx       repo.TransactionManager
	gateway  PaymentGateway
	ledger   *InventoryLedger
	notifier OrderNotifier
	clock    Clock
	logger   *slog.Logger
	tracer   trace.Tracer

	epsilon      decimal.Decimal
	fetchTimeout time.Duration
}

func NewPaymentReconcileUsecase(
	tx repo.TransactionManager,
	gateway PaymentGateway,
	ledger *InventoryLedger,
	notifier OrderNotifier,
	clock Clock,
	logger *slog.Logger,
	cfg ReconcileConfig,
) *PaymentReconcileUsecase {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	// 0は完全一致
	eps := cfg.AmountEpsilon
	if eps.IsNegative() {
		eps = decimal.RequireFromString(defaultAmountEps)
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &PaymentReconcileUsecase{
		tx:           tx,
		gateway:      gateway,
		ledger:       ledger,
		notifier:     notifier,
		clock:        clock,
		logger:       logger,
		tracer:       otel.Tracer("reconciler/payment"),
		epsilon:      eps,
		fetchTimeout: timeout,
	}
}

// Tx内の判断結果
type reconcileResult struct {
	outcome  Outcome
	order    model.Order
	previous paystatus.Status
	notify   bool
}

// HandlePayment はプロバイダから決済を取り直し、注文・在庫・通知を一致させる。
// 同じ入力で何度呼んでも結果は同じ。
func (u *PaymentReconcileUsecase) HandlePayment(ctx context.Context, paymentID string, hints Hints) (out Outcome, err error) {
	ctx, span := u.tracer.Start(ctx, "reconcile.HandlePayment",
		trace.WithAttributes(attribute.String("payment.id", paymentID)))
	defer func() {
		span.SetAttributes(attribute.String("reconcile.outcome", string(out)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	id := strings.TrimSpace(paymentID)
	if id == "" {
		return OutcomeIgnored, nil
	}

	//1. 決済を取得（タイムアウト付き・リトライしない）
	fetchCtx, cancel := context.WithTimeout(ctx, u.fetchTimeout)
	payment, err := u.gateway.FetchPayment(fetchCtx, id)
	cancel()
	if err != nil {
		u.logger.Warn("payment fetch failed", "payment_id", id, "err", err)
		return OutcomeError, fmt.Errorf("fetch payment %s: %w", id, err)
	}

	//2. 正規化
	next := paystatus.Normalize(payment.Status)
	span.SetAttributes(attribute.String("payment.status", string(next)))

	ids := Identifiers{
		PaymentID:         id,
		PreferenceID:      firstNonEmpty(payment.PreferenceID, hints.PreferenceID),
		ExternalReference: firstNonEmpty(payment.ExternalReference, hints.ExternalReference, payment.MetadataString("order_id")),
	}

	//3. 注文を特定
	var found model.Order
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var err error
		found, err = ResolveOrder(ctx, r.Orders(), ids)
		return err
	})

	var res reconcileResult
	if err == nil {
		// 同じ注文の照合はコミットまで1件ずつ
		unlock := u.ledger.LockOrder(found.ID)
		err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			var err error
			res, err = u.reconcileWithin(ctx, r, found.ID, id, next, payment)
			return err
		})
		unlock()
	}

	switch {
	case errors.Is(err, repo.ErrNotFound):
		u.logger.Warn("payment order not found",
			"payment_id", id,
			"external_reference", ids.ExternalReference,
			"preference_id", ids.PreferenceID,
		)
		return OutcomeNoOrder, nil
	case errors.Is(err, ErrAmbiguousOrder):
		u.logger.Error("payment order ambiguous", "payment_id", id, "err", err)
		return OutcomeAmbiguousOrder, nil
	case errors.Is(err, ErrOrderWithoutItems):
		u.logger.Warn("payment order missing items", "payment_id", id)
		return OutcomeNoOrder, nil
	case err != nil:
		u.logger.Error("payment reconcile failed", "payment_id", id, "err", err)
		return OutcomeError, err
	}

	if res.notify && u.notifier != nil {
		// 送信の成否は結果に影響させない
		u.notifier.Notify(ctx, res.order, next, id, res.previous)
	}

	u.logger.Info("payment reconciled",
		"payment_id", id,
		"order", res.order.Ref(),
		"status", string(next),
		"previous", string(res.previous),
		"outcome", string(res.outcome),
	)
	return res.outcome, nil
}

func (u *PaymentReconcileUsecase) reconcileWithin(
	ctx context.Context,
	r repo.TxRepos,
	orderID int64,
	paymentID string,
	next paystatus.Status,
	payment model.Payment,
) (reconcileResult, error) {
	//4. 行ロックして現在の状態を読む
	order, err := r.Orders().FindByIDForUpdate(ctx, orderID)
	if err != nil {
		return reconcileResult{}, err
	}
	items, err := r.OrderItems().ListByOrderID(ctx, order.ID)
	if err != nil {
		return reconcileResult{}, err
	}

	prev := previousStatus(order)
	res := reconcileResult{outcome: OutcomeOK, order: order, previous: prev}

	if isStale(order, prev, next, paymentID) {
		u.logger.Info("payment update stale",
			"payment_id", paymentID,
			"order", order.Ref(),
			"previous", string(prev),
			"status", string(next),
		)
		res.outcome = OutcomeIgnored
		return res, nil
	}

	//5. 在庫の判断
	apply := next.IsApproved() && !order.InventoryApplied
	revert := next.IsReversal() && order.InventoryApplied
	if apply && len(items) == 0 {
		return reconcileResult{}, ErrOrderWithoutItems
	}

	//6. 金額・通貨の確認（変更の前に）
	if outcome, detail := u.checkFinancials(order, items, payment); outcome != OutcomeOK {
		u.logger.Warn("payment financial mismatch",
			"payment_id", paymentID,
			"order", order.Ref(),
			"outcome", string(outcome),
			"detail", detail,
		)
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  model.SystemActorID,
			Action:       model.AuditActionPaymentMismatch,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   order.ID,
			BeforeJSON:   statusJSON(order),
			AfterJSON:    detail,
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return reconcileResult{}, err
		}
		res.outcome = outcome
		return res, nil
	}

	before := order
	switch {
	case apply:
		if _, err := u.ledger.ApplyWithin(ctx, r, &order, items); err != nil {
			return reconcileResult{}, err
		}
	case revert:
		if _, err := u.ledger.RevertWithin(ctx, r, &order, items); err != nil {
			return reconcileResult{}, err
		}
	}

	//7. 注文を1回で保存
	u.patchOrder(&order, paymentID, next, payment)
	saved, err := r.Orders().Update(ctx, order)
	if err != nil {
		return reconcileResult{}, err
	}

	if before.PaymentStatusCode != saved.PaymentStatusCode || before.InventoryApplied != saved.InventoryApplied {
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  model.SystemActorID,
			Action:       model.AuditActionUpdatePaymentStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   saved.ID,
			BeforeJSON:   statusJSON(before),
			AfterJSON:    statusJSON(saved),
			CreatedAt:    u.clock.Now(),
		}); err != nil {
			return reconcileResult{}, err
		}
	}

	res.order = saved
	res.notify = true
	return res, nil
}

// previousStatus は保存済みの決済ステータス。
// コードが空なら表示ラベル、旧ステータスの順で推定する。不明なら空。
func previousStatus(o model.Order) paystatus.Status {
	if c := strings.TrimSpace(o.PaymentStatusCode); c != "" {
		return paystatus.Normalize(c)
	}
	if l := strings.TrimSpace(o.PaymentStatus); l != "" {
		return paystatus.Normalize(l)
	}
	if o.Status == model.OrderStatusPaid || o.Status == model.OrderStatusShipped {
		return paystatus.Approved
	}
	return ""
}

// isStale は古い通知で状態を戻そうとしているか。
// 確定済みからpendingへは戻さない（拒否後の別決済は除く）。
// 同じ決済の返金・チャージバック後の承認も受けない。
func isStale(o model.Order, prev, next paystatus.Status, paymentID string) bool {
	if next == paystatus.Pending && prev.IsSettled() {
		return !(prev == paystatus.Rejected && o.PaymentID != paymentID)
	}
	if next.IsApproved() && (prev == paystatus.Refunded || prev == paystatus.ChargedBack) && o.PaymentID == paymentID {
		return true
	}
	return false
}

// checkFinancials は金額（許容差付き）と通貨を比べる。
func (u *PaymentReconcileUsecase) checkFinancials(o model.Order, items []model.OrderItem, p model.Payment) (Outcome, string) {
	if amount, ok := p.Amount(); ok {
		expected := orderTotal(o, items)
		if expected.IsPositive() && amount.Sub(expected).Abs().GreaterThan(u.epsilon) {
			return OutcomeAmountMismatch, mismatchJSON("amount", expected.String(), amount.String())
		}
	}

	cur := p.Currency()
	if cur != "" && o.Currency != "" && !strings.EqualFold(cur, o.Currency) {
		return OutcomeCurrencyMismatch, mismatchJSON("currency", o.Currency, cur)
	}
	return OutcomeOK, ""
}

// orderTotal は保存済みの合計。無ければ明細から計算する。
func orderTotal(o model.Order, items []model.OrderItem) decimal.Decimal {
	if o.TotalAmount.IsPositive() {
		return o.TotalAmount
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

func (u *PaymentReconcileUsecase) patchOrder(o *model.Order, paymentID string, next paystatus.Status, p model.Payment) {
	o.PaymentID = paymentID
	if o.PreferenceID == "" {
		o.PreferenceID = strings.TrimSpace(p.PreferenceID)
	}
	if o.ExternalReference == "" {
		o.ExternalReference = strings.TrimSpace(p.ExternalReference)
	}
	if o.CustomerEmail == "" {
		o.CustomerEmail = strings.TrimSpace(p.Payer.Email)
	}
	if o.Currency == "" {
		o.Currency = p.Currency()
	}

	o.PaymentStatusCode = string(next)
	o.PaymentStatus = next.Label()

	switch {
	case next.IsApproved():
		if o.Status != model.OrderStatusShipped {
			o.Status = model.OrderStatusPaid
		}
		if o.PaidAt == nil {
			now := u.clock.Now()
			o.PaidAt = &now
			if amount, ok := p.Amount(); ok {
				o.PaidAmount = decimal.NewNullDecimal(amount)
			}
			o.PaidCurrency = p.Currency()
		}
	case next == paystatus.Rejected:
		// 未払いの拒否は再決済できるのでPENDINGのまま
		if o.Status == model.OrderStatusPaid {
			o.Status = model.OrderStatusCanceled
		}
	case next.IsReversal():
		o.Status = model.OrderStatusCanceled
	}

	if len(p.Raw) > 0 {
		o.ProviderPayload = string(p.Raw)
	}
}

// ProcessTopic は topic + id の組で照合する（Webhook・照合ツール共通の入口）。
func (u *PaymentReconcileUsecase) ProcessTopic(ctx context.Context, topic string, id string) (Outcome, error) {
	id = strings.TrimSpace(id)
	switch strings.ToLower(strings.TrimSpace(topic)) {
	case TopicPayment:
		return u.HandlePayment(ctx, id, Hints{})
	case TopicMerchantOrder:
		return u.handleMerchantOrder(ctx, id)
	default:
		u.logger.Info("topic ignored", "topic", topic, "id", id)
		return OutcomeIgnored, nil
	}
}

func (u *PaymentReconcileUsecase) handleMerchantOrder(ctx context.Context, merchantOrderID string) (Outcome, error) {
	if merchantOrderID == "" {
		return OutcomeIgnored, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, u.fetchTimeout)
	mo, err := u.gateway.FetchMerchantOrder(fetchCtx, merchantOrderID)
	cancel()
	if err != nil {
		u.logger.Warn("merchant order fetch failed", "merchant_order_id", merchantOrderID, "err", err)
		return OutcomeError, fmt.Errorf("fetch merchant order %s: %w", merchantOrderID, err)
	}

	paymentID := pickMerchantOrderPayment(mo)
	if paymentID == "" {
		u.logger.Info("merchant order without payments", "merchant_order_id", merchantOrderID)
		return OutcomeIgnored, nil
	}

	return u.HandlePayment(ctx, paymentID, Hints{
		ExternalReference: mo.ExternalReference,
		PreferenceID:      mo.PreferenceID,
	})
}

// 承認済みの決済を優先、無ければ最後の決済。
func pickMerchantOrderPayment(mo model.MerchantOrder) string {
	last := ""
	for _, p := range mo.Payments {
		id := strings.TrimSpace(p.ID.String())
		if id == "" {
			continue
		}
		if paystatus.Normalize(p.Status).IsApproved() {
			return id
		}
		last = id
	}
	return last
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func statusJSON(o model.Order) string {
	b, _ := json.Marshal(map[string]interface{}{
		"status":              o.Status,
		"payment_status_code": o.PaymentStatusCode,
		"payment_id":          o.PaymentID,
		"inventory_applied":   o.InventoryApplied,
	})
	return string(b)
}

func mismatchJSON(field, expected, got string) string {
	b, _ := json.Marshal(map[string]string{
		"field":    field,
		"expected": expected,
		"got":      got,
	})
	return string(b)
}
