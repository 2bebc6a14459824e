package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"reconciler/internal/domain/model"
	repo "reconciler/internal/repository"

	"golang.org/x/time/rate"
)

var numericRef = regexp.MustCompile(`^\d+$`)

// Webhook と同じ入口を持つもの
type TopicProcessor interface {
	ProcessTopic(ctx context.Context, topic string, id string) (Outcome, error)
}

// 照合ツール。取りこぼしたWebhookを同じ入口で再実行する。
type ReplayUsecase struct {
	processor TopicProcessor
	gateway   PaymentGateway
	orders    repo.OrderRepository
	limiter   *rate.Limiter
	clock     Clock
	logger    *slog.Logger
}

func NewReplayUsecase(
	processor TopicProcessor,
	gateway PaymentGateway,
	orders repo.OrderRepository,
	ratePerSec float64,
	clock Clock,
	logger *slog.Logger,
) *ReplayUsecase {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayUsecase{
		processor: processor,
		gateway:   gateway,
		orders:    orders,
		limiter:   rate.NewLimiter(rate.Limit(ratePerSec), 1),
		clock:     clock,
		logger:    logger,
	}
}

func (u *ReplayUsecase) ReplayPayment(ctx context.Context, paymentID string) (Outcome, error) {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		return OutcomeIgnored, NewHTTPError(http.StatusBadRequest, "payment id is required")
	}
	return u.processor.ProcessTopic(ctx, TopicPayment, id)
}

func (u *ReplayUsecase) ReplayMerchantOrder(ctx context.Context, merchantOrderID string) (Outcome, error) {
	id := strings.TrimSpace(merchantOrderID)
	if id == "" {
		return OutcomeIgnored, NewHTTPError(http.StatusBadRequest, "merchant order id is required")
	}
	return u.processor.ProcessTopic(ctx, TopicMerchantOrder, id)
}

// ReplayOrderReference は数字ならマーチャントオーダーID、
// それ以外は external_reference として検索してから再実行する。
func (u *ReplayUsecase) ReplayOrderReference(ctx context.Context, ref string) (Outcome, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return OutcomeIgnored, NewHTTPError(http.StatusBadRequest, "order reference is required")
	}
	if numericRef.MatchString(ref) {
		return u.processor.ProcessTopic(ctx, TopicMerchantOrder, ref)
	}
	return u.replayBySearch(ctx, ref)
}

func (u *ReplayUsecase) replayBySearch(ctx context.Context, externalReference string) (Outcome, error) {
	found, err := u.gateway.SearchMerchantOrders(ctx, externalReference)
	if err != nil {
		u.logger.Warn("merchant order search failed", "external_reference", externalReference, "err", err)
		return OutcomeError, fmt.Errorf("search merchant orders %s: %w", externalReference, err)
	}
	if len(found) == 0 || found[0].ID.String() == "" {
		u.logger.Info("merchant order not found", "external_reference", externalReference)
		return OutcomeNoOrder, nil
	}
	return u.processor.ProcessTopic(ctx, TopicMerchantOrder, found[0].ID.String())
}

type SweepFailure struct {
	OrderID int64   `json:"order_id"`
	Ref     string  `json:"ref"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

type SweepReport struct {
	From     time.Time       `json:"from"`
	Scanned  int             `json:"scanned"`
	Outcomes map[Outcome]int `json:"outcomes"`
	Failures []SweepFailure  `json:"failures"`
}

// Sweep は期間内の未確定注文をすべて照合し直す。
// 決済IDがあれば payment、無ければ参照で検索する。
func (u *ReplayUsecase) Sweep(ctx context.Context, lookback time.Duration) (SweepReport, error) {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	from := u.clock.Now().Add(-lookback)

	orders, err := u.orders.ListUnsettled(ctx, repo.ReconcileListFilter{CreatedFrom: from})
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{
		From:     from,
		Outcomes: map[Outcome]int{},
		Failures: []SweepFailure{},
	}
	for _, o := range orders {
		if err := u.limiter.Wait(ctx); err != nil {
			return report, err
		}
		report.Scanned++

		outcome, err := u.replayOrder(ctx, o)
		report.Outcomes[outcome]++
		if err != nil || (outcome != OutcomeOK && outcome != OutcomeIgnored) {
			f := SweepFailure{OrderID: o.ID, Ref: o.Ref(), Outcome: outcome}
			if err != nil {
				f.Error = err.Error()
			}
			report.Failures = append(report.Failures, f)
		}
	}

	u.logger.Info("reconcile sweep done",
		"from", from,
		"scanned", report.Scanned,
		"failures", len(report.Failures),
	)
	return report, nil
}

func (u *ReplayUsecase) replayOrder(ctx context.Context, o model.Order) (Outcome, error) {
	if id := strings.TrimSpace(o.PaymentID); id != "" {
		return u.processor.ProcessTopic(ctx, TopicPayment, id)
	}
	ref := firstNonEmpty(o.ExternalReference, o.OrderNumber)
	if ref == "" {
		return OutcomeNoOrder, nil
	}
	return u.replayBySearch(ctx, ref)
}
