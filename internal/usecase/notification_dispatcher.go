package usecase

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"reconciler/internal/domain/model"
	"reconciler/internal/domain/paystatus"
	repo "reconciler/internal/repository"
)

// 通知1回の結果（ログ・テスト用）
type NotifyResult string

const (
	NotifySent              NotifyResult = "sent"
	NotifyFailed            NotifyResult = "failed"
	NotifySkippedNoTemplate NotifyResult = "skipped:no-template"
	NotifySkippedSent       NotifyResult = "skipped:already-sent"
	NotifySkippedRedundant  NotifyResult = "skipped:redundant"
	NotifySkippedNoEmail    NotifyResult = "skipped:no-recipient"
	NotifySkippedInFlight   NotifyResult = "skipped:in-flight"
)

// 決済ステータス → メール種類（フラグ名）。返金・チャージバックはメール無し。
func emailFlagFor(s paystatus.Status) string {
	switch s {
	case paystatus.Approved:
		return model.EmailFlagConfirmed
	case paystatus.Pending:
		return model.EmailFlagPending
	case paystatus.Rejected:
		return model.EmailFlagRejected
	default:
		return ""
	}
}

// 注文×種類ごとに最大1通。保存済みフラグと送信中キーの2段で抑止する。
type NotificationDispatcher struct {
	orders   repo.OrderRepository
	notifier Notifier
	inflight InFlightRegistry
	logger   *slog.Logger
}

func NewNotificationDispatcher(orders repo.OrderRepository, notifier Notifier, inflight InFlightRegistry, logger *slog.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationDispatcher{orders: orders, notifier: notifier, inflight: inflight, logger: logger}
}

func (d *NotificationDispatcher) Notify(ctx context.Context, order model.Order, status paystatus.Status, paymentID string, previous paystatus.Status) NotifyResult {
	log := d.logger.With("order", order.Ref(), "status", string(status), "payment_id", paymentID)

	flag := emailFlagFor(status)
	if flag == "" || d.notifier == nil || !d.notifier.HasTemplate(flag) {
		log.Debug("email skipped", "reason", "no template")
		return NotifySkippedNoTemplate
	}
	if order.EmailSent(flag) {
		log.Debug("email skipped", "reason", "already sent", "flag", flag)
		return NotifySkippedSent
	}
	// 同じステータスの再通知は、前回失敗が記録されているときだけ送り直す。
	// 確認メールはフラグが未送信なら送る（コミット後・送信前に落ちた場合の取りこぼし）。
	if status == previous && !status.IsApproved() && !order.EmailFailed(flag) {
		log.Debug("email skipped", "reason", "redundant transition", "flag", flag)
		return NotifySkippedRedundant
	}
	if strings.TrimSpace(order.CustomerEmail) == "" {
		log.Info("email skipped", "reason", "no recipient", "flag", flag)
		return NotifySkippedNoEmail
	}

	key := inFlightKey(flag, paymentID, order.ID)
	if d.inflight != nil {
		if !d.inflight.TryAcquire(key) {
			log.Info("email skipped", "reason", "in flight", "key", key)
			return NotifySkippedInFlight
		}
		defer d.inflight.Release(key)
	}

	// 取得後に読み直す（並行した送信の書き込みを見る）
	current := order
	if fresh, err := d.orders.FindByID(ctx, order.ID); err == nil {
		current = fresh
	} else {
		log.Warn("email reload failed", "err", err)
	}
	if current.EmailSent(flag) {
		log.Debug("email skipped", "reason", "already sent", "flag", flag)
		return NotifySkippedSent
	}
	to := strings.TrimSpace(current.CustomerEmail)
	if to == "" {
		to = strings.TrimSpace(order.CustomerEmail)
	}

	if err := d.notifier.Send(ctx, flag, to, current); err != nil {
		log.Error("email send failed", "flag", flag, "err", err)
		if _, mErr := d.orders.MarkEmailFlag(ctx, order.ID, flag, false); mErr != nil {
			log.Error("email flag update failed", "flag", flag, "err", mErr)
		}
		return NotifyFailed
	}

	if _, err := d.orders.MarkEmailFlag(ctx, order.ID, flag, true); err != nil {
		log.Error("email flag update failed", "flag", flag, "err", err)
	}
	log.Info("email sent", "flag", flag)
	return NotifySent
}

// 確認メールは決済IDで、それ以外は種類+IDでまとめる。
func inFlightKey(flag, paymentID string, orderID int64) string {
	id := strings.TrimSpace(paymentID)
	if id == "" {
		id = strconv.FormatInt(orderID, 10)
	}
	if flag == model.EmailFlagConfirmed {
		return "confirm:" + id
	}
	return flag + ":" + id
}
