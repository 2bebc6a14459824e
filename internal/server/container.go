package server

import (
	"log/slog"

	"reconciler/internal/config"
	"reconciler/internal/infra/lock"
	"reconciler/internal/infra/mailer"
	"reconciler/internal/infra/mercadopago"
	infraRepo "reconciler/internal/infra/repository"
	"reconciler/internal/repository"
	"reconciler/internal/usecase"

	"gorm.io/gorm"
)

// API と照合CLI が共有する部品一式
type Container struct {
	Config    config.Config
	AuditLogs repository.AuditLogRepository
	Reconcile *usecase.PaymentReconcileUsecase
	Replay    *usecase.ReplayUsecase
}

// NewContainer はRepository → 外部クライアント → Usecase の順に組み立てる。
func NewContainer(cfg config.Config, gormDB *gorm.DB, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.Default()
	}
	clock := usecase.SystemClock()

	//Repository（GORM実装）
	orderRepo := infraRepo.NewOrderGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txm := infraRepo.NewTxManagerGorm(gormDB)

	//外部API
	mp := mercadopago.NewClient(mercadopago.Config{
		BaseURL:     cfg.MPAPIBaseURL,
		AccessToken: cfg.MPAccessToken,
		Timeout:     cfg.MPFetchTimeout,
	})
	mail := mailer.NewResendMailer(mailer.Config{
		APIKey:  cfg.ResendAPIKey,
		From:    cfg.FromEmailNoReply,
		ReplyTo: cfg.SupportEmail,
	})
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY is empty; order emails are disabled")
	}

	//Usecase
	ledger := usecase.NewInventoryLedger(txm, lock.NewKeyedMutex(), clock, logger)
	dispatcher := usecase.NewNotificationDispatcher(orderRepo, mail, lock.NewInFlight(cfg.EmailInFlightTTL), logger)
	reconcileUC := usecase.NewPaymentReconcileUsecase(txm, mp, ledger, dispatcher, clock, logger, usecase.ReconcileConfig{
		AmountEpsilon: cfg.AmountEpsilon,
		FetchTimeout:  cfg.MPFetchTimeout,
	})
	replayUC := usecase.NewReplayUsecase(reconcileUC, mp, orderRepo, cfg.ReconcileRatePerSec, clock, logger)

	return &Container{
		Config:    cfg,
		AuditLogs: auditRepo,
		Reconcile: reconcileUC,
		Replay:    replayUC,
	}
}
