package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"reconciler/internal/config"
	"reconciler/internal/domain/model"
	"reconciler/internal/middleware"
	"reconciler/internal/repository"
	"reconciler/internal/usecase"

	"github.com/labstack/echo/v4"
)

type Replayer interface {
	ReplayPayment(ctx context.Context, paymentID string) (usecase.Outcome, error)
	ReplayMerchantOrder(ctx context.Context, merchantOrderID string) (usecase.Outcome, error)
	ReplayOrderReference(ctx context.Context, ref string) (usecase.Outcome, error)
	Sweep(ctx context.Context, lookback time.Duration) (usecase.SweepReport, error)
}

// 管理者向けの照合API
type AdminReconcileHandler struct {
	replayer  Replayer
	auditLogs repository.AuditLogRepository
	lookback  time.Duration
}

func NewAdminReconcileHandler(replayer Replayer, auditLogs repository.AuditLogRepository, lookback time.Duration) *AdminReconcileHandler {
	return &AdminReconcileHandler{replayer: replayer, auditLogs: auditLogs, lookback: lookback}
}

type ReplayResponse struct {
	Ref     string          `json:"ref"`
	Outcome usecase.Outcome `json:"outcome"`
	Error   string          `json:"error,omitempty"`
}

func (h *AdminReconcileHandler) RegisterRoutes(e *echo.Echo, cfg config.Config) {
	admin := e.Group("/admin/reconcile")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.AdminRoleGuard())

	admin.POST("/payments/:id", h.replayPayment)
	admin.POST("/merchant-orders/:id", h.replayMerchantOrder)
	admin.POST("/orders/:ref", h.replayOrder)
	admin.POST("/sweep", h.sweep)
	admin.GET("/audit-logs", h.auditLogList)
}

func (h *AdminReconcileHandler) replayPayment(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}
	out, err := h.replayer.ReplayPayment(c.Request().Context(), id)
	return h.replayResult(c, id, out, err)
}

func (h *AdminReconcileHandler) replayMerchantOrder(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}
	out, err := h.replayer.ReplayMerchantOrder(c.Request().Context(), id)
	return h.replayResult(c, id, out, err)
}

func (h *AdminReconcileHandler) replayOrder(c echo.Context) error {
	ref := strings.TrimSpace(c.Param("ref"))
	out, err := h.replayer.ReplayOrderReference(c.Request().Context(), ref)
	return h.replayResult(c, ref, out, err)
}

// 照合結果は200で返す（errorのときだけ502）
func (h *AdminReconcileHandler) replayResult(c echo.Context, ref string, out usecase.Outcome, err error) error {
	if _, ok := usecase.AsHTTPError(err); ok {
		return writeError(c, err)
	}
	res := ReplayResponse{Ref: ref, Outcome: out}
	if err != nil {
		res.Error = err.Error()
	}
	if err != nil || !out.Acknowledge() {
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AdminReconcileHandler) sweep(c echo.Context) error {
	lookback := h.lookback
	if v := c.QueryParam("hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid hours"})
		}
		lookback = time.Duration(hours) * time.Hour
	}

	report, err := h.replayer.Sweep(c.Request().Context(), lookback)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// 決済ステータス変更・不一致の履歴
func (h *AdminReconcileHandler) auditLogList(c echo.Context) error {
	filter := repository.AuditLogFilter{
		Actions: []model.AuditAction{model.AuditActionUpdatePaymentStatus, model.AuditActionPaymentMismatch},
	}

	if v := c.QueryParam("action"); v != "" {
		a := model.AuditAction(strings.ToUpper(v))
		switch a {
		case model.AuditActionUpdatePaymentStatus, model.AuditActionPaymentMismatch:
		default:
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid action"})
		}
		filter.Actions = []model.AuditAction{a}
	}

	if v := c.QueryParam("order_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid order_id"})
		}
		filter.OrderID = &id
	}

	if v := c.QueryParam("from"); v != "" {
		tm, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from"})
		}
		filter.CreatedFrom = &tm
	}

	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		filter.Limit = l
	}

	logs, err := h.auditLogs.List(c.Request().Context(), filter)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, logs)
}
