package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reconciler/internal/handler"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// New はWebhookと管理APIのルートを持つechoを返す。
func New(c *Container, logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	handler.NewWebhookHandler(c.Reconcile, logger).RegisterRoutes(e)
	handler.NewAdminReconcileHandler(c.Replay, c.AuditLogs, c.Config.ReconcileLookback).RegisterRoutes(e, c.Config)

	return e
}

// Start はctxが終わるまで待ち、終わったらgraceful shutdownする。
func Start(ctx context.Context, e *echo.Echo, port string) error {
	addr := port
	if !strings.HasPrefix(addr, ":") {
		addr = ":" + addr
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
