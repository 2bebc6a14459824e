package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"reconciler/internal/config"
	"reconciler/internal/infra/db"
	infraRepo "reconciler/internal/infra/repository"
	"reconciler/internal/server"

	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	//.env は任意（本番は環境変数）
	if err := godotenv.Load(); err != nil {
		logger.Info(".env not loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config error", "error", err)
		os.Exit(1)
	}

	//DB接続
	gormDB, err := db.Connect(cfg)
	if err != nil {
		logger.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	if err := infraRepo.AutoMigrate(gormDB); err != nil {
		logger.Error("migrate failed", "error", err)
		os.Exit(1)
	}

	c := server.NewContainer(cfg, gormDB, logger)
	e := server.New(c, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//Server起動
	logger.Info("server starting", "port", cfg.Port)
	if err := server.Start(ctx, e, cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
