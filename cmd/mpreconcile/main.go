package main

import (
	"fmt"
	"log/slog"
	"os"

	"reconciler/internal/config"
	"reconciler/internal/infra/db"
	"reconciler/internal/server"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "mpreconcile",
		Short:         "Replay Mercado Pago notifications and reconcile pending orders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(replayCmd())
	rootCmd.AddCommand(sweepCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// 設定とDBから照合用の部品を組む。ログはstderr（stdoutは結果のJSON）。
func loadContainer() (*server.Container, error) {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	return server.NewContainer(cfg, gormDB, logger), nil
}
