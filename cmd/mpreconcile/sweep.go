package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile every unsettled order created in the last N hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadContainer()
			if err != nil {
				return err
			}

			lookback := c.Config.ReconcileLookback
			if cmd.Flags().Changed("hours") {
				if hours <= 0 {
					return fmt.Errorf("--hours must be > 0")
				}
				lookback = time.Duration(hours) * time.Hour
			}

			report, err := c.Replay.Sweep(cmd.Context(), lookback)
			if encErr := printJSON(report); encErr != nil {
				return encErr
			}
			if err != nil {
				return err
			}
			if len(report.Failures) > 0 {
				return fmt.Errorf("%d of %d orders need attention", len(report.Failures), report.Scanned)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 24, "Lookback window in hours")

	return cmd
}
