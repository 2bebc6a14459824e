package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"reconciler/internal/usecase"

	"github.com/spf13/cobra"
)

type replayResult struct {
	Kind    string          `json:"kind"`
	Ref     string          `json:"ref"`
	Outcome usecase.Outcome `json:"outcome"`
	Error   string          `json:"error,omitempty"`
}

func replayCmd() *cobra.Command {
	var paymentID, merchantOrderID, orderRef string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay one payment, merchant order or order reference",
		Long: `Runs the same path as the webhook for a single id.
Exactly one of --payment, --merchant-order or --order is required.
--order accepts a numeric merchant order id or an external reference.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ref, err := pickReplayTarget(paymentID, merchantOrderID, orderRef)
			if err != nil {
				return err
			}

			c, err := loadContainer()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			var out usecase.Outcome
			switch kind {
			case "payment":
				out, err = c.Replay.ReplayPayment(ctx, ref)
			case "merchant_order":
				out, err = c.Replay.ReplayMerchantOrder(ctx, ref)
			default:
				out, err = c.Replay.ReplayOrderReference(ctx, ref)
			}

			res := replayResult{Kind: kind, Ref: ref, Outcome: out}
			if err != nil {
				res.Error = err.Error()
			}
			if encErr := printJSON(res); encErr != nil {
				return encErr
			}
			if err != nil || !out.Acknowledge() {
				return fmt.Errorf("replay %s %s: %s", kind, ref, out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&paymentID, "payment", "", "Payment id")
	cmd.Flags().StringVar(&merchantOrderID, "merchant-order", "", "Merchant order id")
	cmd.Flags().StringVar(&orderRef, "order", "", "Merchant order id or external reference")

	return cmd
}

func pickReplayTarget(paymentID, merchantOrderID, orderRef string) (string, string, error) {
	n := 0
	kind, ref := "", ""
	if paymentID != "" {
		n++
		kind, ref = "payment", paymentID
	}
	if merchantOrderID != "" {
		n++
		kind, ref = "merchant_order", merchantOrderID
	}
	if orderRef != "" {
		n++
		kind, ref = "order", orderRef
	}
	if n != 1 {
		return "", "", errors.New("specify exactly one of --payment, --merchant-order, --order")
	}
	return kind, ref, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
