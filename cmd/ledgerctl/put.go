package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/web3-frozen/wallet-telemetry/internal/ledger"
)

var putCmd = &cobra.Command{
	Use:   "put DATE VALUE",
	Short: "Set the total for a date (YYYY-MM-DD), replacing any existing value",
	Args:  cobra.ExactArgs(2),
	RunE:  runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	date := args[0]
	if err := ledger.ValidateDate(date); err != nil {
		return err
	}
	value, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}
	if value.IsNegative() {
		return fmt.Errorf("invalid value %q: must not be negative", args[1])
	}

	l := openLedger()
	if err := l.Put(cmd.Context(), date, value.Round(2)); err != nil {
		return fmt.Errorf("writing ledger: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", date, value.StringFixed(2), l.Path())
	return nil
}
