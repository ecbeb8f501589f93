package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/wallet-telemetry/internal/ledger"
)

var asOfFlag string

var earningsCmd = &cobra.Command{
	Use:   "earnings",
	Short: "Show this month's and last month's earnings",
	Args:  cobra.NoArgs,
	RunE:  runEarnings,
}

func init() {
	earningsCmd.Flags().StringVar(&asOfFlag, "as-of", "", "reference date YYYY-MM-DD (default today)")
	rootCmd.AddCommand(earningsCmd)
}

func runEarnings(cmd *cobra.Command, args []string) error {
	loc, err := location()
	if err != nil {
		return err
	}
	asOf := time.Now().In(loc)
	if asOfFlag != "" {
		if asOf, err = time.ParseInLocation(ledger.DateLayout, asOfFlag, loc); err != nil {
			return fmt.Errorf("invalid --as-of %q: %w", asOfFlag, err)
		}
	}

	entries, err := openLedger().Entries(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "As of %s\n", asOf.Format(ledger.DateLayout))
	monthly, err := entries.MonthlyEarnings(asOf)
	printEarnings(out, "This month", monthly.StringFixed(2), err)
	previous, err := entries.PreviousMonthEarnings(asOf)
	printEarnings(out, "Last month ("+ledger.PreviousMonthKey(asOf)+")", previous.StringFixed(2), err)
	return nil
}

func printEarnings(out io.Writer, label, value string, err error) {
	switch {
	case errors.Is(err, ledger.ErrUnavailable):
		fmt.Fprintf(out, "%-22s  no data\n", label+":")
	case err != nil:
		fmt.Fprintf(out, "%-22s  error: %v\n", label+":", err)
	default:
		fmt.Fprintf(out, "%-22s  %s\n", label+":", value)
	}
}
