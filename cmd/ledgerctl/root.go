package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/web3-frozen/wallet-telemetry/internal/ledger"
)

var (
	ledgerPath string
	tzName     string
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Inspect and edit the daily totals ledger",
	Long: `ledgerctl reads and writes the JSON ledger of daily wallet totals used by
the telemetry bot. Run it against a copy or while the bot is stopped.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ledgerPath, "file", "stats.json", "ledger file")
	rootCmd.PersistentFlags().StringVar(&tzName, "tz", "Europe/Moscow", "timezone for month boundaries")
}

func openLedger() *ledger.FileLedger {
	return ledger.NewFileLedger(ledgerPath)
}

func location() (*time.Location, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", tzName, err)
	}
	return loc, nil
}
