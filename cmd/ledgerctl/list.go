package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries in date order",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	entries, err := openLedger().Entries(cmd.Context())
	if err != nil {
		return fmt.Errorf("reading ledger: %w", err)
	}

	out := cmd.OutOrStdout()
	dates := entries.Dates()
	if len(dates) == 0 {
		fmt.Fprintf(out, "No entries in %s\n", ledgerPath)
		return nil
	}

	fmt.Fprintf(out, "%-12s  %16s\n", "Date", "Total")
	fmt.Fprintln(out, "------------------------------")
	for _, date := range dates {
		fmt.Fprintf(out, "%-12s  %16s\n", date, entries[date].StringFixed(2))
	}
	fmt.Fprintln(out, "------------------------------")
	fmt.Fprintf(out, "%d entries\n", len(dates))
	return nil
}
