package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyDays int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show meals grouped by day, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyDays < 0 {
			return fmt.Errorf("--days must not be negative")
		}
		days, err := app.service.History(cmd.Context(), historyDays)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(days) == 0 {
			faint.Fprintln(out, "No meals recorded.")
			return nil
		}
		for i, day := range days {
			if i > 0 {
				fmt.Fprintln(out)
			}
			printDaySummary(out, day)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyDays, "days", "d", 0, "number of most recent days to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
