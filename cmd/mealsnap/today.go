package main

import (
	"github.com/spf13/cobra"
)

var todayCmd = &cobra.Command{
	Use:   "today",
	Short: "Show today's meals and PFC balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := app.service.TodaySummary(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(summary.Meals) == 0 {
			faint.Fprintln(out, "No meals recorded today.")
			return nil
		}
		printDaySummary(out, *summary)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(todayCmd)
}
