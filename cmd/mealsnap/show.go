package main

import (
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one meal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meal, err := app.service.GetMeal(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printMealDetail(cmd.OutOrStdout(), *meal)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
