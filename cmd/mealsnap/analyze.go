package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vbonduro/mealsnap/internal/service"
)

var analyzeSave bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Estimate the nutrition of a meal photo",
	Long: `Send a meal photo to the configured vision backend and print the estimate.

Examples:
  mealsnap analyze dinner.jpg
  mealsnap analyze dinner.jpg --save`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		encoded := base64.StdEncoding.EncodeToString(data)

		est, err := app.service.Analyze(cmd.Context(), encoded)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printEstimate(out, est)

		if !analyzeSave {
			return nil
		}
		rec, err := app.service.SaveMeal(cmd.Context(), service.SaveMealInput{
			Estimate: *est,
			Image:    encoded,
		})
		if err != nil {
			return fmt.Errorf("failed to save meal: %w", err)
		}
		color.New(color.FgGreen).Fprintf(out, "✓ Saved %s\n", rec.ID)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeSave, "save", false, "record the estimate as a meal")
	rootCmd.AddCommand(analyzeCmd)
}
