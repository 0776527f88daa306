package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/vbonduro/mealsnap/internal/domain"
	"github.com/vbonduro/mealsnap/internal/nutrition"
	"github.com/vbonduro/mealsnap/internal/service"
	"github.com/vbonduro/mealsnap/internal/vision"
)

var (
	faint  = color.New(color.Faint)
	bold   = color.New(color.Bold)
	header = color.New(color.FgCyan, color.Bold)
)

func formatMacros(carbs, protein, fat float64) string {
	return fmt.Sprintf("C %.1fg  P %.1fg  F %.1fg", carbs, protein, fat)
}

func formatConfidence(c float64) string {
	return fmt.Sprintf("%d%%", int(c*100+0.5))
}

func printEstimate(w io.Writer, est *vision.Estimate) {
	bold.Fprintf(w, "%s\n", est.Name)
	fmt.Fprintf(w, "  %.0f kcal  %s\n", est.Calories, formatMacros(est.Carbs, est.Protein, est.Fat))
	fmt.Fprintf(w, "  PFC %s  ", nutrition.PFCRatio(est.Carbs, est.Protein, est.Fat))
	faint.Fprintf(w, "confidence %s\n", formatConfidence(est.Confidence))
}

func printMeal(w io.Writer, m domain.MealRecord) {
	faint.Fprintf(w, "%s  ", m.Timestamp.Format("15:04"))
	fmt.Fprintf(w, "%s  %.0f kcal  %s  ", m.Name, m.Calories, formatMacros(m.Carbs, m.Protein, m.Fat))
	faint.Fprintf(w, "%s\n", m.ID)
}

func printDaySummary(w io.Writer, day service.DaySummary) {
	header.Fprintf(w, "%s\n", day.Date)
	for _, m := range day.Meals {
		fmt.Fprint(w, "  ")
		printMeal(w, m)
	}
	fmt.Fprintf(w, "  Total: %.0f kcal  %s  PFC %s\n",
		day.Totals.Calories, formatMacros(day.Totals.Carbs, day.Totals.Protein, day.Totals.Fat), day.Ratio)
}

func printMealDetail(w io.Writer, m domain.MealRecord) {
	bold.Fprintf(w, "%s\n", m.Name)
	fmt.Fprintf(w, "  ID:         %s\n", m.ID)
	fmt.Fprintf(w, "  Eaten:      %s\n", m.Timestamp.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  Calories:   %.0f kcal\n", m.Calories)
	fmt.Fprintf(w, "  Macros:     %s\n", formatMacros(m.Carbs, m.Protein, m.Fat))
	fmt.Fprintf(w, "  PFC:        %s\n", nutrition.PFCRatio(m.Carbs, m.Protein, m.Fat))
	fmt.Fprintf(w, "  Confidence: %s\n", formatConfidence(m.Confidence))
	if m.Image != "" {
		faint.Fprintln(w, "  Preview image stored")
	}
}
