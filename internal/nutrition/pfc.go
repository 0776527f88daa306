package nutrition

import (
	"fmt"
	"math"

	"github.com/vbonduro/mealsnap/internal/domain"
)

// Energy density of each macronutrient in kcal per gram.
const (
	KcalPerGramCarbs   = 4
	KcalPerGramProtein = 4
	KcalPerGramFat     = 9
)

// Ratio is the percentage split of macronutrient calories. Shares are
// rounded independently, so they may not sum to exactly 100.
type Ratio struct {
	Carbs   int `json:"carbs"`
	Protein int `json:"protein"`
	Fat     int `json:"fat"`
}

// String formats the ratio as carbs:protein:fat.
func (r Ratio) String() string {
	return fmt.Sprintf("%d:%d:%d", r.Carbs, r.Protein, r.Fat)
}

// PFCRatio returns the calorie-weighted macronutrient split for the given
// gram amounts. A zero total yields 0:0:0.
func PFCRatio(carbs, protein, fat float64) Ratio {
	carbsKcal := carbs * KcalPerGramCarbs
	proteinKcal := protein * KcalPerGramProtein
	fatKcal := fat * KcalPerGramFat
	total := carbsKcal + proteinKcal + fatKcal
	if total <= 0 {
		return Ratio{}
	}
	return Ratio{
		Carbs:   percent(carbsKcal, total),
		Protein: percent(proteinKcal, total),
		Fat:     percent(fatKcal, total),
	}
}

// ShareOfCalories returns the percentage of calories contributed by grams
// of a macronutrient with the given energy density, relative to the stated
// meal calories rather than the macro total.
func ShareOfCalories(grams, kcalPerGram, calories float64) int {
	if calories <= 0 {
		return 0
	}
	return percent(grams*kcalPerGram, calories)
}

func percent(part, total float64) int {
	return int(math.Round(part / total * 100))
}

// Totals is the summed nutrition of a set of meals.
type Totals struct {
	Meals    int     `json:"meals"`
	Calories float64 `json:"calories"`
	Carbs    float64 `json:"carbs"`
	Protein  float64 `json:"protein"`
	Fat      float64 `json:"fat"`
}

// Ratio returns the PFC split of the totals.
func (t Totals) Ratio() Ratio {
	return PFCRatio(t.Carbs, t.Protein, t.Fat)
}

// Sum adds up the nutrition of records.
func Sum(records []domain.MealRecord) Totals {
	t := Totals{Meals: len(records)}
	for _, r := range records {
		t.Calories += r.Calories
		t.Carbs += r.Carbs
		t.Protein += r.Protein
		t.Fat += r.Fat
	}
	return t
}
