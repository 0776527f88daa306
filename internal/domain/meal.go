package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the calendar-date format used for MealRecord.Date. Lexical
// order of dates in this layout equals chronological order.
const DateLayout = "2006-01-02"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid input")

// MealRecord is one analyzed and user-confirmed meal.
type MealRecord struct {
	ID         string    `json:"id" validate:"required"`
	Date       string    `json:"date" validate:"required,datetime=2006-01-02"`
	Timestamp  time.Time `json:"timestamp" validate:"required"`
	Name       string    `json:"name" validate:"required"`
	Calories   float64   `json:"calories" validate:"gte=0"`
	Carbs      float64   `json:"carbs" validate:"gte=0"`
	Protein    float64   `json:"protein" validate:"gte=0"`
	Fat        float64   `json:"fat" validate:"gte=0"`
	Confidence float64   `json:"confidence" validate:"gte=0,lte=1"`
	Image      string    `json:"image,omitempty"`
}

// Nutrients is the nutrition payload shared by estimates and records.
type Nutrients struct {
	Name       string  `json:"name" validate:"required"`
	Calories   float64 `json:"calories" validate:"gte=0"`
	Protein    float64 `json:"protein" validate:"gte=0"`
	Fat        float64 `json:"fat" validate:"gte=0"`
	Carbs      float64 `json:"carbs" validate:"gte=0"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// NewMealRecord builds a record from a nutrition payload captured at
// capturedAt. Date is derived in loc so that it always agrees with Timestamp.
func NewMealRecord(id string, n Nutrients, capturedAt time.Time, loc *time.Location) MealRecord {
	if loc == nil {
		loc = time.Local
	}
	local := capturedAt.In(loc)
	return MealRecord{
		ID:         id,
		Date:       local.Format(DateLayout),
		Timestamp:  local,
		Name:       n.Name,
		Calories:   n.Calories,
		Carbs:      n.Carbs,
		Protein:    n.Protein,
		Fat:        n.Fat,
		Confidence: n.Confidence,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared struct validator.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateRecord checks field constraints and that Date names the same
// calendar day as Timestamp in loc.
func ValidateRecord(r MealRecord, loc *time.Location) error {
	if err := Validator().Struct(r); err != nil {
		return fmt.Errorf("%w: meal record: %w", ErrInvalid, err)
	}
	if loc == nil {
		loc = time.Local
	}
	if got := r.Timestamp.In(loc).Format(DateLayout); got != r.Date {
		return fmt.Errorf("%w: meal record date %s does not match timestamp day %s", ErrInvalid, r.Date, got)
	}
	return nil
}

// ValidateNutrients checks an estimate payload.
func ValidateNutrients(n Nutrients) error {
	if err := Validator().Struct(n); err != nil {
		return fmt.Errorf("%w: nutrition estimate: %w", ErrInvalid, err)
	}
	return nil
}
