package photostore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no photo is stored for a meal.
var ErrNotFound = errors.New("photo not found")

// PhotoStore keeps the original image of a saved meal, keyed by meal id.
// Saving again under the same id replaces the previous photo.
type PhotoStore interface {
	Save(ctx context.Context, mealID, mimeType string, r io.Reader) error
	Get(ctx context.Context, mealID string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, mealID string) error
}
