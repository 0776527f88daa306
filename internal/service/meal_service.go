package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vbonduro/mealsnap/internal/domain"
	"github.com/vbonduro/mealsnap/internal/imagedata"
	"github.com/vbonduro/mealsnap/internal/nutrition"
	"github.com/vbonduro/mealsnap/internal/photostore"
	"github.com/vbonduro/mealsnap/internal/store"
	"github.com/vbonduro/mealsnap/internal/vision"
)

var (
	ErrMealNotFound = errors.New("meal not found")
	ErrInvalidImage = fmt.Errorf("%w: meal image", domain.ErrInvalid)
)

// mealRepository is the subset of store.MealStore that MealService requires.
type mealRepository interface {
	Save(ctx context.Context, rec domain.MealRecord) error
	All(ctx context.Context) ([]domain.MealRecord, error)
	Today(ctx context.Context) ([]domain.MealRecord, error)
	GroupedByDate(ctx context.Context) (map[string][]domain.MealRecord, error)
	GetByID(ctx context.Context, id string) (*domain.MealRecord, error)
	DeleteByID(ctx context.Context, id string) error
	ClearAll(ctx context.Context) error
	Location() *time.Location
	TodayDate() string
}

type MealService struct {
	meals        mealRepository
	analyzer     vision.Analyzer
	photos       photostore.PhotoStore
	retainImages bool
	now          func() time.Time
	newID        func() (string, error)
	logger       *slog.Logger
}

type Option func(*MealService)

// WithImageRetention embeds a downscaled preview in each saved record.
func WithImageRetention(on bool) Option {
	return func(s *MealService) { s.retainImages = on }
}

func WithClock(now func() time.Time) Option {
	return func(s *MealService) { s.now = now }
}

func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *MealService) { s.newID = gen }
}

// NewMealService wires the service. photos may be nil, in which case
// original images are not kept.
func NewMealService(
	meals mealRepository,
	analyzer vision.Analyzer,
	photos photostore.PhotoStore,
	logger *slog.Logger,
	opts ...Option,
) *MealService {
	s := &MealService{
		meals:    meals,
		analyzer: analyzer,
		photos:   photos,
		now:      time.Now,
		newID:    newMealID,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newMealID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CheckConfig reports a MissingCredentials failure when the analyzer cannot
// run at all. Analyzers without configuration always pass.
func (s *MealService) CheckConfig() error {
	if checker, ok := s.analyzer.(vision.ConfigChecker); ok {
		return checker.CheckConfig()
	}
	return nil
}

// Analyze estimates the nutrition of an encoded image (plain base64 or a
// data URL). Cheap checks run before the analyzer is called.
func (s *MealService) Analyze(ctx context.Context, encodedImage string) (*vision.Estimate, error) {
	if err := s.CheckConfig(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(encodedImage) == "" {
		return nil, vision.NewError(vision.NoImageProvided, nil)
	}

	sizeKB := imagedata.EncodedSizeKB(encodedImage)
	s.logger.Info("analyze started", "image_kb", sizeKB)
	if sizeKB > imagedata.MaxEncodedKB {
		return nil, vision.NewError(vision.ImageTooLarge, fmt.Errorf("image is %d KB", sizeKB))
	}

	data, mimeType, err := imagedata.Decode(encodedImage)
	if err != nil {
		if errors.Is(err, imagedata.ErrEmpty) {
			return nil, vision.NewError(vision.NoImageProvided, err)
		}
		return nil, &vision.Error{
			Kind:    vision.NoImageProvided,
			Message: "画像を読み取れませんでした。JPEG・PNG・GIF・WebP形式の画像をお試しください。",
			Err:     err,
		}
	}

	est, err := s.analyzer.Analyze(ctx, bytes.NewReader(data), mimeType)
	if err != nil {
		s.logger.Error("analyze failed", "kind", vision.KindOf(err).String(), "error", err)
		var ve *vision.Error
		if !errors.As(err, &ve) {
			err = vision.NewError(vision.UpstreamOther, err)
		}
		return nil, err
	}
	s.logger.Info("analyze complete", "name", est.Name, "calories", est.Calories, "confidence", est.Confidence)
	return est, nil
}

// SaveMealInput is a user-confirmed estimate. A zero CapturedAt means now;
// Image is optional and accepts the same encodings as Analyze.
type SaveMealInput struct {
	Estimate   vision.Estimate
	CapturedAt time.Time
	Image      string
}

// SaveMeal turns a confirmed estimate into a stored record with a fresh id.
func (s *MealService) SaveMeal(ctx context.Context, in SaveMealInput) (*domain.MealRecord, error) {
	if err := domain.ValidateNutrients(in.Estimate); err != nil {
		return nil, err
	}

	var (
		imageData []byte
		mimeType  string
	)
	if strings.TrimSpace(in.Image) != "" {
		var err error
		imageData, mimeType, err = imagedata.Decode(in.Image)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate meal id: %w", err)
	}
	captured := in.CapturedAt
	if captured.IsZero() {
		captured = s.now()
	}
	rec := domain.NewMealRecord(id, in.Estimate, captured, s.meals.Location())

	if imageData != nil && s.retainImages {
		thumb, err := imagedata.Thumbnail(imageData)
		if err != nil {
			s.logger.Warn("failed to build meal preview, saving without image", "meal_id", id, "error", err)
		} else {
			rec.Image = thumb
		}
	}

	if err := s.meals.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save meal: %w", err)
	}
	s.logger.Info("meal saved", "meal_id", rec.ID, "date", rec.Date, "name", rec.Name)

	if imageData != nil && s.photos != nil {
		if err := s.photos.Save(ctx, rec.ID, mimeType, bytes.NewReader(imageData)); err != nil {
			s.logger.Error("failed to store meal photo", "meal_id", rec.ID, "error", err)
		}
	}
	return &rec, nil
}

// DaySummary is one calendar day of meals with its nutrition totals.
type DaySummary struct {
	Date   string              `json:"date"`
	Meals  []domain.MealRecord `json:"meals"`
	Totals nutrition.Totals    `json:"totals"`
	Ratio  nutrition.Ratio     `json:"pfc"`
}

func newDaySummary(date string, meals []domain.MealRecord) DaySummary {
	totals := nutrition.Sum(meals)
	return DaySummary{Date: date, Meals: meals, Totals: totals, Ratio: totals.Ratio()}
}

func (s *MealService) AllMeals(ctx context.Context) ([]domain.MealRecord, error) {
	return s.meals.All(ctx)
}

func (s *MealService) Today(ctx context.Context) ([]domain.MealRecord, error) {
	return s.meals.Today(ctx)
}

// TodaySummary returns today's meals with their totals and PFC ratio.
func (s *MealService) TodaySummary(ctx context.Context) (*DaySummary, error) {
	meals, err := s.meals.Today(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list today's meals: %w", err)
	}
	summary := newDaySummary(s.meals.TodayDate(), meals)
	return &summary, nil
}

// History returns one summary per day that has meals, most recent first.
// days limits the result to that many days; zero or less means all.
func (s *MealService) History(ctx context.Context, days int) ([]DaySummary, error) {
	grouped, err := s.meals.GroupedByDate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to group meals: %w", err)
	}
	dates := store.SortedDatesDesc(grouped)
	if days > 0 && len(dates) > days {
		dates = dates[:days]
	}
	out := make([]DaySummary, 0, len(dates))
	for _, d := range dates {
		out = append(out, newDaySummary(d, grouped[d]))
	}
	return out, nil
}

func (s *MealService) GetMeal(ctx context.Context, id string) (*domain.MealRecord, error) {
	rec, err := s.meals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get meal: %w", err)
	}
	if rec == nil {
		return nil, ErrMealNotFound
	}
	return rec, nil
}

// DeleteMeal removes a meal and its stored photo. Unknown ids are not an error.
func (s *MealService) DeleteMeal(ctx context.Context, id string) error {
	if err := s.meals.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete meal: %w", err)
	}
	s.deletePhoto(ctx, id)
	s.logger.Info("meal deleted", "meal_id", id)
	return nil
}

// ClearMeals removes every meal and every stored photo.
func (s *MealService) ClearMeals(ctx context.Context) error {
	var ids []string
	if s.photos != nil {
		meals, err := s.meals.All(ctx)
		if err != nil {
			return fmt.Errorf("failed to list meals: %w", err)
		}
		for _, m := range meals {
			ids = append(ids, m.ID)
		}
	}

	if err := s.meals.ClearAll(ctx); err != nil {
		return fmt.Errorf("failed to clear meals: %w", err)
	}
	for _, id := range ids {
		s.deletePhoto(ctx, id)
	}
	s.logger.Info("meals cleared", "photos", len(ids))
	return nil
}

// MealPhoto opens the original photo of a meal. The caller closes the reader.
func (s *MealService) MealPhoto(ctx context.Context, id string) (io.ReadCloser, string, error) {
	if s.photos == nil {
		return nil, "", photostore.ErrNotFound
	}
	return s.photos.Get(ctx, id)
}

func (s *MealService) deletePhoto(ctx context.Context, id string) {
	if s.photos == nil {
		return
	}
	if err := s.photos.Delete(ctx, id); err != nil && !errors.Is(err, photostore.ErrNotFound) {
		s.logger.Error("failed to delete meal photo", "meal_id", id, "error", err)
	}
}
