package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vbonduro/mealsnap/internal/blobstore"
	"github.com/vbonduro/mealsnap/internal/domain"
	"github.com/vbonduro/mealsnap/internal/events"
)

const (
	// RecordsKey is the fixed key the whole meal collection is stored under.
	RecordsKey = "meal_records"
	// CorruptKey receives an unreadable collection before it is overwritten.
	CorruptKey = RecordsKey + ".corrupt"

	envelopeVersion = 1
)

var (
	ErrDuplicateID = errors.New("meal id already exists")
	ErrCorrupted   = errors.New("stored meal records are corrupted")
)

// StorageError reports a backend failure while reading or writing the
// collection.
type StorageError struct {
	Op  string // "read" or "write"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("meal storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Notifier is told about every effective mutation of the collection.
type Notifier interface {
	Publish(events.Change)
}

type envelope struct {
	Version int                 `json:"version"`
	Records []domain.MealRecord `json:"records"`
}

// MealStore owns the persisted meal collection. The collection is kept as a
// single serialized blob; every mutation is one read-modify-write of that
// blob under mu. A nil backend gives a store that reads empty and ignores
// writes.
type MealStore struct {
	backend  blobstore.Backend
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
	strict   bool

	mu sync.Mutex
}

type Option func(*MealStore)

// WithNotifier publishes a change after each effective mutation.
func WithNotifier(n Notifier) Option {
	return func(s *MealStore) { s.notifier = n }
}

// WithClock overrides the time source used by Today.
func WithClock(now func() time.Time) Option {
	return func(s *MealStore) { s.now = now }
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(s *MealStore) { s.loc = loc }
}

// WithStrictReads makes reads of unreadable or corrupted state return an
// error instead of an empty collection.
func WithStrictReads() Option {
	return func(s *MealStore) { s.strict = true }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *MealStore) { s.logger = logger }
}

func NewMealStore(backend blobstore.Backend, opts ...Option) *MealStore {
	s := &MealStore{
		backend: backend,
		logger:  slog.Default(),
		now:     time.Now,
		loc:     time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the time zone calendar days are computed in.
func (s *MealStore) Location() *time.Location {
	return s.loc
}

// Save appends rec to the collection. Records with an id already present are
// rejected with ErrDuplicateID.
func (s *MealStore) Save(ctx context.Context, rec domain.MealRecord) error {
	if err := domain.ValidateRecord(rec, s.loc); err != nil {
		return err
	}
	return s.mutate(ctx, events.Change{Kind: events.MealSaved, ID: rec.ID}, func(records []domain.MealRecord) ([]domain.MealRecord, bool, error) {
		for _, r := range records {
			if r.ID == rec.ID {
				return nil, false, fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
			}
		}
		return append(records, rec), true, nil
	})
}

// All returns every record in insertion order.
func (s *MealStore) All(ctx context.Context) ([]domain.MealRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll(ctx)
}

// Today returns the records whose date is the current local calendar date.
func (s *MealStore) Today(ctx context.Context) ([]domain.MealRecord, error) {
	records, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	today := s.TodayDate()
	out := make([]domain.MealRecord, 0, len(records))
	for _, r := range records {
		if r.Date == today {
			out = append(out, r)
		}
	}
	return out, nil
}

// TodayDate is the current calendar date in the store's location, the date
// Today filters by.
func (s *MealStore) TodayDate() string {
	return s.now().In(s.loc).Format(domain.DateLayout)
}

// GroupedByDate partitions the collection by date. Each bucket is sorted by
// timestamp ascending; records with equal timestamps keep insertion order.
func (s *MealStore) GroupedByDate(ctx context.Context) (map[string][]domain.MealRecord, error) {
	records, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]domain.MealRecord)
	for _, r := range records {
		grouped[r.Date] = append(grouped[r.Date], r)
	}
	for _, bucket := range grouped {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].Timestamp.Before(bucket[j].Timestamp)
		})
	}
	return grouped, nil
}

// SortedDatesDesc returns the keys of grouped, most recent day first.
func SortedDatesDesc(grouped map[string][]domain.MealRecord) []string {
	dates := make([]string, 0, len(grouped))
	for d := range grouped {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	return dates
}

// GetByID returns the first record with id, or nil if there is none.
func (s *MealStore) GetByID(ctx context.Context, id string) (*domain.MealRecord, error) {
	records, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].ID == id {
			return &records[i], nil
		}
	}
	return nil, nil
}

// DeleteByID removes the record with id. Deleting an unknown id is a no-op.
func (s *MealStore) DeleteByID(ctx context.Context, id string) error {
	return s.mutate(ctx, events.Change{Kind: events.MealDeleted, ID: id}, func(records []domain.MealRecord) ([]domain.MealRecord, bool, error) {
		kept := make([]domain.MealRecord, 0, len(records))
		for _, r := range records {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		return kept, len(kept) != len(records), nil
	})
}

// ClearAll removes the whole collection. A corrupted blob is copied to
// CorruptKey first, in strict mode too, so clearing never destroys it.
func (s *MealStore) ClearAll(ctx context.Context) error {
	if s.backend == nil {
		return nil
	}

	s.mu.Lock()
	records, raw, corrupted, loadErr := s.load(ctx)
	if corrupted {
		if err := s.preserveCorrupt(ctx, raw); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	err := s.backend.Delete(ctx, RecordsKey)
	s.mu.Unlock()

	if err != nil {
		return &StorageError{Op: "write", Err: err}
	}
	if loadErr != nil || corrupted || len(records) > 0 {
		s.publish(events.Change{Kind: events.MealsClear})
	}
	return nil
}

// preserveCorrupt copies unreadable bytes aside. Callers must hold mu.
func (s *MealStore) preserveCorrupt(ctx context.Context, raw []byte) error {
	if err := s.backend.Put(ctx, CorruptKey, raw); err != nil {
		return &StorageError{Op: "write", Err: fmt.Errorf("failed to preserve corrupted records: %w", err)}
	}
	s.logger.Warn("preserved corrupted meal storage before overwrite", "key", CorruptKey, "bytes", len(raw))
	return nil
}

// readAll applies the read policy to load. Callers must hold mu.
func (s *MealStore) readAll(ctx context.Context) ([]domain.MealRecord, error) {
	records, _, corrupted, err := s.load(ctx)
	switch {
	case err != nil && s.strict:
		return nil, err
	case err != nil:
		s.logger.Warn("meal storage unreadable, treating as empty", "error", err)
		return []domain.MealRecord{}, nil
	case corrupted && s.strict:
		return nil, ErrCorrupted
	case corrupted:
		s.logger.Warn("meal storage corrupted, treating as empty", "key", RecordsKey)
		return []domain.MealRecord{}, nil
	}
	return records, nil
}

// load reads and decodes the collection. corrupted is set, with raw holding
// the stored bytes, when the blob exists but cannot be decoded.
func (s *MealStore) load(ctx context.Context) (records []domain.MealRecord, raw []byte, corrupted bool, err error) {
	if s.backend == nil {
		return []domain.MealRecord{}, nil, false, nil
	}
	raw, err = s.backend.Get(ctx, RecordsKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return []domain.MealRecord{}, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, &StorageError{Op: "read", Err: err}
	}
	records, err = decode(raw)
	if err != nil {
		return nil, raw, true, nil
	}
	return records, raw, false, nil
}

// mutate runs fn over the current collection and writes the result back when
// fn reports a change.
func (s *MealStore) mutate(ctx context.Context, change events.Change, fn func([]domain.MealRecord) ([]domain.MealRecord, bool, error)) error {
	if s.backend == nil {
		return nil
	}

	s.mu.Lock()
	records, raw, corrupted, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if corrupted {
		if s.strict {
			s.mu.Unlock()
			return ErrCorrupted
		}
		if err := s.preserveCorrupt(ctx, raw); err != nil {
			s.mu.Unlock()
			return err
		}
		records = []domain.MealRecord{}
	}

	updated, changed, err := fn(records)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}

	data, err := json.Marshal(envelope{Version: envelopeVersion, Records: updated})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to encode meal records: %w", err)
	}
	err = s.backend.Put(ctx, RecordsKey, data)
	s.mu.Unlock()
	if err != nil {
		return &StorageError{Op: "write", Err: err}
	}

	s.publish(change)
	return nil
}

func (s *MealStore) publish(c events.Change) {
	if s.notifier == nil {
		return
	}
	c.At = s.now()
	s.notifier.Publish(c)
}

// decode accepts the versioned envelope and the legacy bare-array layout.
func decode(raw []byte) ([]domain.MealRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []domain.MealRecord{}, nil
	}

	if trimmed[0] == '[' {
		var records []domain.MealRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		if records == nil {
			records = []domain.MealRecord{}
		}
		return records, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	if env.Version != envelopeVersion {
		return nil, fmt.Errorf("unsupported meal records version %d", env.Version)
	}
	if env.Records == nil {
		env.Records = []domain.MealRecord{}
	}
	return env.Records, nil
}
