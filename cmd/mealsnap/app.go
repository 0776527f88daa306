package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/vbonduro/mealsnap/internal/blobstore"
	badgerstore "github.com/vbonduro/mealsnap/internal/blobstore/badger"
	"github.com/vbonduro/mealsnap/internal/blobstore/memory"
	sqlitestore "github.com/vbonduro/mealsnap/internal/blobstore/sqlite"
	"github.com/vbonduro/mealsnap/internal/config"
	"github.com/vbonduro/mealsnap/internal/db"
	"github.com/vbonduro/mealsnap/internal/events"
	"github.com/vbonduro/mealsnap/internal/photostore"
	"github.com/vbonduro/mealsnap/internal/photostore/local"
	"github.com/vbonduro/mealsnap/internal/service"
	"github.com/vbonduro/mealsnap/internal/store"
	"github.com/vbonduro/mealsnap/internal/vision"
	claudevision "github.com/vbonduro/mealsnap/internal/vision/claude"
	ollamavision "github.com/vbonduro/mealsnap/internal/vision/ollama"
)

// application holds everything a command needs, built once per invocation.
type application struct {
	cfg     *config.Config
	logger  *slog.Logger
	broker  *events.Broker
	service *service.MealService
	closers []func() error
}

func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger, broker: events.NewBroker()}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	backend, closeBackend, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeBackend)

	opts := []store.Option{
		store.WithNotifier(app.broker),
		store.WithLocation(loc),
		store.WithLogger(logger),
	}
	if cfg.StoreStrict {
		opts = append(opts, store.WithStrictReads())
	}
	meals := store.NewMealStore(backend, opts...)

	var photos photostore.PhotoStore
	if cfg.PhotoPath != "" {
		ps, err := local.NewLocalPhotoStore(cfg.PhotoPath)
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("failed to initialize photo store: %w", err)
		}
		photos = ps
	}

	app.service = service.NewMealService(meals, newVisionAnalyzer(cfg, logger), photos, logger,
		service.WithImageRetention(cfg.RetainImages))
	return app, nil
}

// Close releases the store and stops change subscribers.
func (a *application) Close() error {
	a.broker.Close()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openBackend opens the key-value backend named by STORE_BACKEND. The "none"
// backend is a nil blobstore.Backend: reads are empty and writes are dropped.
func openBackend(cfg *config.Config, logger *slog.Logger) (blobstore.Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StoreBackend {
	case "sqlite", "":
		database, err := db.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		logger.Info("using sqlite store", "path", cfg.DBPath)
		return sqlitestore.New(database), database.Close, nil
	case "badger":
		bs, err := badgerstore.Open(cfg.BadgerPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		logger.Info("using badger store", "path", cfg.BadgerPath)
		return bs, bs.Close, nil
	case "memory":
		logger.Warn("using in-memory store, meals are lost on exit")
		return memory.New(), noop, nil
	case "none":
		logger.Warn("no persistent storage configured, meals will not be saved")
		return nil, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

func newVisionAnalyzer(cfg *config.Config, logger *slog.Logger) vision.Analyzer {
	switch cfg.VisionBackend {
	case "ollama":
		logger.Info("using Ollama vision backend", "model", cfg.OllamaModel)
		return ollamavision.NewOllamaAnalyzer(cfg.OllamaHost, cfg.OllamaModel, logger)
	default:
		if cfg.ClaudeAPIKey == "" {
			logger.Warn("ANTHROPIC_API_KEY is not set, meal analysis will fail")
		}
		logger.Info("using Claude vision backend", "model", cfg.ClaudeModel)
		return claudevision.NewClaudeAnalyzer(cfg.ClaudeAPIKey, cfg.ClaudeModel, cfg.ClaudeBaseURL, logger)
	}
}
