package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vbonduro/mealsnap/internal/config"
	"github.com/vbonduro/mealsnap/internal/logging"
)

var (
	app        *application
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "mealsnap",
	Short: "Photo-based meal nutrition log",
	Long: `mealsnap estimates the nutrition of a meal from a photo and keeps a
local log of what you ate.

QUICK START:

  $ mealsnap analyze lunch.jpg --save   # Estimate a photo and record it
  $ mealsnap today                      # Today's meals with PFC balance
  $ mealsnap history --days 7           # Last seven days with meals
  $ mealsnap serve                      # JSON API for the capture app

CONFIGURATION:

  Settings come from the environment:

  STORE_BACKEND      sqlite (default), badger, memory or none
  DB_PATH            sqlite database file
  BADGER_PATH        badger data directory
  TIMEZONE           IANA zone that defines calendar days (default: local)
  VISION_BACKEND     claude (default) or ollama
  ANTHROPIC_API_KEY  required for the claude backend
  RETAIN_IMAGES      keep a small preview of each photo in the record
  PHOTO_LOCAL_PATH   directory for original photos (disabled when empty)`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "help", "version", "completion":
			return nil
		}

		cfg := config.Load()
		logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logCleanup = cleanup

		app, err = newApplication(cfg, logger)
		if err != nil {
			return err
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "mealsnap", version)
	},
}

// closeApp releases what PersistentPreRunE opened. It runs as a cobra
// finalizer, so it also runs when a command fails, and is safe to repeat.
func closeApp() {
	if app != nil {
		if err := app.Close(); err != nil {
			app.logger.Error("failed to close store", "error", err)
		}
		app = nil
	}
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
}

func init() {
	cobra.OnFinalize(closeApp)
	rootCmd.AddCommand(versionCmd)
}
