package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vbonduro/mealsnap/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the JSON API server",
	Long: `Run the local HTTP API used by the capture app.

ENDPOINTS:

  POST   /api/analyze            Estimate nutrition from {"image": "<base64 or data URL>"}
  POST   /api/meals              Record a confirmed estimate
  GET    /api/meals              All meals in insertion order
  DELETE /api/meals              Remove every meal
  GET    /api/meals/today        Today's meals with totals and PFC ratio
  GET    /api/meals/history      Meals grouped by day, most recent first
  GET    /api/meals/{id}         One meal
  DELETE /api/meals/{id}         Remove one meal
  GET    /api/meals/{id}/photo   Original photo, when kept
  GET    /api/events             Server-sent "meals-changed" events
  GET    /api/ws                 The same change feed over WebSocket`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		server := web.NewServer(app.service, app.broker, app.cfg.IsDevelopment(), app.logger)
		return server.ListenAndServe(ctx, app.cfg.ListenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
