package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vbonduro/mealsnap/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server",
	Long: `Start the Model Context Protocol (MCP) server for AI assistant integration.
The server communicates via stdin/stdout; logs go to stderr.

CLAUDE DESKTOP CONFIGURATION:

  {
    "mcpServers": {
      "mealsnap": { "command": "mealsnap", "args": ["mcp"] }
    }
  }

AVAILABLE TOOLS:

  list_today_meals    Today's meals with totals
  list_meal_history   Meals grouped by day
  get_meal            One meal by ID
  add_meal            Record a manually entered estimate
  delete_meal         Delete a meal by ID
  pfc_ratio           C:P:F calorie split for gram amounts

AVAILABLE RESOURCES:

  meals://today       Today's meals
  meals://history     All meals by day`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return mcp.NewServer(app.service, version, app.logger).Serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
