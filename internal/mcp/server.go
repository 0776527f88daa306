// Package mcp exposes the meal log to AI assistants over the Model Context
// Protocol.
package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vbonduro/mealsnap/internal/service"
)

// Server wraps the MCP server with access to the meal service.
type Server struct {
	mcpServer *mcp.Server
	meals     *service.MealService
	logger    *slog.Logger
}

func NewServer(meals *service.MealService, version string, logger *slog.Logger) *Server {
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "mealsnap",
			Version: version,
		},
		nil,
	)

	s := &Server{
		mcpServer: mcpServer,
		meals:     meals,
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Serve runs the server over stdin/stdout until ctx is cancelled or the
// client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server starting", "transport", "stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}
