package main

import (
	"context"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"palimpsest/api/internal/backend"
	"palimpsest/api/internal/config"
	"palimpsest/api/internal/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	// stdout carries the protocol.
	logger := cfg.Logger(os.Stderr)
	ctx := context.Background()

	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}
	defer b.Close()

	mcpServer := server.NewMCPServer(
		"palimpsest-mcp",
		"0.1.0",
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(
		mcp.NewTool("ping",
			mcp.WithDescription("Health check, returns pong"),
		),
		func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("pong"), nil
		},
	)

	tools.Register(mcpServer, tools.New(b.Documents))

	if err := server.ServeStdio(mcpServer); err != nil {
		log.Fatalf("palimpsest-mcp: %v", err)
	}
}
