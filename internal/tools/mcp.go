package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Register adds getContext, getSection and applyAIPatch to s. Results are
// always text; failures are text too, never protocol errors.
func Register(s *server.MCPServer, t *Toolset) {
	s.AddTool(getContextTool(), t.getContextHandler)
	s.AddTool(getSectionTool(), t.getSectionHandler)
	s.AddTool(applyAIPatchTool(), t.applyAIPatchHandler)
}

// --- getContext ---

func getContextTool() mcp.Tool {
	return mcp.NewTool("getContext",
		mcp.WithDescription("Get a summary of a file, including all headers and the first two lines of each section."),
		mcp.WithString("fileId",
			mcp.Description("The ID of the file to get the context for."),
			mcp.Required(),
		),
		mcp.WithString("userId",
			mcp.Description("The ID of the user who owns the file."),
			mcp.Required(),
		),
	)
}

func (t *Toolset) getContextHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(t.GetContext(ctx, req.GetString("fileId", ""), req.GetString("userId", ""))), nil
}

// --- getSection ---

func getSectionTool() mcp.Tool {
	return mcp.NewTool("getSection",
		mcp.WithDescription("Get the full content of a specific section of a file."),
		mcp.WithString("fileId",
			mcp.Description("The ID of the file to get the section from."),
			mcp.Required(),
		),
		mcp.WithString("userId",
			mcp.Description("The ID of the user who owns the file."),
			mcp.Required(),
		),
		mcp.WithString("sectionHeader",
			mcp.Description("The header of the section to get, e.g. \"## Goals\"."),
			mcp.Required(),
		),
	)
}

func (t *Toolset) getSectionHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := t.GetSection(ctx,
		req.GetString("fileId", ""),
		req.GetString("userId", ""),
		req.GetString("sectionHeader", ""),
	)
	return mcp.NewToolResultText(text), nil
}

// --- applyAIPatch ---

func applyAIPatchTool() mcp.Tool {
	return mcp.NewTool("applyAIPatch",
		mcp.WithDescription("Apply a unified diff patch to a file to update its content."),
		mcp.WithString("fileId",
			mcp.Description("The ID of the file to apply the patch to."),
			mcp.Required(),
		),
		mcp.WithString("userId",
			mcp.Description("The ID of the user who owns the file."),
			mcp.Required(),
		),
		mcp.WithString("patch",
			mcp.Description("The patch to apply to the file."),
			mcp.Required(),
		),
	)
}

func (t *Toolset) applyAIPatchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := t.ApplyAIPatch(ctx,
		req.GetString("fileId", ""),
		req.GetString("userId", ""),
		req.GetString("patch", ""),
	)
	return mcp.NewToolResultText(text), nil
}
