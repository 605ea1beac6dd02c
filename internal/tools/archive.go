package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/workflow"
)

// ArchiveTool handles the phase_archive MCP tool.
type ArchiveTool struct {
	svc *workflow.Service
}

// NewArchiveTool creates an ArchiveTool.
func NewArchiveTool(svc *workflow.Service) *ArchiveTool {
	return &ArchiveTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *ArchiveTool) Definition() mcp.Tool {
	return mcp.NewTool("phase_archive",
		mcp.WithDescription(
			"Archive a project so it no longer counts as active, or restore an archived "+
				"project to the status it had before.",
		),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project name."),
		),
		mcp.WithBoolean("restore",
			mcp.Description("Unarchive instead of archiving."),
		),
	)
}

// Handle processes the phase_archive tool call.
func (t *ArchiveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("project", "")
	if name == "" {
		return mcp.NewToolResultError("project is required"), nil
	}

	if boolArg(req, "restore", false) {
		p, err := t.svc.Unarchive(ctx, name)
		if err != nil {
			return callerError(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Project `%s` restored (status: %s).", p.Name, p.Status)), nil
	}

	p, err := t.svc.Archive(ctx, name)
	if err != nil {
		return callerError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Project `%s` archived.", p.Name)), nil
}
