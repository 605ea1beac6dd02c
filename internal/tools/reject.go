package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/HendryAvila/phasegate/internal/workflow"
)

// RejectTool handles the phase_reject MCP tool.
type RejectTool struct {
	svc *workflow.Service
}

// NewRejectTool creates a RejectTool.
func NewRejectTool(svc *workflow.Service) *RejectTool {
	return &RejectTool{svc: svc}
}

// Definition returns the MCP tool definition for registration.
func (t *RejectTool) Definition() mcp.Tool {
	return mcp.NewTool("phase_reject",
		mcp.WithDescription(
			"Reject a phase with a reason, or reopen a rejected phase so work can resume. "+
				"A rejected phase cannot be approved until it is reopened and submitted again.",
		),
		projectParam(),
		phaseParam(),
		mcp.WithString("reason",
			mcp.Description("Why the phase is rejected. Required unless reopen is true."),
		),
		mcp.WithBoolean("reopen",
			mcp.Description("Reopen a rejected phase (rejected → in_progress) instead of rejecting."),
		),
	)
}

// Handle processes the phase_reject tool call.
func (t *RejectTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, phase, bad, err := target(ctx, t.svc, req)
	if bad != nil || err != nil {
		return bad, err
	}

	if boolArg(req, "reopen", false) {
		if _, err := t.svc.Reopen(ctx, name, phase); err != nil {
			return callerError(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Phase `%s` / `%s` reopened and back in progress.", name, phase)), nil
	}

	reason := strings.TrimSpace(req.GetString("reason", ""))
	if reason == "" {
		return mcp.NewToolResultError("reason is required to reject a phase"), nil
	}
	if _, err := t.svc.Reject(ctx, name, phase, reason); err != nil {
		return callerError(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Phase `%s` / `%s` rejected: %s\n\nReopen it with `phase_reject` and `reopen: true` once the issues are addressed.",
		name, phase, reason)), nil
}
